package baseline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rosterbench/rosterbench/internal/bench"
)

func testStats(mean time.Duration) bench.Stats {
	return bench.Stats{
		Runs: 5,
		Rows: 100,
		Min:  mean / 2,
		Mean: mean,
		Max:  mean * 2,
	}
}

func TestAppendAndAll(t *testing.T) {
	h := Open(filepath.Join(t.TempDir(), "history.jsonl"))

	entries := []Entry{
		NewEntry(KindDistinct, "select distinct", testStats(10*time.Millisecond), nil),
		NewEntry(KindCriteria, "select criteria", testStats(20*time.Millisecond), []string{"idx_persons_full_name"}),
		NewEntry(KindDistinct, "select distinct", testStats(5*time.Millisecond), []string{"idx_persons_full_name"}),
	}
	for _, e := range entries {
		if err := h.Append(e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := h.All()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i, e := range entries {
		if got[i].RunID != e.RunID {
			t.Errorf("entry %d: run id mismatch", i)
		}
		if got[i].Kind != e.Kind || got[i].Query != e.Query {
			t.Errorf("entry %d: kind/query mismatch: %+v", i, got[i])
		}
		if got[i].Min != e.Min || got[i].Mean != e.Mean || got[i].Max != e.Max {
			t.Errorf("entry %d: duration mismatch: %+v", i, got[i])
		}
		if got[i].Repeats != 5 || got[i].Rows != 100 {
			t.Errorf("entry %d: stats mismatch: %+v", i, got[i])
		}
	}
	if len(got[1].IndexState) != 1 || got[1].IndexState[0] != "idx_persons_full_name" {
		t.Errorf("index state mismatch: %v", got[1].IndexState)
	}
}

func TestAllMissingFile(t *testing.T) {
	h := Open(filepath.Join(t.TempDir(), "absent.jsonl"))

	entries, err := h.All()
	if err != nil {
		t.Fatalf("expected missing file to read as empty, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestLatest(t *testing.T) {
	h := Open(filepath.Join(t.TempDir(), "history.jsonl"))

	first := NewEntry(KindDistinct, "q", testStats(30*time.Millisecond), nil)
	mid := NewEntry(KindCriteria, "q", testStats(25*time.Millisecond), nil)
	last := NewEntry(KindDistinct, "q", testStats(10*time.Millisecond), nil)
	for _, e := range []Entry{first, mid, last} {
		if err := h.Append(e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, found, err := h.Latest(KindDistinct)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if !found {
		t.Fatal("expected a distinct entry")
	}
	if got.RunID != last.RunID {
		t.Errorf("expected newest distinct entry %s, got %s", last.RunID, got.RunID)
	}

	if _, found, err := h.Latest("unknown"); err != nil || found {
		t.Errorf("expected no entry for unknown kind, found=%v err=%v", found, err)
	}
}

func TestCorruptLinesSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	h := Open(path)

	good := NewEntry(KindDistinct, "q", testStats(10*time.Millisecond), nil)
	if err := h.Append(good); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// Simulate a torn write followed by a healthy append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := f.WriteString("{\"run_id\": \"torn\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	f.Close()

	tail := NewEntry(KindCriteria, "q", testStats(20*time.Millisecond), nil)
	if err := h.Append(tail); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	entries, err := h.All()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected corrupt line to be skipped, got %d entries", len(entries))
	}
	if entries[0].RunID != good.RunID || entries[1].RunID != tail.RunID {
		t.Errorf("unexpected surviving entries: %+v", entries)
	}
}

func TestAppendCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "history.jsonl")
	h := Open(path)

	if err := h.Append(NewEntry(KindDistinct, "q", testStats(time.Millisecond), nil)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected history file to exist: %v", err)
	}
}

func TestEntryStatsRoundTrip(t *testing.T) {
	stats := testStats(40 * time.Millisecond)
	e := NewEntry(KindDistinct, "q", stats, nil)

	got := e.Stats()
	if got.Runs != stats.Runs || got.Rows != stats.Rows {
		t.Errorf("run/row mismatch: %+v", got)
	}
	if got.Min != stats.Min || got.Mean != stats.Mean || got.Max != stats.Max {
		t.Errorf("duration mismatch: %+v", got)
	}
	if e.RunID == "" {
		t.Error("expected a run id")
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected a recorded timestamp")
	}
}
