// Package baseline persists benchmark results as an append-only JSONL
// history. The optimizer reads it back to compare query cost before and
// after an index change.
package baseline

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rosterbench/rosterbench/internal/bench"
)

// Workload kinds recorded in the history.
const (
	KindDistinct = "distinct"
	KindCriteria = "criteria"
)

// Entry is one benchmark result. Durations are stored in nanoseconds.
type Entry struct {
	RunID      string        `json:"run_id"`
	Kind       string        `json:"kind"`
	Query      string        `json:"query"`
	Repeats    int           `json:"repeats"`
	Min        time.Duration `json:"min_ns"`
	Mean       time.Duration `json:"mean_ns"`
	Max        time.Duration `json:"max_ns"`
	Rows       int           `json:"rows"`
	IndexState []string      `json:"index_state"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// NewEntry builds a history entry from measured stats. IndexState names
// the secondary indexes present during the run.
func NewEntry(kind, query string, stats bench.Stats, indexState []string) Entry {
	return Entry{
		RunID:      uuid.New().String(),
		Kind:       kind,
		Query:      query,
		Repeats:    stats.Runs,
		Min:        stats.Min,
		Mean:       stats.Mean,
		Max:        stats.Max,
		Rows:       stats.Rows,
		IndexState: indexState,
		RecordedAt: time.Now().UTC(),
	}
}

// Stats converts the entry back into summary stats for comparisons.
func (e Entry) Stats() bench.Stats {
	return bench.Stats{
		Runs: e.Repeats,
		Rows: e.Rows,
		Min:  e.Min,
		Mean: e.Mean,
		Max:  e.Max,
	}
}

// History is an append-only JSONL file of benchmark entries.
type History struct {
	path string
}

// Open returns a history bound to the given path. The file is created
// lazily on first append.
func Open(path string) *History {
	return &History{path: path}
}

// Path returns the history file location.
func (h *History) Path() string {
	return h.path
}

// Append writes one entry as a single JSON line.
func (h *History) Append(entry Entry) error {
	if dir := filepath.Dir(h.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("baseline: failed to create history directory: %w", err)
		}
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("baseline: failed to open history: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("baseline: failed to encode entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("baseline: failed to write entry: %w", err)
	}
	return nil
}

// All returns every readable entry in file order. Corrupt lines are
// skipped with a warning so a torn final write cannot poison the whole
// history. A missing file is an empty history.
func (h *History) All() ([]Entry, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("baseline: failed to open history: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("[WARN] baseline: skipping corrupt history line %d: %v", lineNo, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("baseline: failed to read history: %w", err)
	}
	return entries, nil
}

// Latest returns the most recent entry for a workload kind.
func (h *History) Latest(kind string) (Entry, bool, error) {
	entries, err := h.All()
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == kind {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}
