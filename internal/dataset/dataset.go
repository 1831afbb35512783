// Package dataset reads and writes person snapshots: a snappy-compressed
// JSONL stream of records plus a JSON manifest sidecar. Snapshots let a
// generated dataset be reloaded or shipped without re-running generation.
package dataset

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/snappy"
	"github.com/google/uuid"

	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/pkg/types"
)

// FormatVersion guards against reading snapshots from a newer layout.
const FormatVersion = 1

// Manifest is the snapshot sidecar. Count is the number of records in
// the data file; readers cross-check it after a full pass.
type Manifest struct {
	SnapshotID    string    `json:"snapshot_id"`
	FormatVersion int       `json:"format_version"`
	Count         int       `json:"count"`
	Seed          int64     `json:"seed"`
	CreatedAt     time.Time `json:"created_at"`
}

// record is the on-disk line layout.
type record struct {
	FullName  string `json:"full_name"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
}

// DataPath returns the data file location for a snapshot base path.
func DataPath(base string) string {
	return base + ".jsonl.sz"
}

// ManifestPath returns the sidecar location for a snapshot base path.
func ManifestPath(base string) string {
	return base + ".manifest.json"
}

// Writer streams records into a snapshot. Close finalizes the data file
// and writes the manifest.
type Writer struct {
	base  string
	f     *os.File
	sz    *snappy.Writer
	count int
	seed  int64
	id    string
}

// Create opens a snapshot writer at the base path. The data file is
// created immediately; the manifest appears only on Close, so a torn
// write never looks like a complete snapshot.
func Create(base string, seed int64) (*Writer, error) {
	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("dataset: failed to create snapshot directory: %w", err)
		}
	}

	f, err := os.Create(DataPath(base))
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to create snapshot file: %w", err)
	}

	return &Writer{
		base: base,
		f:    f,
		sz:   snappy.NewBufferedWriter(f),
		seed: seed,
		id:   uuid.New().String(),
	}, nil
}

// Append writes one record as a JSON line.
func (w *Writer) Append(p types.Person) error {
	line, err := json.Marshal(record{
		FullName:  p.FullName,
		BirthDate: p.BirthDateString(),
		Gender:    string(p.Gender),
	})
	if err != nil {
		return fmt.Errorf("dataset: failed to encode record: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.sz.Write(line); err != nil {
		return fmt.Errorf("dataset: failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Count reports how many records have been appended so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes and syncs the data file, then writes the manifest via a
// temp file rename.
func (w *Writer) Close() (Manifest, error) {
	if err := w.sz.Close(); err != nil {
		w.f.Close()
		return Manifest{}, fmt.Errorf("dataset: failed to flush snapshot: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return Manifest{}, fmt.Errorf("dataset: failed to sync snapshot: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return Manifest{}, fmt.Errorf("dataset: failed to close snapshot: %w", err)
	}

	manifest := Manifest{
		SnapshotID:    w.id,
		FormatVersion: FormatVersion,
		Count:         w.count,
		Seed:          w.seed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := writeManifest(ManifestPath(w.base), manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func writeManifest(path string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("dataset: failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dataset: failed to finalize manifest: %w", err)
	}
	return nil
}

// ReadManifest loads and checks a snapshot sidecar.
func ReadManifest(base string) (Manifest, error) {
	data, err := os.ReadFile(ManifestPath(base))
	if err != nil {
		return Manifest{}, fmt.Errorf("dataset: failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("dataset: failed to parse manifest: %w", err)
	}
	if manifest.FormatVersion > FormatVersion {
		return Manifest{}, fmt.Errorf("dataset: snapshot format %d is newer than supported %d",
			manifest.FormatVersion, FormatVersion)
	}
	return manifest, nil
}

// Reader yields snapshot records one at a time. It follows the scanner
// idiom: Next reports false at the end or on error, and Err tells the
// two apart.
type Reader struct {
	f        *os.File
	scanner  *bufio.Scanner
	manifest Manifest
	read     int
	line     int
	err      error
}

// OpenReader opens a snapshot for sequential reading. The manifest must
// be present; a data file without one is treated as incomplete.
func OpenReader(base string) (*Reader, error) {
	manifest, err := ReadManifest(base)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(DataPath(base))
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to open snapshot: %w", err)
	}

	return &Reader{
		f:        f,
		scanner:  bufio.NewScanner(snappy.NewReader(f)),
		manifest: manifest,
	}, nil
}

// Manifest returns the snapshot sidecar contents.
func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// Next yields the next record. It reports false once the stream is
// exhausted or broken; check Err afterwards.
func (r *Reader) Next() (types.Person, bool) {
	if r.err != nil {
		return types.Person{}, false
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			r.err = fmt.Errorf("dataset: failed to read snapshot: %w", err)
		}
		return types.Person{}, false
	}
	r.line++

	line := bytes.TrimSpace(r.scanner.Bytes())
	if len(line) == 0 {
		return r.Next()
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		r.err = rerrors.NewIntegrityError(rerrors.CodeConstraintViolation,
			fmt.Sprintf("dataset: corrupt record at line %d", r.line), err)
		return types.Person{}, false
	}

	birth, err := types.ParseBirthDate(rec.BirthDate)
	if err != nil {
		r.err = rerrors.NewIntegrityError(rerrors.CodeConstraintViolation,
			fmt.Sprintf("dataset: invalid birth date at line %d", r.line), err)
		return types.Person{}, false
	}
	gender, err := types.ParseGender(rec.Gender)
	if err != nil {
		r.err = rerrors.NewIntegrityError(rerrors.CodeConstraintViolation,
			fmt.Sprintf("dataset: invalid gender at line %d", r.line), err)
		return types.Person{}, false
	}

	r.read++
	return types.Person{
		FullName:  rec.FullName,
		BirthDate: birth,
		Gender:    gender,
	}, true
}

// Err returns the first error hit while reading, if any.
func (r *Reader) Err() error {
	return r.err
}

// Verify cross-checks the record count against the manifest. Call after
// draining the reader.
func (r *Reader) Verify() error {
	if r.err != nil {
		return r.err
	}
	if r.read != r.manifest.Count {
		return rerrors.NewIntegrityError(rerrors.CodePartialBatch,
			fmt.Sprintf("dataset: snapshot holds %d records, manifest says %d", r.read, r.manifest.Count),
			nil)
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("dataset: failed to close snapshot: %w", err)
	}
	return nil
}
