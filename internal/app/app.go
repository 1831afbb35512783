// Package app wires configuration, the store, and the services behind
// the rosterbench commands. One App backs one CLI invocation; commands
// run between Open and Close.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/rosterbench/rosterbench/internal/baseline"
	"github.com/rosterbench/rosterbench/internal/batch"
	"github.com/rosterbench/rosterbench/internal/bench"
	"github.com/rosterbench/rosterbench/internal/config"
	"github.com/rosterbench/rosterbench/internal/dataset"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/internal/generator"
	"github.com/rosterbench/rosterbench/internal/index"
	"github.com/rosterbench/rosterbench/internal/storage"
	"github.com/rosterbench/rosterbench/internal/store"
	"github.com/rosterbench/rosterbench/pkg/types"
)

// Defaults for the criteria query.
const (
	DefaultCriteriaGender = types.GenderMale
	DefaultCriteriaPrefix = "F"
)

// App owns the resources shared by the commands.
type App struct {
	cfg *config.Config
	out io.Writer

	store   *store.Store
	writer  *batch.Writer
	runner  *bench.Runner
	indexes *index.Manager
	history *baseline.History
}

// New resolves and validates the configuration and returns an unopened
// App writing to stdout.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, rerrors.WrapValidationError(rerrors.CodeInvalidArgument, "app: invalid configuration", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, rerrors.NewInternalError("app: failed to create directories", err)
	}
	return &App{cfg: cfg, out: os.Stdout}, nil
}

// SetOutput redirects command output, primarily for tests.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Store exposes the open store.
func (a *App) Store() *store.Store {
	return a.store
}

// History exposes the benchmark history.
func (a *App) History() *baseline.History {
	return a.history
}

// Open connects to the database and builds the services around it.
func (a *App) Open(ctx context.Context) error {
	if a.store != nil {
		return rerrors.NewInternalError("app: already open", nil)
	}

	st, err := store.Open(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.store = st
	a.writer = batch.New(st, batch.OptionsFromConfig(a.cfg.Load))
	a.runner = bench.New(bench.OptionsFromConfig(a.cfg.Bench))
	a.indexes = index.New(st)
	a.history = baseline.Open(a.cfg.Bench.HistoryFile)

	log.Printf("app: store opened: driver=%s", a.cfg.Database.Driver)
	return nil
}

// Close releases the database handle.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// CreateSchema creates the persons table if it does not exist.
func (a *App) CreateSchema(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "schema ready")
	return nil
}

// InsertOne parses and inserts a single person, echoing the stored row.
func (a *App) InsertOne(ctx context.Context, fullName, birthDate, gender string) (int64, error) {
	birth, err := types.ParseBirthDate(birthDate)
	if err != nil {
		return 0, rerrors.WrapValidationError(rerrors.CodeInvalidDate,
			fmt.Sprintf("app: invalid birth date %q", birthDate), err)
	}
	g, err := types.ParseGender(gender)
	if err != nil {
		return 0, rerrors.WrapValidationError(rerrors.CodeInvalidGender,
			fmt.Sprintf("app: invalid gender %q", gender), err)
	}

	p := types.Person{FullName: fullName, BirthDate: birth, Gender: g}
	id, err := a.store.InsertPerson(ctx, p)
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(a.out, "inserted id=%d %s\n", id, p.String())
	return id, nil
}

// ListDistinct prints the unique rows by value with each person's age.
func (a *App) ListDistinct(ctx context.Context) ([]types.Person, error) {
	persons, err := a.store.ListDistinct(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range persons {
		fmt.Fprintln(a.out, p.String())
	}
	fmt.Fprintf(a.out, "%d distinct rows\n", len(persons))
	return persons, nil
}

// LoadReport summarizes a bulk load.
type LoadReport struct {
	Result   batch.Result
	Elapsed  time.Duration
	Seed     int64
	Source   string
	Snapshot string
}

// BulkLoadOptions selects the record source and an optional snapshot of
// the generated stream.
type BulkLoadOptions struct {
	// FromSnapshot loads from a snapshot base path instead of the
	// generator.
	FromSnapshot string

	// SnapshotOut writes the generated stream to a snapshot while
	// loading. Ignored when FromSnapshot is set.
	SnapshotOut string
}

// BulkLoad streams records into the persons table in batched
// transactions and refreshes planner statistics afterwards. When a
// chunk fails, the rows committed so far and the failed chunk ordinal
// are printed before the error returns.
func (a *App) BulkLoad(ctx context.Context, opts BulkLoadOptions) (LoadReport, error) {
	var report LoadReport
	var err error
	if opts.FromSnapshot != "" {
		report, err = a.loadFromSnapshot(ctx, opts.FromSnapshot)
	} else {
		report, err = a.loadFromGenerator(ctx, opts.SnapshotOut)
	}
	if err != nil && report.Result.FailedChunk > 0 {
		fmt.Fprintf(a.out, "partial load: committed=%d failed_chunk=%d\n",
			report.Result.Committed, report.Result.FailedChunk)
	}
	return report, err
}

func (a *App) loadFromGenerator(ctx context.Context, snapshotOut string) (LoadReport, error) {
	gen := generator.New(a.cfg.Generate.Seed)
	report := LoadReport{Seed: gen.Seed(), Source: "generator"}

	random, err := gen.Stream(a.cfg.Generate.Count)
	if err != nil {
		return report, err
	}
	special, err := gen.SpecialStream(a.cfg.Generate.SpecialCount)
	if err != nil {
		return report, err
	}

	var src batch.RecordSource = batch.Concat(random, special)

	var tee *teeSource
	var snap *dataset.Writer
	if snapshotOut != "" {
		snap, err = dataset.Create(snapshotOut, gen.Seed())
		if err != nil {
			return report, err
		}
		report.Snapshot = snapshotOut
		tee = &teeSource{src: src, snap: snap}
		src = tee
	}

	total := a.cfg.Generate.Count + a.cfg.Generate.SpecialCount
	log.Printf("app: bulk load started: records=%d seed=%d batch=%d",
		total, gen.Seed(), a.cfg.Load.BatchSize)

	start := time.Now()
	res, err := a.writer.Write(ctx, src)
	report.Result = res
	report.Elapsed = time.Since(start)

	if tee != nil && tee.err != nil && err == nil {
		err = tee.err
	}
	if snap != nil {
		manifest, cerr := snap.Close()
		if cerr != nil && err == nil {
			err = cerr
		} else if err == nil {
			log.Printf("app: snapshot written: id=%s records=%d", manifest.SnapshotID, manifest.Count)
		}
	}
	if err != nil {
		return report, err
	}

	return report, a.finishLoad(ctx, report)
}

func (a *App) loadFromSnapshot(ctx context.Context, base string) (LoadReport, error) {
	r, err := dataset.OpenReader(base)
	if err != nil {
		return LoadReport{Source: base}, err
	}
	defer r.Close()

	report := LoadReport{Source: base, Seed: r.Manifest().Seed}
	log.Printf("app: bulk load from snapshot: id=%s records=%d",
		r.Manifest().SnapshotID, r.Manifest().Count)

	start := time.Now()
	res, err := a.writer.Write(ctx, r)
	report.Result = res
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}
	if err := r.Verify(); err != nil {
		return report, err
	}

	return report, a.finishLoad(ctx, report)
}

func (a *App) finishLoad(ctx context.Context, report LoadReport) error {
	if err := a.store.Analyze(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "loaded %d records in %d transactions (%v)\n",
		report.Result.Committed, report.Result.Chunks, report.Elapsed.Round(time.Millisecond))
	return nil
}

// teeSource copies each record into a snapshot as it streams to the
// writer. A snapshot failure ends the stream early; the load surfaces
// the stored error.
type teeSource struct {
	src  batch.RecordSource
	snap *dataset.Writer
	err  error
}

func (t *teeSource) Next() (types.Person, bool) {
	if t.err != nil {
		return types.Person{}, false
	}
	p, ok := t.src.Next()
	if !ok {
		return types.Person{}, false
	}
	if err := t.snap.Append(p); err != nil {
		t.err = err
		return types.Person{}, false
	}
	return p, true
}

// BenchReport couples measured stats with the persisted history entry.
type BenchReport struct {
	Stats bench.Stats
	Entry baseline.Entry
}

// Benchmark measures a workload and appends the result to the history.
// A failed measurement still prints the stats of the runs that
// completed.
func (a *App) Benchmark(ctx context.Context, kind string) (BenchReport, error) {
	w, query, err := a.workload(kind)
	if err != nil {
		return BenchReport{}, err
	}
	return a.benchmark(ctx, kind, query, w)
}

func (a *App) benchmark(ctx context.Context, kind, query string, w bench.Workload) (BenchReport, error) {
	state, err := a.indexes.State(ctx)
	if err != nil {
		return BenchReport{}, err
	}

	stats, err := a.runner.Measure(ctx, w)
	if err != nil {
		if stats.Runs > 0 {
			fmt.Fprintf(a.out, "%s: partial runs=%d min=%v mean=%v max=%v\n",
				kind, stats.Runs, stats.Min, stats.Mean, stats.Max)
		}
		return BenchReport{Stats: stats}, err
	}

	entry := baseline.NewEntry(kind, query, stats, state)
	if err := a.history.Append(entry); err != nil {
		return BenchReport{Stats: stats}, err
	}

	fmt.Fprintf(a.out, "%s: runs=%d rows=%d min=%v mean=%v max=%v\n",
		kind, stats.Runs, stats.Rows, stats.Min, stats.Mean, stats.Max)
	return BenchReport{Stats: stats, Entry: entry}, nil
}

func (a *App) workload(kind string) (bench.Workload, string, error) {
	switch kind {
	case baseline.KindDistinct:
		return bench.Workload{
			Name: baseline.KindDistinct,
			Run:  a.store.RunDistinct,
		}, store.DistinctSQL, nil
	case baseline.KindCriteria:
		return bench.Workload{
			Name: baseline.KindCriteria,
			Run: func(ctx context.Context) (int, error) {
				return a.store.RunCriteria(ctx, DefaultCriteriaGender, DefaultCriteriaPrefix)
			},
		}, a.store.Dialect().CriteriaSQL(), nil
	default:
		return bench.Workload{}, "", rerrors.NewValidationError(rerrors.CodeInvalidArgument,
			fmt.Sprintf("app: unknown workload %q", kind))
	}
}

// OptimizeReport summarizes an optimize run.
type OptimizeReport struct {
	Index   index.Index
	Created bool
	Before  baseline.Entry
	After   baseline.Entry
	Speedup float64
}

// Optimize ensures an index over the given columns and reports the mean
// latency ratio against the most recent baseline for the workload. With
// no recorded baseline the workload is measured once before the index
// change. Empty columns fall back to the configured default set.
func (a *App) Optimize(ctx context.Context, name string, columns []string, kind string) (OptimizeReport, error) {
	if kind == "" {
		kind = baseline.KindDistinct
	}
	if len(columns) == 0 {
		columns = a.cfg.Index.Columns
	}

	var report OptimizeReport

	before, found, err := a.history.Latest(kind)
	if err != nil {
		return report, err
	}
	if !found {
		log.Printf("app: no %s baseline recorded, measuring before index change", kind)
		res, err := a.Benchmark(ctx, kind)
		if err != nil {
			return report, err
		}
		before = res.Entry
	}
	report.Before = before

	idx, created, err := a.indexes.Ensure(ctx, name, columns)
	if err != nil {
		return report, err
	}
	report.Index = idx
	report.Created = created
	if created {
		log.Printf("app: index created: %s (%s)", idx.Name, idx.Signature)
		if err := a.store.Analyze(ctx); err != nil {
			return report, err
		}
	} else {
		log.Printf("app: index already present: %s", idx.Name)
	}

	after, err := a.Benchmark(ctx, kind)
	if err != nil {
		return report, err
	}
	report.After = after.Entry
	report.Speedup = bench.Speedup(before.Stats(), after.Stats)

	fmt.Fprintf(a.out, "optimize %s: before mean=%v after mean=%v speedup=%.2fx\n",
		kind, before.Mean, after.Entry.Mean, report.Speedup)
	return report, nil
}

// Criteria prints rows matching a gender and surname prefix. Empty
// arguments fall back to the defaults.
func (a *App) Criteria(ctx context.Context, gender, prefix string) ([]types.Person, error) {
	g := DefaultCriteriaGender
	if gender != "" {
		parsed, err := types.ParseGender(gender)
		if err != nil {
			return nil, rerrors.WrapValidationError(rerrors.CodeInvalidGender,
				fmt.Sprintf("app: invalid gender %q", gender), err)
		}
		g = parsed
	}
	if prefix == "" {
		prefix = DefaultCriteriaPrefix
	}

	persons, err := a.store.QueryByCriteria(ctx, g, prefix)
	if err != nil {
		return nil, err
	}

	for _, p := range persons {
		fmt.Fprintln(a.out, p.String())
	}
	fmt.Fprintf(a.out, "%d rows match %s %s*\n", len(persons), g, prefix)
	return persons, nil
}

// Flush deletes every row. The caller is expected to have confirmed.
func (a *App) Flush(ctx context.Context) (int64, error) {
	n, err := a.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(a.out, "deleted %d rows\n", n)
	return n, nil
}

// Snapshot generates records into a compressed snapshot without touching
// the database. An empty base derives a timestamped path under the
// snapshot directory.
func (a *App) Snapshot(ctx context.Context, base string) (dataset.Manifest, error) {
	if base == "" {
		base = filepath.Join(a.cfg.Snapshot.Dir,
			"roster-"+time.Now().UTC().Format("20060102T150405Z"))
	}

	gen := generator.New(a.cfg.Generate.Seed)
	random, err := gen.Stream(a.cfg.Generate.Count)
	if err != nil {
		return dataset.Manifest{}, err
	}
	special, err := gen.SpecialStream(a.cfg.Generate.SpecialCount)
	if err != nil {
		return dataset.Manifest{}, err
	}

	w, err := dataset.Create(base, gen.Seed())
	if err != nil {
		return dataset.Manifest{}, err
	}

	src := batch.Concat(random, special)
	for {
		if err := ctx.Err(); err != nil {
			w.Close()
			return dataset.Manifest{}, err
		}
		p, ok := src.Next()
		if !ok {
			break
		}
		if err := w.Append(p); err != nil {
			w.Close()
			return dataset.Manifest{}, err
		}
	}

	manifest, err := w.Close()
	if err != nil {
		return dataset.Manifest{}, err
	}

	fmt.Fprintf(a.out, "snapshot %s: %d records (seed %d)\n", base, manifest.Count, manifest.Seed)
	return manifest, nil
}

// Push uploads snapshot files to the configured object storage backend.
// An empty base pushes every snapshot in the snapshot directory plus the
// benchmark history file when one has been written.
func (a *App) Push(ctx context.Context, base string) (*storage.SyncResult, error) {
	syncer, err := a.syncer(ctx)
	if err != nil {
		return nil, err
	}

	var files []string
	if base != "" {
		files = []string{dataset.DataPath(base), dataset.ManifestPath(base)}
	} else {
		files, err = snapshotFiles(a.cfg.Snapshot.Dir)
		if err != nil {
			return nil, err
		}
		if hist := a.cfg.Bench.HistoryFile; hist != "" {
			if _, statErr := os.Stat(hist); statErr == nil {
				files = append(files, hist)
			}
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "nothing to push")
		return &storage.SyncResult{}, nil
	}

	res, err := syncer.Push(ctx, files)
	if err != nil {
		return res, err
	}
	if res.Failed() {
		return res, transferError("push", res)
	}

	fmt.Fprintf(a.out, "pushed %d files\n", len(res.Transferred))
	return res, nil
}

// Pull downloads objects into the snapshot directory. With no names every
// object under the sync prefix is pulled. A pulled benchmark history file
// is routed back to its configured path instead.
func (a *App) Pull(ctx context.Context, names []string) (*storage.SyncResult, error) {
	syncer, err := a.syncer(ctx)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		keys, err := syncer.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			names = append(names, path.Base(key))
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(a.out, "nothing to pull")
		return &storage.SyncResult{}, nil
	}

	histBase := ""
	if a.cfg.Bench.HistoryFile != "" {
		histBase = filepath.Base(a.cfg.Bench.HistoryFile)
	}
	var snaps, history []string
	for _, name := range names {
		if name != "" && name == histBase {
			history = append(history, name)
		} else {
			snaps = append(snaps, name)
		}
	}

	res := &storage.SyncResult{}
	batches := []struct {
		names []string
		dest  string
	}{
		{snaps, a.cfg.Snapshot.Dir},
		{history, filepath.Dir(a.cfg.Bench.HistoryFile)},
	}
	for _, b := range batches {
		if len(b.names) == 0 {
			continue
		}
		r, err := syncer.Pull(ctx, b.names, b.dest)
		if r != nil {
			res.Transferred = append(res.Transferred, r.Transferred...)
			for name, objErr := range r.Errors {
				if res.Errors == nil {
					res.Errors = make(map[string]error)
				}
				res.Errors[name] = objErr
			}
		}
		if err != nil {
			return res, err
		}
	}
	if res.Failed() {
		return res, transferError("pull", res)
	}

	fmt.Fprintf(a.out, "pulled %d files\n", len(res.Transferred))
	return res, nil
}

// syncer builds the object storage backend on demand.
func (a *App) syncer(ctx context.Context) (*storage.Syncer, error) {
	var backend storage.ObjectStorage
	var err error
	switch a.cfg.Sync.Backend {
	case "local":
		backend, err = storage.NewLocalStorage(a.cfg.Sync.LocalDir)
	case "s3":
		backend, err = storage.NewS3Storage(ctx, a.cfg.Sync.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Sync.S3.Region,
			Endpoint:     a.cfg.Sync.S3.Endpoint,
			UsePathStyle: a.cfg.Sync.S3.UsePathStyle,
		})
	default:
		return nil, rerrors.NewValidationError(rerrors.CodeInvalidArgument,
			fmt.Sprintf("app: unsupported storage backend %q", a.cfg.Sync.Backend))
	}
	if err != nil {
		return nil, rerrors.NewConnectivityError(rerrors.CodeConnectFailed,
			"app: storage backend unavailable", err)
	}

	log.Printf("app: storage backend ready: type=%s prefix=%s", a.cfg.Sync.Backend, a.cfg.Sync.Prefix)
	return storage.NewSyncer(backend, a.cfg.Sync.Prefix, a.cfg.Sync.Concurrency), nil
}

// transferError folds per-object sync failures into one connectivity
// error naming the objects.
func transferError(op string, res *storage.SyncResult) error {
	names := make([]string, 0, len(res.Errors))
	for name := range res.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	return rerrors.NewConnectivityError(rerrors.CodeConnectFailed,
		fmt.Sprintf("app: %s failed for %d objects", op, len(names)),
		res.Errors[names[0]]).
		WithDetails(map[string]interface{}{"objects": names})
}

// snapshotFiles lists the snapshot payloads and manifests in a directory.
func snapshotFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.jsonl.sz", "*.manifest.json"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("app: failed to scan snapshot directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}
