// Package main implements the rosterbench binary: roster generation,
// batched loading, and query benchmarking over a relational store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rosterbench/rosterbench/internal/app"
	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return rerrors.ExitValidation
	}

	command, rest := args[0], args[1:]
	switch command {
	case "help", "-h", "-help", "--help":
		usage()
		return rerrors.ExitOK
	case "version", "-version", "--version":
		fmt.Printf("rosterbench version %s (commit: %s)\n", version, commit)
		return rerrors.ExitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, command, rest); err != nil {
		log.Printf("rosterbench %s: %v", command, err)
		return rerrors.ExitCode(err)
	}
	return rerrors.ExitOK
}

func dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "create-schema":
		return cmdCreateSchema(ctx, args)
	case "insert-one":
		return cmdInsertOne(ctx, args)
	case "list-distinct":
		return cmdListDistinct(ctx, args)
	case "bulk-load":
		return cmdBulkLoad(ctx, args)
	case "benchmark":
		return cmdBenchmark(ctx, args)
	case "optimize":
		return cmdOptimize(ctx, args)
	case "criteria":
		return cmdCriteria(ctx, args)
	case "flush":
		return cmdFlush(ctx, args)
	case "snapshot":
		return cmdSnapshot(ctx, args)
	case "push":
		return cmdPush(ctx, args)
	case "pull":
		return cmdPull(ctx, args)
	default:
		usage()
		return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
			fmt.Sprintf("unknown command %q", command))
	}
}

// commonFlags are accepted by every command and override the loaded
// configuration in flag > environment > file order.
type commonFlags struct {
	configFile string
	envFile    string
	dataDir    string
	driver     string
	sqlitePath string
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&c.envFile, "env", "", "Path to a dotenv file (default .env when present)")
	fs.StringVar(&c.dataDir, "data-dir", "", "Base directory for all data files")
	fs.StringVar(&c.driver, "driver", "", "Database driver: sqlite, postgres")
	fs.StringVar(&c.sqlitePath, "sqlite", "", "SQLite database path")
	return c
}

func (c *commonFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return nil, rerrors.WrapValidationError(rerrors.CodeInvalidArgument, "failed to load env file", err)
	}

	var cfg *config.Config
	var err error
	if c.configFile != "" {
		cfg, err = config.LoadFromFile(c.configFile)
		if err != nil {
			return nil, rerrors.WrapValidationError(rerrors.CodeInvalidArgument, "failed to load config file", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.driver != "" {
		cfg.Database.Driver = config.Driver(c.driver)
	}
	if c.sqlitePath != "" {
		cfg.Database.SQLitePath = c.sqlitePath
	}
	return cfg, nil
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return rerrors.WrapValidationError(rerrors.CodeInvalidArgument, "invalid arguments", err)
	}
	return nil
}

// openApp builds and opens the application; the returned func closes it.
func openApp(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Open(ctx); err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			log.Printf("[WARN] rosterbench: close failed: %v", err)
		}
	}, nil
}

func cmdCreateSchema(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-schema", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	return a.CreateSchema(ctx)
}

func cmdInsertOne(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("insert-one", flag.ContinueOnError)
	common := registerCommon(fs)
	name := fs.String("name", "", "Full name in \"Surname Firstname Patronymic\" form")
	birth := fs.String("birth", "", "Birth date (YYYY-MM-DD)")
	gender := fs.String("gender", "", "Gender: Male or Female")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *name == "" || *birth == "" || *gender == "" {
		return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
			"insert-one requires -name, -birth, and -gender")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.InsertOne(ctx, *name, *birth, *gender)
	return err
}

func cmdListDistinct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-distinct", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.ListDistinct(ctx)
	return err
}

func cmdBulkLoad(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bulk-load", flag.ContinueOnError)
	common := registerCommon(fs)
	count := fs.Int("count", -1, "Number of random records (defaults to configuration)")
	special := fs.Int("special", -1, "Number of fixed-pool records (defaults to configuration)")
	seed := fs.Int64("seed", 0, "Generator seed (0 derives one from the clock)")
	batchSize := fs.Int("batch", 0, "Rows per transaction (defaults to configuration)")
	fromSnapshot := fs.String("from-snapshot", "", "Load records from a snapshot base path")
	snapshotOut := fs.String("snapshot-out", "", "Capture the generated stream to a snapshot base path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *count >= 0 {
		cfg.Generate.Count = *count
	}
	if *special >= 0 {
		cfg.Generate.SpecialCount = *special
	}
	if *seed != 0 {
		cfg.Generate.Seed = *seed
	}
	if *batchSize > 0 {
		cfg.Load.BatchSize = *batchSize
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.BulkLoad(ctx, app.BulkLoadOptions{
		FromSnapshot: *fromSnapshot,
		SnapshotOut:  *snapshotOut,
	})
	return err
}

func cmdBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	common := registerCommon(fs)
	kind := fs.String("kind", "distinct", "Workload to measure: distinct or criteria")
	repeats := fs.Int("repeats", 0, "Timed runs per benchmark (defaults to configuration)")
	timeout := fs.Duration("timeout", 0, "Per-run timeout (defaults to configuration)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *repeats > 0 {
		cfg.Bench.Repeats = *repeats
	}
	if *timeout > 0 {
		cfg.Bench.Timeout = *timeout
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Benchmark(ctx, *kind)
	return err
}

func cmdOptimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	common := registerCommon(fs)
	name := fs.String("name", "", "Index name (derived from the columns when empty)")
	columns := fs.String("columns", "", "Comma-separated column list (defaults to configuration)")
	kind := fs.String("kind", "", "Workload to compare: distinct or criteria (default distinct)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Optimize(ctx, *name, splitColumns(*columns), *kind)
	return err
}

func cmdCriteria(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("criteria", flag.ContinueOnError)
	common := registerCommon(fs)
	gender := fs.String("gender", "", "Gender to match (default Male)")
	prefix := fs.String("prefix", "", "Surname prefix to match (default F)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Criteria(ctx, *gender, *prefix)
	return err
}

func cmdFlush(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("flush", flag.ContinueOnError)
	common := registerCommon(fs)
	yes := fs.Bool("yes", false, "Confirm deletion of all rows")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if !*yes {
		return rerrors.NewValidationError(rerrors.CodeInvalidArgument,
			"flush deletes every row; pass -yes to confirm")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Flush(ctx)
	return err
}

func cmdSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	common := registerCommon(fs)
	out := fs.String("out", "", "Snapshot base path (derived under the snapshot directory when empty)")
	count := fs.Int("count", -1, "Number of random records (defaults to configuration)")
	special := fs.Int("special", -1, "Number of fixed-pool records (defaults to configuration)")
	seed := fs.Int64("seed", 0, "Generator seed (0 derives one from the clock)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *count >= 0 {
		cfg.Generate.Count = *count
	}
	if *special >= 0 {
		cfg.Generate.SpecialCount = *special
	}
	if *seed != 0 {
		cfg.Generate.Seed = *seed
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Snapshot(ctx, *out)
	return err
}

func cmdPush(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	common := registerCommon(fs)
	snapshot := fs.String("snapshot", "", "Snapshot base path (default: every snapshot in the snapshot directory)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Push(ctx, *snapshot)
	return err
}

func cmdPull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	a, done, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	_, err = a.Pull(ctx, fs.Args())
	return err
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func usage() {
	fmt.Fprintf(os.Stderr, "rosterbench - roster generation and query benchmarking\n\n")
	fmt.Fprintf(os.Stderr, "Usage: rosterbench <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  create-schema   Create the persons table\n")
	fmt.Fprintf(os.Stderr, "  insert-one      Insert a single person\n")
	fmt.Fprintf(os.Stderr, "  list-distinct   List unique rows by name and birth date\n")
	fmt.Fprintf(os.Stderr, "  bulk-load       Load generated records in batched transactions\n")
	fmt.Fprintf(os.Stderr, "  benchmark       Measure a query workload\n")
	fmt.Fprintf(os.Stderr, "  optimize        Ensure an index and compare against the baseline\n")
	fmt.Fprintf(os.Stderr, "  criteria        Query by gender and surname prefix\n")
	fmt.Fprintf(os.Stderr, "  flush           Delete every row (requires -yes)\n")
	fmt.Fprintf(os.Stderr, "  snapshot        Generate records into a compressed snapshot\n")
	fmt.Fprintf(os.Stderr, "  push            Upload snapshots to object storage\n")
	fmt.Fprintf(os.Stderr, "  pull            Download snapshots from object storage\n")
	fmt.Fprintf(os.Stderr, "  version         Show version information\n")
	fmt.Fprintf(os.Stderr, "\nRun 'rosterbench <command> -h' for command options.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  rosterbench create-schema -data-dir /data/rosterbench\n")
	fmt.Fprintf(os.Stderr, "  rosterbench insert-one -name \"Zvanov Petr Sergeevich\" -birth 2009-07-12 -gender Female\n")
	fmt.Fprintf(os.Stderr, "  rosterbench bulk-load -count 1000000 -special 100\n")
	fmt.Fprintf(os.Stderr, "  rosterbench benchmark -kind criteria\n")
	fmt.Fprintf(os.Stderr, "  rosterbench optimize\n")
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  ROSTERBENCH_DATA_DIR      Base directory for data files\n")
	fmt.Fprintf(os.Stderr, "  ROSTERBENCH_DRIVER        Database driver (sqlite, postgres)\n")
	fmt.Fprintf(os.Stderr, "  ROSTERBENCH_PG_*          PostgreSQL connection settings\n")
	fmt.Fprintf(os.Stderr, "  ROSTERBENCH_SYNC_BACKEND  Object storage backend (local, s3)\n")
}
