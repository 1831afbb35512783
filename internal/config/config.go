// Package config provides unified configuration for the rosterbench CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config holds the unified configuration for all rosterbench commands.
type Config struct {
	// DataDir is the base directory for all local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Generate configuration for synthetic records
	Generate GenerateConfig `json:"generate" yaml:"generate"`

	// Load configuration for batched writes
	Load LoadConfig `json:"load" yaml:"load"`

	// Bench configuration for latency measurement
	Bench BenchConfig `json:"bench" yaml:"bench"`

	// Index configuration
	Index IndexConfig `json:"index" yaml:"index"`

	// Snapshot configuration for dataset files
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Sync configuration for object storage
	Sync SyncConfig `json:"sync" yaml:"sync"`
}

// DatabaseConfig holds SQL backend configuration.
type DatabaseConfig struct {
	// Driver is the SQL backend: sqlite, postgres
	Driver Driver `json:"driver" yaml:"driver"`

	// SQLitePath is the database file path (for sqlite driver)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// Postgres configuration (for postgres driver)
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DBName   string `json:"dbname" yaml:"dbname"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// GenerateConfig holds synthetic-record generation configuration.
type GenerateConfig struct {
	// Seed for the randomness source; 0 derives a seed from the clock
	Seed int64 `json:"seed" yaml:"seed"`

	// Count is the number of random records for bulk-load
	Count int `json:"count" yaml:"count"`

	// SpecialCount is the number of fixed-pool records appended to bulk-load
	SpecialCount int `json:"special_count" yaml:"special_count"`
}

// LoadConfig holds batched-write configuration.
type LoadConfig struct {
	// BatchSize is the maximum rows per transaction
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// RetryAttempts caps how many times a chunk is retried after transient failures
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`

	// BackoffBase is the first retry delay; doubled per attempt
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base"`

	// BackoffMax caps the retry delay
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max"`

	// ProgressEvery is the chunk interval between progress log lines
	ProgressEvery int `json:"progress_every" yaml:"progress_every"`
}

// BenchConfig holds latency-measurement configuration.
type BenchConfig struct {
	// Repeats is the number of timed runs per benchmark
	Repeats int `json:"repeats" yaml:"repeats"`

	// Timeout is the per-run maximum duration
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// HistoryFile is the benchmark history path (JSONL)
	HistoryFile string `json:"history_file" yaml:"history_file"`
}

// IndexConfig holds index-management configuration.
type IndexConfig struct {
	// Columns is the default column set for optimize
	Columns []string `json:"columns" yaml:"columns"`
}

// SnapshotConfig holds dataset snapshot configuration.
type SnapshotConfig struct {
	// Dir is the directory for snapshot files
	Dir string `json:"dir" yaml:"dir"`
}

// SyncConfig holds object-storage sync configuration.
type SyncConfig struct {
	// Backend is the object storage type: local, s3
	Backend string `json:"backend" yaml:"backend"`

	// LocalDir is the mirror directory (for local backend)
	LocalDir string `json:"local_dir" yaml:"local_dir"`

	// Prefix is the object path prefix
	Prefix string `json:"prefix" yaml:"prefix"`

	// Concurrency is the number of parallel transfers
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// S3 configuration (for s3 backend)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 object storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/rosterbench",
		Database: DatabaseConfig{
			Driver:     DriverSQLite,
			SQLitePath: "",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Generate: GenerateConfig{
			Seed:         0,
			Count:        1000000,
			SpecialCount: 100,
		},
		Load: LoadConfig{
			BatchSize:     1000,
			RetryAttempts: 5,
			BackoffBase:   100 * time.Millisecond,
			BackoffMax:    5 * time.Second,
			ProgressEvery: 50,
		},
		Bench: BenchConfig{
			Repeats:     5,
			Timeout:     30 * time.Second,
			HistoryFile: "",
		},
		Index: IndexConfig{
			Columns: []string{"full_name", "birth_date", "gender"},
		},
		Snapshot: SnapshotConfig{
			Dir: "",
		},
		Sync: SyncConfig{
			Backend:     "local",
			LocalDir:    "",
			Prefix:      "rosterbench",
			Concurrency: 4,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/rosterbench"
	}

	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = filepath.Join(c.DataDir, "roster.db")
	}

	if c.Bench.HistoryFile == "" {
		c.Bench.HistoryFile = filepath.Join(c.DataDir, "bench_history.jsonl")
	}

	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = filepath.Join(c.DataDir, "snapshots")
	}

	if c.Sync.LocalDir == "" {
		c.Sync.LocalDir = filepath.Join(c.DataDir, "remote")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		// Valid drivers
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Database.Driver == DriverPostgres {
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}
		if c.Database.Postgres.DBName == "" {
			return fmt.Errorf("postgres.dbname is required when driver is postgres")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("postgres.user is required when driver is postgres")
		}
	}

	if c.Generate.Count < 0 {
		return fmt.Errorf("generate.count must not be negative, got %d", c.Generate.Count)
	}
	if c.Generate.SpecialCount < 0 {
		return fmt.Errorf("generate.special_count must not be negative, got %d", c.Generate.SpecialCount)
	}

	if c.Load.BatchSize <= 0 {
		return fmt.Errorf("load.batch_size must be positive, got %d", c.Load.BatchSize)
	}
	if c.Load.RetryAttempts < 0 {
		return fmt.Errorf("load.retry_attempts must not be negative, got %d", c.Load.RetryAttempts)
	}

	if c.Bench.Repeats <= 0 {
		return fmt.Errorf("bench.repeats must be positive, got %d", c.Bench.Repeats)
	}
	if c.Bench.Timeout <= 0 {
		return fmt.Errorf("bench.timeout must be positive, got %s", c.Bench.Timeout)
	}

	if len(c.Index.Columns) == 0 {
		return fmt.Errorf("index.columns must not be empty")
	}

	if c.Sync.Backend != "local" && c.Sync.Backend != "s3" {
		return fmt.Errorf("invalid sync backend: %s (must be local or s3)", c.Sync.Backend)
	}
	if c.Sync.Backend == "s3" && c.Sync.S3.Bucket == "" {
		return fmt.Errorf("sync.s3.bucket is required when sync backend is s3")
	}

	return nil
}

// PostgresDSN returns the lib/pq keyword connection string.
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	parts := []string{
		fmt.Sprintf("host=%s", pg.Host),
		fmt.Sprintf("port=%d", pg.Port),
		fmt.Sprintf("dbname=%s", pg.DBName),
		fmt.Sprintf("user=%s", pg.User),
	}
	if pg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", pg.Password))
	}
	if pg.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", pg.SSLMode))
	}
	return strings.Join(parts, " ")
}

// LoadEnvFile loads environment variables from a dotenv file so that
// LoadFromEnv can pick them up. A missing default file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Variables use the ROSTERBENCH_ prefix. The bare DB_NAME, DB_USER,
// DB_PASS, and DB_HOST names are accepted as aliases for the Postgres
// settings; prefixed names win.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ROSTERBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Database configuration
	if v := os.Getenv("ROSTERBENCH_DRIVER"); v != "" {
		cfg.Database.Driver = Driver(v)
	}
	if v := os.Getenv("ROSTERBENCH_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Postgres.Host = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Postgres.DBName = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.Postgres.User = v
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		cfg.Database.Postgres.Password = v
	}
	if v := os.Getenv("ROSTERBENCH_PG_HOST"); v != "" {
		cfg.Database.Postgres.Host = v
	}
	if v := os.Getenv("ROSTERBENCH_PG_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Postgres.Port)
	}
	if v := os.Getenv("ROSTERBENCH_PG_DBNAME"); v != "" {
		cfg.Database.Postgres.DBName = v
	}
	if v := os.Getenv("ROSTERBENCH_PG_USER"); v != "" {
		cfg.Database.Postgres.User = v
	}
	if v := os.Getenv("ROSTERBENCH_PG_PASSWORD"); v != "" {
		cfg.Database.Postgres.Password = v
	}
	if v := os.Getenv("ROSTERBENCH_PG_SSLMODE"); v != "" {
		cfg.Database.Postgres.SSLMode = v
	}

	// Generate configuration
	if v := os.Getenv("ROSTERBENCH_SEED"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Generate.Seed)
	}
	if v := os.Getenv("ROSTERBENCH_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Generate.Count)
	}
	if v := os.Getenv("ROSTERBENCH_SPECIAL_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Generate.SpecialCount)
	}

	// Load configuration
	if v := os.Getenv("ROSTERBENCH_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Load.BatchSize)
	}
	if v := os.Getenv("ROSTERBENCH_RETRY_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Load.RetryAttempts)
	}

	// Bench configuration
	if v := os.Getenv("ROSTERBENCH_BENCH_REPEATS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.Repeats)
	}
	if v := os.Getenv("ROSTERBENCH_BENCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bench.Timeout = d
		}
	}

	// Sync configuration
	if v := os.Getenv("ROSTERBENCH_SYNC_BACKEND"); v != "" {
		cfg.Sync.Backend = v
	}
	if v := os.Getenv("ROSTERBENCH_S3_BUCKET"); v != "" {
		cfg.Sync.S3.Bucket = v
	}
	if v := os.Getenv("ROSTERBENCH_S3_REGION"); v != "" {
		cfg.Sync.S3.Region = v
	}
	if v := os.Getenv("ROSTERBENCH_S3_ENDPOINT"); v != "" {
		cfg.Sync.S3.Endpoint = v
	}
	if v := os.Getenv("ROSTERBENCH_S3_PATH_STYLE"); v != "" {
		cfg.Sync.S3.UsePathStyle = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Snapshot.Dir,
	}
	if c.Sync.Backend == "local" {
		dirs = append(dirs, c.Sync.LocalDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
