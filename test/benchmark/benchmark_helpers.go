package benchmark

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"github.com/rosterbench/rosterbench/internal/storage"
)

// benchStorage returns the object storage backend for the sync
// benchmarks. ROSTERBENCH_SYNC_BACKEND=s3 (from the environment or
// ../../.env) runs against a real bucket; everything else uses a local
// temp directory.
func benchStorage(b *testing.B, name string) (storage.ObjectStorage, func()) {
	b.Helper()
	_ = godotenv.Load("../../.env")

	if os.Getenv("ROSTERBENCH_SYNC_BACKEND") == "s3" {
		bucket := os.Getenv("ROSTERBENCH_S3_BUCKET")
		if bucket == "" {
			b.Fatal("ROSTERBENCH_S3_BUCKET is required for s3 benchmarks")
		}

		st, err := storage.NewS3Storage(context.Background(), bucket, storage.S3Config{
			Region:       os.Getenv("ROSTERBENCH_S3_REGION"),
			Endpoint:     os.Getenv("ROSTERBENCH_S3_ENDPOINT"),
			UsePathStyle: os.Getenv("ROSTERBENCH_S3_PATH_STYLE") == "true",
		})
		if err != nil {
			b.Fatalf("failed to initialize s3 storage: %v", err)
		}

		b.Logf("benchmarking against s3 bucket %s", bucket)
		return st, func() {}
	}

	dir, err := os.MkdirTemp("", "rosterbench-bench-"+name+"-*")
	if err != nil {
		b.Fatal(err)
	}
	st, err := storage.NewLocalStorage(dir)
	if err != nil {
		b.Fatal(err)
	}
	return st, func() { os.RemoveAll(dir) }
}
