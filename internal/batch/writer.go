// Package batch turns a record stream into sequential bounded-size
// transactions. Each chunk commits atomically; transient connectivity
// failures are retried with exponential backoff before the run aborts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/pkg/types"
)

// Defaults for chunking and retry policy.
const (
	DefaultBatchSize     = 1000
	DefaultRetryAttempts = 5
	DefaultBackoffBase   = 100 * time.Millisecond
	DefaultBackoffMax    = 5 * time.Second
	DefaultProgressEvery = 50
)

// ChunkInserter persists one chunk of records in a single transaction.
// *store.Store satisfies this.
type ChunkInserter interface {
	InsertChunk(ctx context.Context, records []types.Person) error
}

// RecordSource yields records one at a time until exhausted.
// *generator.Stream satisfies this.
type RecordSource interface {
	Next() (types.Person, bool)
}

// Options controls chunk sizing and the retry policy.
type Options struct {
	BatchSize     int
	RetryAttempts int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	ProgressEvery int
}

// OptionsFromConfig maps the load configuration onto writer options.
func OptionsFromConfig(cfg config.LoadConfig) Options {
	return Options{
		BatchSize:     cfg.BatchSize,
		RetryAttempts: cfg.RetryAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		ProgressEvery: cfg.ProgressEvery,
	}
}

// Result reports what a write run accomplished. Chunks counts attempted
// transactions; FailedChunk is the 1-based ordinal of the first chunk
// that could not commit, or zero when every chunk succeeded. Committed
// rows stay committed even when a later chunk fails.
type Result struct {
	Committed   int
	Chunks      int
	FailedChunk int
}

// Writer chunks a record stream into transactions.
type Writer struct {
	inserter ChunkInserter
	opts     Options
}

// New returns a writer over the given inserter. Zero or negative option
// fields fall back to the defaults.
func New(inserter ChunkInserter, opts Options) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.ProgressEvery < 0 {
		opts.ProgressEvery = 0
	}
	return &Writer{inserter: inserter, opts: opts}
}

// Write drains the source into sequential chunk transactions. On failure
// it returns the partial result alongside the error; the error carries
// the failed chunk ordinal and committed count in its details.
func (w *Writer) Write(ctx context.Context, src RecordSource) (Result, error) {
	var res Result
	buf := make([]types.Person, 0, w.opts.BatchSize)

	for {
		buf = buf[:0]
		for len(buf) < w.opts.BatchSize {
			p, ok := src.Next()
			if !ok {
				break
			}
			buf = append(buf, p)
		}
		if len(buf) == 0 {
			break
		}

		res.Chunks++
		if err := w.insertWithRetry(ctx, buf); err != nil {
			res.FailedChunk = res.Chunks
			return res, withChunkDetails(err, res)
		}
		res.Committed += len(buf)

		if w.opts.ProgressEvery > 0 && res.Chunks%w.opts.ProgressEvery == 0 {
			log.Printf("batch: committed %d chunks, %d records", res.Chunks, res.Committed)
		}
	}

	return res, nil
}

// WriteSlice is Write over an in-memory record slice.
func (w *Writer) WriteSlice(ctx context.Context, records []types.Person) (Result, error) {
	return w.Write(ctx, NewSliceSource(records))
}

// insertWithRetry attempts one chunk transaction, retrying transient
// connectivity failures with exponential backoff. Anything else fails
// fast on the first attempt.
func (w *Writer) insertWithRetry(ctx context.Context, records []types.Person) error {
	var lastErr error
	for attempt := 0; attempt < w.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := w.backoff(attempt)
			log.Printf("[WARN] batch: chunk attempt %d/%d failed, retrying in %v: %v",
				attempt, w.opts.RetryAttempts, backoff, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = w.inserter.InsertChunk(ctx, records)
		if lastErr == nil {
			return nil
		}
		if !rerrors.IsRetryable(lastErr) {
			return lastErr
		}
	}

	return rerrors.NewConnectivityError(rerrors.CodeRetryExhausted,
		fmt.Sprintf("batch: chunk failed after %d attempts", w.opts.RetryAttempts), lastErr)
}

// backoff doubles per attempt from the base, capped at the maximum.
func (w *Writer) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * w.opts.BackoffBase
	if d > w.opts.BackoffMax {
		d = w.opts.BackoffMax
	}
	return d
}

// withChunkDetails annotates a structured error with run accounting.
func withChunkDetails(err error, res Result) error {
	var re *rerrors.RosterError
	if errors.As(err, &re) {
		return re.WithDetails(map[string]interface{}{
			"failed_chunk": res.FailedChunk,
			"committed":    res.Committed,
		})
	}
	return err
}

// Concat chains record sources into one: each is drained in order.
func Concat(sources ...RecordSource) RecordSource {
	return &concatSource{sources: sources}
}

type concatSource struct {
	sources []RecordSource
}

func (c *concatSource) Next() (types.Person, bool) {
	for len(c.sources) > 0 {
		if p, ok := c.sources[0].Next(); ok {
			return p, true
		}
		c.sources = c.sources[1:]
	}
	return types.Person{}, false
}

// sliceSource adapts an in-memory slice to the RecordSource interface.
type sliceSource struct {
	records []types.Person
	next    int
}

// NewSliceSource wraps a slice as a record source.
func NewSliceSource(records []types.Person) RecordSource {
	return &sliceSource{records: records}
}

func (s *sliceSource) Next() (types.Person, bool) {
	if s.next >= len(s.records) {
		return types.Person{}, false
	}
	p := s.records[s.next]
	s.next++
	return p, true
}
