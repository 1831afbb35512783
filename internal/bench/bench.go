// Package bench measures query latency over repeated sequential runs.
// Every run of a workload executes the same query against the same data;
// the runner reports min, mean, and max wall-clock durations.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
)

// Defaults for the measurement loop.
const (
	DefaultRepeats = 5
	DefaultTimeout = 30 * time.Second
)

// Workload is a named query to measure. Run executes the query once and
// reports how many rows it produced.
type Workload struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Options controls repeat count and the per-run timeout.
type Options struct {
	Repeats int
	Timeout time.Duration
}

// OptionsFromConfig maps the bench configuration onto runner options.
func OptionsFromConfig(cfg config.BenchConfig) Options {
	return Options{
		Repeats: cfg.Repeats,
		Timeout: cfg.Timeout,
	}
}

// Stats summarizes the timed runs of one workload. On a timeout the
// stats cover only the runs that completed.
type Stats struct {
	Runs      int
	Rows      int
	Min       time.Duration
	Mean      time.Duration
	Max       time.Duration
	Durations []time.Duration
}

// Runner executes workloads sequentially and times each run.
type Runner struct {
	opts Options
}

// New returns a runner. Zero or negative option fields fall back to the
// defaults.
func New(opts Options) *Runner {
	if opts.Repeats <= 0 {
		opts.Repeats = DefaultRepeats
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Runner{opts: opts}
}

// Measure runs the workload the configured number of times, one run at a
// time, each under its own timeout. A run that exceeds the timeout aborts
// the measurement and returns a timeout error alongside the stats of the
// completed runs.
func (r *Runner) Measure(ctx context.Context, w Workload) (Stats, error) {
	durations := make([]time.Duration, 0, r.opts.Repeats)
	rows := 0

	for i := 0; i < r.opts.Repeats; i++ {
		runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		start := time.Now()
		n, err := w.Run(runCtx)
		elapsed := time.Since(start)
		cancel()

		if err != nil {
			stats := Compute(durations)
			stats.Rows = rows
			if isTimeout(err) && ctx.Err() == nil {
				return stats, rerrors.NewTimeoutError(
					fmt.Sprintf("bench: %s run %d/%d exceeded %v", w.Name, i+1, r.opts.Repeats, r.opts.Timeout),
					err).WithDetails(map[string]interface{}{
					"completed_runs": len(durations),
					"repeats":        r.opts.Repeats,
				})
			}
			return stats, err
		}

		rows = n
		durations = append(durations, elapsed)
		log.Printf("bench: %s run %d/%d took %v (%d rows)", w.Name, i+1, r.opts.Repeats, elapsed, n)
	}

	stats := Compute(durations)
	stats.Rows = rows
	return stats, nil
}

// isTimeout recognizes a per-run deadline hit, whether it surfaces as a
// raw context error or already classified by the store.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		rerrors.GetCategory(err) == rerrors.ErrCategoryTimeout
}

// Compute derives summary stats from raw run durations.
func Compute(durations []time.Duration) Stats {
	stats := Stats{Runs: len(durations), Durations: durations}
	if len(durations) == 0 {
		return stats
	}

	stats.Min = durations[0]
	stats.Max = durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < stats.Min {
			stats.Min = d
		}
		if d > stats.Max {
			stats.Max = d
		}
		sum += d
	}
	stats.Mean = sum / time.Duration(len(durations))
	return stats
}

// Speedup reports how many times faster the after stats are by mean.
// Zero means the ratio is undefined.
func Speedup(before, after Stats) float64 {
	if before.Mean <= 0 || after.Mean <= 0 {
		return 0
	}
	return float64(before.Mean) / float64(after.Mean)
}
