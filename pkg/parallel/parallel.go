// pkg/parallel/parallel.go - bounded-wave parallel execution of independent work items.
//
// Bulk operations during an image build (deleting leftover files, applying
// registry tweak sets, removing provisioned packages) consist of many
// independent side-effecting items. This package runs them in waves sized to
// a concurrency limit: waves execute sequentially, items within a wave run
// concurrently, and one item's failure never aborts the rest. Exactly one
// result is produced per submitted item, in submission order.

package parallel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
)

// EnvMaxParallel is the environment variable consulted when no explicit
// concurrency override is configured.
const EnvMaxParallel = "MAX_PARALLEL_JOBS"

// MinParallel is the hard floor for the resolved concurrency limit.
const MinParallel = 2

// Outcome classifies the result of one work item.
type Outcome int

const (
	Succeeded Outcome = iota
	Skipped
	Failed
	TimedOut
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Result is the recorded outcome of one work item's execution.
type Result struct {
	Name    string  // item identity (path, registry value, or command label)
	Outcome Outcome
	Output  string // captured tool output, if any
	Err     error  // failure detail; nil unless Outcome is Failed or TimedOut
}

// ErrSkipped is returned by a task to report that its work was legitimately
// absent and nothing was done. It is recorded as Skipped, not Failed.
var ErrSkipped = errors.New("nothing to do")

// Task is one independent, side-effecting unit of work.
type Task interface {
	// Name identifies the item in results and logs.
	Name() string
	// Execute performs the work. Returning ErrSkipped records the item as
	// Skipped; any other error records it as Failed.
	Execute(ctx context.Context) (string, error)
}

// Config carries the runner settings. The zero value auto-detects the
// concurrency limit and applies no per-item timeout.
type Config struct {
	// MaxParallel bounds simultaneously executing items. Values <= 0 resolve
	// via EnvMaxParallel and then the logical CPU count.
	MaxParallel int
	// PerItemTimeout bounds one item's execution; zero means no limit beyond
	// whatever the external tool imposes on itself.
	PerItemTimeout time.Duration
}

// Limit resolves the concurrency limit for a batch. Resolution order:
// explicit override when > 0, then the MAX_PARALLEL_JOBS environment
// variable, then 80% of the logical processor count. The result is never
// below MinParallel.
func Limit(override int) int {
	if override > 0 {
		return override
	}

	if env := os.Getenv(EnvMaxParallel); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			return parsed
		}
	}

	count, err := cpu.Counts(true)
	if err != nil || count <= 0 {
		count = runtime.NumCPU()
	}

	limit := count * 8 / 10
	if limit < MinParallel {
		limit = MinParallel
	}
	return limit
}

// Runner executes batches of tasks with bounded-wave parallelism. A runner is
// constructed per invocation and holds no state across Run calls.
type Runner struct {
	limit   int
	timeout time.Duration
}

// NewRunner creates a runner with the resolved concurrency limit.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		limit:   Limit(cfg.MaxParallel),
		timeout: cfg.PerItemTimeout,
	}
}

// Limit returns the resolved concurrency limit.
func (r *Runner) Limit() int {
	return r.limit
}

// WaveBounds partitions total items into contiguous [start, end) waves of at
// most limit items each.
func WaveBounds(total, limit int) [][2]int {
	if total <= 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	waves := make([][2]int, 0, (total+limit-1)/limit)
	for start := 0; start < total; start += limit {
		end := start + limit
		if end > total {
			end = total
		}
		waves = append(waves, [2]int{start, end})
	}
	return waves
}

// WaveCount returns the number of waves needed for total items.
func WaveCount(total, limit int) int {
	return len(WaveBounds(total, limit))
}

// Run executes all tasks and returns one result per task, in input order.
// Waves run back to back: every item of a wave must finish before the next
// wave starts. A slow item stalls its own wave only. Item failures are
// contained; Run itself never fails, and an empty task list yields an empty
// result set.
func (r *Runner) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	for _, wave := range WaveBounds(len(tasks), r.limit) {
		g := new(errgroup.Group)
		for i := wave[0]; i < wave[1]; i++ {
			i := i
			g.Go(func() error {
				// One result slot per item; no shared appends to synchronize.
				results[i] = r.runOne(ctx, tasks[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

// runOne executes a single task with the per-item timeout and converts
// errors, timeouts, and panics into a Result.
func (r *Runner) runOne(ctx context.Context, task Task) (res Result) {
	res.Name = task.Name()

	defer func() {
		if p := recover(); p != nil {
			res.Outcome = Failed
			res.Err = fmt.Errorf("task panicked: %v", p)
		}
	}()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, err := task.Execute(runCtx)
	res.Output = output

	switch {
	case err == nil:
		res.Outcome = Succeeded
	case errors.Is(err, ErrSkipped):
		res.Outcome = Skipped
	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded:
		res.Outcome = TimedOut
		res.Err = err
	default:
		res.Outcome = Failed
		res.Err = err
	}
	return res
}

// RemovePaths removes each path with bounded concurrency. Missing paths are
// Skipped; removal errors are Failed without affecting other items.
func (r *Runner) RemovePaths(ctx context.Context, paths []string, recursive bool) []Result {
	tasks := make([]Task, len(paths))
	for i, path := range paths {
		tasks[i] = &RemovalTask{Path: path, Recursive: recursive}
	}
	return r.Run(ctx, tasks)
}

// ApplyRegistryWrites applies each registry write with bounded concurrency.
// Success or failure of an individual write is determined by the registry
// tool's exit status.
func (r *Runner) ApplyRegistryWrites(ctx context.Context, writes []RegistryWrite) []Result {
	tasks := make([]Task, len(writes))
	for i, write := range writes {
		tasks[i] = &RegistryWriteTask{Write: write}
	}
	return r.Run(ctx, tasks)
}

// RunCommands executes arbitrary command tasks with bounded concurrency.
func (r *Runner) RunCommands(ctx context.Context, commands []CommandTask) []Result {
	tasks := make([]Task, len(commands))
	for i := range commands {
		tasks[i] = &commands[i]
	}
	return r.Run(ctx, tasks)
}

// Tally folds results into summary counts. Timed-out items count as failed.
func Tally(results []Result) (succeeded, skipped, failed int) {
	for _, res := range results {
		switch res.Outcome {
		case Succeeded:
			succeeded++
		case Skipped:
			skipped++
		default:
			failed++
		}
	}
	return succeeded, skipped, failed
}
