package parallel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	t.Run("ExplicitOverride", func(t *testing.T) {
		assert.Equal(t, 7, Limit(7))
		assert.Equal(t, 1, Limit(1))
	})

	t.Run("NonPositiveOverrideNeverBelowFloor", func(t *testing.T) {
		for _, override := range []int{0, -1, -100} {
			got := Limit(override)
			assert.GreaterOrEqual(t, got, MinParallel, "override %d", override)
		}
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv(EnvMaxParallel, "5")
		assert.Equal(t, 5, Limit(0))
	})

	t.Run("EnvironmentIgnoredWhenInvalid", func(t *testing.T) {
		t.Setenv(EnvMaxParallel, "not-a-number")
		assert.GreaterOrEqual(t, Limit(0), MinParallel)

		t.Setenv(EnvMaxParallel, "-3")
		assert.GreaterOrEqual(t, Limit(0), MinParallel)
	})

	t.Run("OverrideBeatsEnvironment", func(t *testing.T) {
		t.Setenv(EnvMaxParallel, "5")
		assert.Equal(t, 3, Limit(3))
	})
}

func TestWaveBounds(t *testing.T) {
	cases := []struct {
		total, limit, waves int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{25, 10, 3},
		{10, 1, 10},
		{3, 100, 1},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d items limit %d", tc.total, tc.limit), func(t *testing.T) {
			waves := WaveBounds(tc.total, tc.limit)
			assert.Len(t, waves, tc.waves)
			assert.Equal(t, tc.waves, WaveCount(tc.total, tc.limit))

			covered := 0
			for _, wave := range waves {
				size := wave[1] - wave[0]
				assert.LessOrEqual(t, size, tc.limit, "no wave may exceed the limit")
				assert.Greater(t, size, 0)
				assert.Equal(t, covered, wave[0], "waves must be contiguous")
				covered = wave[1]
			}
			assert.Equal(t, tc.total, covered)
		})
	}
}

func TestRunResultPerItem(t *testing.T) {
	r := NewRunner(Config{MaxParallel: 3})

	var tasks []Task
	for i := 0; i < 17; i++ {
		label := fmt.Sprintf("task-%02d", i)
		tasks = append(tasks, &CommandTask{Label: label, Fn: func(context.Context) (string, error) {
			return "", nil
		}})
	}

	results := r.Run(context.Background(), tasks)
	require.Len(t, results, len(tasks))

	// Results come back in submission order regardless of scheduling.
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("task-%02d", i), res.Name)
		assert.Equal(t, Succeeded, res.Outcome)
	}
}

func TestRunEmptyInput(t *testing.T) {
	r := NewRunner(Config{MaxParallel: 4})
	assert.Empty(t, r.Run(context.Background(), nil))
	assert.Empty(t, r.RemovePaths(context.Background(), nil, true))
	assert.Empty(t, r.ApplyRegistryWrites(context.Background(), nil))
	assert.Empty(t, r.RunCommands(context.Background(), nil))
}

func TestRunFailureIsolation(t *testing.T) {
	// One failing item in a wave must not prevent its wave mates from
	// completing. Exercised across several batch sizes.
	for _, limit := range []int{2, 3, 8} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			r := NewRunner(Config{MaxParallel: limit})

			tasks := []Task{
				&CommandTask{Label: "ok-1", Fn: func(context.Context) (string, error) { return "done", nil }},
				&CommandTask{Label: "boom", Fn: func(context.Context) (string, error) {
					return "", errors.New("simulated tool failure")
				}},
				&CommandTask{Label: "ok-2", Fn: func(context.Context) (string, error) { return "done", nil }},
				&CommandTask{Label: "absent", Fn: func(context.Context) (string, error) { return "", ErrSkipped }},
			}

			results := r.Run(context.Background(), tasks)
			require.Len(t, results, 4)

			assert.Equal(t, Succeeded, results[0].Outcome)
			assert.Equal(t, Failed, results[1].Outcome)
			assert.ErrorContains(t, results[1].Err, "simulated tool failure")
			assert.Equal(t, Succeeded, results[2].Outcome)
			assert.Equal(t, Skipped, results[3].Outcome)

			succeeded, skipped, failed := Tally(results)
			assert.Equal(t, 2, succeeded)
			assert.Equal(t, 1, skipped)
			assert.Equal(t, 1, failed)
		})
	}
}

func TestRunWavesAreSequential(t *testing.T) {
	const limit = 4
	r := NewRunner(Config{MaxParallel: limit})

	var running, peak int32
	var tasks []Task
	for i := 0; i < limit*3; i++ {
		tasks = append(tasks, &CommandTask{Label: fmt.Sprintf("t%d", i), Fn: func(context.Context) (string, error) {
			now := atomic.AddInt32(&running, 1)
			for {
				prev := atomic.LoadInt32(&peak)
				if now <= prev || atomic.CompareAndSwapInt32(&peak, prev, now) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return "", nil
		}})
	}

	results := r.Run(context.Background(), tasks)
	require.Len(t, results, limit*3)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit),
		"concurrent items must never exceed the wave limit")
}

func TestRunPerItemTimeout(t *testing.T) {
	r := NewRunner(Config{MaxParallel: 2, PerItemTimeout: 25 * time.Millisecond})

	tasks := []Task{
		&CommandTask{Label: "slow", Fn: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
		&CommandTask{Label: "fast", Fn: func(context.Context) (string, error) { return "", nil }},
	}

	results := r.Run(context.Background(), tasks)
	require.Len(t, results, 2)
	assert.Equal(t, TimedOut, results[0].Outcome)
	assert.Equal(t, Succeeded, results[1].Outcome)
}

func TestRunRecoversPanics(t *testing.T) {
	r := NewRunner(Config{MaxParallel: 2})

	tasks := []Task{
		&CommandTask{Label: "panics", Fn: func(context.Context) (string, error) {
			panic("worker blew up")
		}},
		&CommandTask{Label: "fine", Fn: func(context.Context) (string, error) { return "", nil }},
	}

	results := r.Run(context.Background(), tasks)
	require.Len(t, results, 2)
	assert.Equal(t, Failed, results[0].Outcome)
	assert.ErrorContains(t, results[0].Err, "worker blew up")
	assert.Equal(t, Succeeded, results[1].Outcome)
}

func TestRemovePaths(t *testing.T) {
	t.Run("MissingPathIsSkipped", func(t *testing.T) {
		dir := t.TempDir()
		existsA := filepath.Join(dir, "a.txt")
		existsC := filepath.Join(dir, "c.txt")
		require.NoError(t, os.WriteFile(existsA, []byte("a"), 0644))
		require.NoError(t, os.WriteFile(existsC, []byte("c"), 0644))
		missing := filepath.Join(dir, "not-there", "b.txt")

		r := NewRunner(Config{MaxParallel: 2})
		results := r.RemovePaths(context.Background(), []string{existsA, missing, existsC}, false)
		require.Len(t, results, 3)

		assert.Equal(t, Succeeded, results[0].Outcome)
		assert.Equal(t, Skipped, results[1].Outcome)
		assert.NoError(t, results[1].Err)
		assert.Equal(t, Succeeded, results[2].Outcome)

		assert.NoFileExists(t, existsA)
		assert.NoFileExists(t, existsC)
	})

	t.Run("RecursiveRemovesTrees", func(t *testing.T) {
		dir := t.TempDir()
		tree := filepath.Join(dir, "tree")
		require.NoError(t, os.MkdirAll(filepath.Join(tree, "nested"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(tree, "nested", "f"), []byte("x"), 0644))

		r := NewRunner(Config{MaxParallel: 2})
		results := r.RemovePaths(context.Background(), []string{tree}, true)
		require.Len(t, results, 1)
		assert.Equal(t, Succeeded, results[0].Outcome)
		assert.NoDirExists(t, tree)
	})

	t.Run("RemovalErrorIsFailedNotFatal", func(t *testing.T) {
		orig := removePath
		removePath = func(path string) error {
			if filepath.Base(path) == "locked.txt" {
				return errors.New("access denied")
			}
			return orig(path)
		}
		defer func() { removePath = orig }()

		dir := t.TempDir()
		locked := filepath.Join(dir, "locked.txt")
		plain := filepath.Join(dir, "plain.txt")
		require.NoError(t, os.WriteFile(locked, []byte("x"), 0644))
		require.NoError(t, os.WriteFile(plain, []byte("x"), 0644))

		r := NewRunner(Config{MaxParallel: 2})
		results := r.RemovePaths(context.Background(), []string{locked, plain}, false)
		require.Len(t, results, 2)
		assert.Equal(t, Failed, results[0].Outcome)
		assert.ErrorContains(t, results[0].Err, "access denied")
		assert.Equal(t, Succeeded, results[1].Outcome)
	})
}

func TestApplyRegistryWrites(t *testing.T) {
	writes := []RegistryWrite{
		{Key: `HKLM\WF_SOFTWARE\Policies\One`, Name: "Enabled", Type: "REG_DWORD", Data: "0"},
		{Key: `HKLM\WF_SOFTWARE\Policies\Two`, Name: "Enabled", Type: "REG_DWORD", Data: "1"},
		{Key: `HKLM\WF_SOFTWARE\Policies\Bad`, Name: "Enabled", Type: "REG_DWORD", Data: "1"},
	}

	var applied int32
	tasks := make([]Task, len(writes))
	for i, write := range writes {
		tasks[i] = &RegistryWriteTask{Write: write, Apply: func(_ context.Context, w RegistryWrite) (string, error) {
			atomic.AddInt32(&applied, 1)
			if w.Key == `HKLM\WF_SOFTWARE\Policies\Bad` {
				return "", errors.New("exit status 1")
			}
			return "The operation completed successfully.", nil
		}}
	}

	r := NewRunner(Config{MaxParallel: 2})
	results := r.Run(context.Background(), tasks)
	require.Len(t, results, 3)

	assert.Equal(t, int32(3), atomic.LoadInt32(&applied), "every write is attempted")
	assert.Equal(t, Succeeded, results[0].Outcome)
	assert.Equal(t, Succeeded, results[1].Outcome)
	assert.Equal(t, Failed, results[2].Outcome)
	assert.Equal(t, `HKLM\WF_SOFTWARE\Policies\One\Enabled`, results[0].Name)
}

func TestRunCommandsOutput(t *testing.T) {
	r := NewRunner(Config{MaxParallel: 2})
	commands := []CommandTask{
		{Label: "first", Fn: func(context.Context) (string, error) { return "hello", nil }},
		{Label: "second", Fn: func(context.Context) (string, error) { return "", errors.New("nope") }},
	}

	results := r.RunCommands(context.Background(), commands)
	require.Len(t, results, 2)
	assert.Equal(t, "hello", results[0].Output)
	assert.Equal(t, Succeeded, results[0].Outcome)
	assert.Equal(t, Failed, results[1].Outcome)
}
