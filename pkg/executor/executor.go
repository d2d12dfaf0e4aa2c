package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/fedi"
)

const (
	// DefaultMinWorkers smallest pool we will spin up
	DefaultMinWorkers = 2
	// DefaultMaxWorkers bad things happen if this goes bigger than 1000
	DefaultMaxWorkers = 1000
)

// TestFunc is a boolean probe applied to one instance's domain.
type TestFunc func(ctx context.Context, domain string) bool

// CatFunc classifies one instance's domain, returning "" when it has no
// category.
type CatFunc func(ctx context.Context, domain string) string

// AttrFunc extracts a numeric metric from one instance's domain, reporting
// ok=false when the value is absent or unusable.
type AttrFunc func(ctx context.Context, domain string) (int64, bool)

// Config sizes the worker pool for a single executor call. Pools are built
// and torn down per call, there is no process wide pool.
type Config struct {
	MinWorkers int
	MaxWorkers int
}

// DefaultConfig returns the standard pool sizing.
func DefaultConfig() *Config {
	return &Config{MinWorkers: DefaultMinWorkers, MaxWorkers: DefaultMaxWorkers}
}

// workers computes the pool size for n instances: ceil(n/2) clamped to
// [MinWorkers, MaxWorkers].
func (c *Config) workers(n int) int {
	w := (n + 1) / 2
	if w < c.MinWorkers {
		w = c.MinWorkers
	}
	if w > c.MaxWorkers {
		w = c.MaxWorkers
	}
	return w
}

// dispatch runs task for every index in [0,n). Small batches run
// sequentially in input order, larger ones through a bounded worker pool.
// Returns the number of completed tasks, which the callers treat as a
// programming contract.
func (c *Config) dispatch(n int, task func(i int)) int {
	if n < c.MinWorkers*2 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return n
	}

	workers := c.workers(n)
	log.Debug().Int("instances", n).Int("workers", workers).Msg("dispatching worker pool")

	var completed int64
	pool := workerpool.New(workers)
	for i := 0; i < n; i++ {
		i := i
		pool.Submit(func() {
			task(i)
			atomic.AddInt64(&completed, 1)
		})
	}
	pool.StopWait()
	return int(atomic.LoadInt64(&completed))
}

// RunTest applies testFn to every instance and returns the subset that
// passed, preserving input order. The result is a stable filter, results
// are re-associated by index so pool completion order never matters.
func RunTest(ctx context.Context, cfg *Config, testFn TestFunc, instances []*fedi.Instance) []*fedi.Instance {
	results := make([]bool, len(instances))
	completed := cfg.dispatch(len(instances), func(i int) {
		results[i] = testFn(ctx, instances[i].Domain)
	})
	if completed != len(instances) {
		panic(fmt.Sprintf("executor: %d results for %d instances", completed, len(instances)))
	}

	surviving := make([]*fedi.Instance, 0, len(instances))
	for i, passed := range results {
		if passed {
			surviving = append(surviving, instances[i])
		}
	}
	return surviving
}

// RunCategorize applies catFn to every instance and tallies the categories.
// Instances with no category land in the Other bucket. The tally's Total
// always equals the input count.
func RunCategorize(ctx context.Context, cfg *Config, catFn CatFunc, instances []*fedi.Instance) *fedi.Tally {
	labels := make([]string, len(instances))
	completed := cfg.dispatch(len(instances), func(i int) {
		labels[i] = catFn(ctx, instances[i].Domain)
	})
	if completed != len(instances) {
		panic(fmt.Sprintf("executor: %d results for %d instances", completed, len(instances)))
	}
	return fedi.NewTally(labels)
}

// RunTotal applies attrFn to every instance and sums the returned values.
// Absent and non-positive values are excluded from the sum, they never fail
// the whole operation.
func RunTotal(ctx context.Context, cfg *Config, attrFn AttrFunc, instances []*fedi.Instance) int64 {
	values := make([]int64, len(instances))
	present := make([]bool, len(instances))
	completed := cfg.dispatch(len(instances), func(i int) {
		values[i], present[i] = attrFn(ctx, instances[i].Domain)
	})
	if completed != len(instances) {
		panic(fmt.Sprintf("executor: %d results for %d instances", completed, len(instances)))
	}

	var total int64
	for i := range values {
		if present[i] && values[i] > 0 {
			total += values[i]
		}
	}
	return total
}
