package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultConcurrency bounds how many site tasks run their network stage at
// once. Three keeps outbound pressure polite without serializing the run.
const DefaultConcurrency = 3

// SiteOutcome reports one finished site task to observers. Strategy names
// the stage that produced the results, empty when the task never ran.
type SiteOutcome struct {
	Site     string
	Results  []Result
	Strategy string
	Took     time.Duration
	Err      error
}

// Hooks let callers observe the fan-out. Both fields are optional.
type Hooks struct {
	// OnSiteStart fires once a task clears admission and begins work.
	OnSiteStart func(site string)
	// OnSiteDone fires for each finished site in completion order.
	OnSiteDone func(SiteOutcome)
}

// Orchestrator fans one query out across site tasks under an admission pool
// and merges whatever comes back.
type Orchestrator struct {
	concurrency int
	log         *zap.Logger
	hooks       Hooks
}

// NewOrchestrator builds an orchestrator. A non-positive concurrency falls
// back to the default.
func NewOrchestrator(concurrency int, log *zap.Logger, hooks Hooks) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{concurrency: concurrency, log: log, hooks: hooks}
}

// Search runs every task, collects results as tasks finish, and returns the
// merged, deduplicated, (site, title)-sorted list, truncated to max when max
// is positive. A panicking task counts as zero results for its site; it
// never takes the run down.
func (o *Orchestrator) Search(ctx context.Context, query string, tasks []*Task, max int) []Result {
	sem := make(chan struct{}, o.concurrency)
	outcomes := make(chan SiteOutcome)

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := SiteOutcome{Site: task.Site().Name}
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("site task panicked",
						zap.String("site", outcome.Site), zap.Any("panic", r))
					outcome.Results = nil
					outcome.Err = fmt.Errorf("site task panicked: %v", r)
				}
				outcome.Took = time.Since(start)
				outcomes <- outcome
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcome.Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			if o.hooks.OnSiteStart != nil {
				o.hooks.OnSiteStart(outcome.Site)
			}
			outcome.Results = task.Run(ctx, query)
			outcome.Strategy = task.Strategy()
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var combined []Result
	for outcome := range outcomes {
		if o.hooks.OnSiteDone != nil {
			o.hooks.OnSiteDone(outcome)
		}
		combined = append(combined, outcome.Results...)
	}
	return Merge(combined, max)
}
