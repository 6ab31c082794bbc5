// Package jobs holds the ticker-driven background work of the tracker: the
// overdue escalation sweep, reminder emails and periodic re-acknowledgement.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/policytracker/policy-tracker/internal/safego"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// runner owns the goroutine of one periodic job. The job runs once at start
// and then on every tick until Stop or ctx cancellation.
type runner struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newRunner(name string, interval time.Duration, run func(ctx context.Context)) *runner {
	return &runner{name: name, interval: interval, run: run, stopCh: make(chan struct{})}
}

func (r *runner) start(ctx context.Context) {
	slog.Info("background job started", "job", r.name, "interval", r.interval.String())

	r.wg.Add(1)
	safego.Go(r.name, func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.tick(ctx)
		for {
			select {
			case <-ticker.C:
				r.tick(ctx)
			case <-r.stopCh:
				slog.Info("background job stopped", "job", r.name)
				return
			case <-ctx.Done():
				slog.Info("background job context cancelled", "job", r.name)
				return
			}
		}
	})
}

// tick runs the job once. A panicking run is logged and counted; the loop
// keeps its schedule.
func (r *runner) tick(ctx context.Context) {
	defer telemetry.ObserveJob(r.name, time.Now())
	safego.Run(r.name, func() { r.run(ctx) })
}

// stop is safe to call more than once and on a runner that never started.
func (r *runner) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
