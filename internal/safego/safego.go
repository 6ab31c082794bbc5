// Package safego runs background work of the tracker's jobs so that a panic in
// one sweep is logged against the job instead of taking the server down.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// Go launches fn in a new goroutine on behalf of job and recovers any panic.
func Go(job string, fn func()) {
	go Run(job, fn)
}

// Run calls fn in the current goroutine. It reports whether fn returned
// normally; a panic is recovered, logged with its stack and counted.
func Run(job string, fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			telemetry.BackgroundJobPanicsTotal.WithLabelValues(job).Inc()
			slog.Error("recovered panic in background job",
				"job", job,
				"panic", p,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
	return true
}
