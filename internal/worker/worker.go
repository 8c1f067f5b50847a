// Package worker runs the periodic background jobs of the service.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// runEvery calls job once immediately and then on every tick until ctx is
// cancelled. Failures are logged and the loop keeps going.
func runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	slog.Info(name + ": starting")

	if err := job(ctx); err != nil {
		slog.Error(name+": initial run failed", "error", err)
	} else {
		slog.Info(name + ": initial run completed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info(name + ": shutting down")
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				slog.Error(name+": run failed", "error", err)
			} else {
				slog.Debug(name + ": run completed")
			}
		}
	}
}
