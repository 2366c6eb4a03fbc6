package main

import (
	"context"
	"time"
)

const (
	rentReminderWindow = 3 * 24 * time.Hour
	pushTokenMaxAge    = 70 * 24 * time.Hour
)

// startBackgroundJobs runs the periodic maintenance tasks until ctx is
// cancelled. Each job runs once immediately.
func (app *application) startBackgroundJobs(ctx context.Context) {
	app.every(ctx, "stale payment cleanup", time.Hour, func(ctx context.Context) error {
		n, err := app.store.Payments.Payments.DeleteStalePending(ctx, stalePendingAge)
		if err == nil && n > 0 {
			app.logger.Infow("stale pending payments removed", "count", n)
		}
		return err
	})

	app.every(ctx, "rent reminders", 24*time.Hour, func(ctx context.Context) error {
		n, err := app.notifier.SendRentReminders(ctx, time.Now(), rentReminderWindow)
		if err == nil {
			app.logger.Infow("rent reminders sent", "count", n)
		}
		return err
	})

	app.every(ctx, "landlord summaries", 24*time.Hour, func(ctx context.Context) error {
		n, err := app.notifier.SendLandlordSummaries(ctx, time.Now())
		if err == nil {
			app.logger.Infow("landlord summaries sent", "count", n)
		}
		return err
	})

	app.every(ctx, "push token prune", 24*time.Hour, func(ctx context.Context) error {
		return app.store.PushTokens.PruneStaleTokens(ctx, pushTokenMaxAge)
	})
}

func (app *application) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := job(ctx); err != nil && ctx.Err() == nil {
				app.logger.Errorw("background job failed", "job", name, "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
