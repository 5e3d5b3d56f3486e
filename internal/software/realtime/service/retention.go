package service

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Hour

// RunRetention deletes expired notification and location rows every sweep interval.
func (service *realtimeService) RunRetention(ctx context.Context) error {
	interval := service.opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	service.sweep(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			service.sweep(ctx, now.UTC())
		}
	}
}

func (service *realtimeService) sweep(ctx context.Context, now time.Time) {
	details := map[string]any{}

	if window := service.opts.NotificationRetention; window > 0 {
		n, err := service.store.Notifications.DeleteExpired(ctx, now.Add(-window))
		if err != nil {
			service.logger.Error(ctx, "retention_sweep_failed", "Failed to expire notifications", err, map[string]any{"table": "notification_log"})
		}
		details["notifications"] = n
	}
	if window := service.opts.LocationRetention; window > 0 {
		n, err := service.store.Locations.DeleteExpired(ctx, now.Add(-window))
		if err != nil {
			service.logger.Error(ctx, "retention_sweep_failed", "Failed to expire location history", err, map[string]any{"table": "location_history"})
		}
		details["locations"] = n
	}

	service.logger.Debug(ctx, "retention_sweep", "Expired rows removed", details)
}
