package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"forkchat/pkg/config"
	"forkchat/pkg/logger"
	"forkchat/pkg/persist"
)

// Start launches the checkpoint scheduler when enabled and returns a cancel
// func. Checkpoints are full snapshot copies written under their own keys,
// pruned to the configured retain count.
func Start(ctx context.Context, cfg config.BackupConfig, gw *persist.Gateway) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("backup_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("backup_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid backup cron expression: %s", cfg.Cron)
	}
	retain := cfg.Retain
	if retain <= 0 {
		retain = 7
	}

	logger.Info("backup_enabled", "cron", cronExpr, "retain", retain)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, gw, cronExpr, retain)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func runScheduler(ctx context.Context, gw *persist.Gateway, cronExpr string, retain int) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("backup_next_tick_failed", "cron", cronExpr, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("backup_scheduler_stopping")
			return
		case <-time.After(next.Sub(now)):
		}

		if key, err := gw.WriteCheckpoint(); err != nil {
			logger.Error("backup_checkpoint_failed", "error", err)
		} else {
			logger.Info("backup_checkpoint_ok", "key", key)
			if err := gw.PruneCheckpoints(retain); err != nil {
				logger.Error("backup_prune_failed", "error", err)
			}
		}
	}
}
