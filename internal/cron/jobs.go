package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaintenanceSchedule runs store maintenance daily at 04:00.
const DefaultMaintenanceSchedule = "0 4 * * *"

// Maintainer is implemented by stores with periodic housekeeping, such as
// the SQLite WAL checkpoint.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// MaintenanceJob runs Maintain on a store.
type MaintenanceJob struct {
	Store        Maintainer
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultMaintenanceSchedule
}

var _ Job = (*MaintenanceJob)(nil)

// Name implements Job.
func (j *MaintenanceJob) Name() string { return "store_maintenance" }

// Schedule implements Job.
func (j *MaintenanceJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultMaintenanceSchedule
}

// Run implements Job.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	start := time.Now()
	if err := j.Store.Maintain(ctx); err != nil {
		return fmt.Errorf("cron: store maintenance: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("store maintenance finished", "duration", time.Since(start))
	}
	return nil
}
