package pause

import (
	"context"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/rs/zerolog"
)

// MaintenanceScheduler deletes daily usage rows and closed sessions older
// than the retention window, once a day at the configured time. Active
// sessions are never touched: a pause ends only when its owner ends it.
type MaintenanceScheduler struct {
	store         storage.Store
	runTime       time.Time // only hour and minute are used
	retentionDays int
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewMaintenanceScheduler creates a retention scheduler. runTime is in HH:MM
// format.
func NewMaintenanceScheduler(store storage.Store, runTime string, retentionDays int, logger zerolog.Logger) (*MaintenanceScheduler, error) {
	parsedTime, err := time.Parse("15:04", runTime)
	if err != nil {
		return nil, err
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &MaintenanceScheduler{
		store:         store,
		runTime:       parsedTime,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "maintenance-scheduler").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop.
func (ms *MaintenanceScheduler) Start() {
	go ms.run()
	ms.logger.Info().
		Str("run_time", ms.runTime.Format("15:04")).
		Int("retention_days", ms.retentionDays).
		Msg("Maintenance scheduler started")
}

// Stop stops the scheduler.
func (ms *MaintenanceScheduler) Stop() {
	close(ms.stopChan)
	ms.logger.Info().Msg("Maintenance scheduler stopped")
}

func (ms *MaintenanceScheduler) run() {
	for {
		nextRun := ms.calculateNextRun()
		waitDuration := time.Until(nextRun)

		ms.logger.Info().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next maintenance run")

		select {
		case <-time.After(waitDuration):
			ms.performCleanup()
		case <-ms.stopChan:
			return
		}
	}
}

func (ms *MaintenanceScheduler) calculateNextRun() time.Time {
	now := time.Now()

	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		ms.runTime.Hour(), ms.runTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}

	return todayRun
}

func (ms *MaintenanceScheduler) performCleanup() {
	ms.logger.Info().Msg("Performing retention cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -ms.retentionDays)
	cutoffDate := storage.DateKey(cutoff)

	usageDeleted, err := ms.store.Usage().DeleteBefore(ctx, cutoffDate)
	if err != nil {
		ms.logger.Error().Err(err).Msg("Failed to clean up old daily usage data")
		return
	}

	sessionsDeleted, err := ms.store.Sessions().DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		ms.logger.Error().Err(err).Msg("Failed to clean up old sessions")
		return
	}

	ms.logger.Info().
		Int("usage_deleted", usageDeleted).
		Int("sessions_deleted", sessionsDeleted).
		Str("cutoff_date", cutoffDate).
		Msg("Retention cleanup complete")
}
