package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"tally/internal/config"
	"tally/internal/events"
)

const cleanupBatchSize = 1000

// CleanupJob purges visits and events older than the retention window.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	now       func() time.Time
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (j *CleanupJob) Name() string { return "retention_cleanup" }

// Run deletes rows older than RetentionDays. A zero retention keeps everything.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.RetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Retention disabled, skipping cleanup")
		return nil
	}

	cutoff := j.now().UTC().AddDate(0, 0, -retentionDays)
	j.logger.Info("Starting cleanup of old analytics data",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoff))

	deleted, err := events.DeleteOlderThan(j.dbManager.GetConnection(), j.logger, cutoff, cleanupBatchSize)
	if err != nil {
		return err
	}

	j.logger.Info("Cleaned up old analytics data",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", retentionDays))
	return nil
}
