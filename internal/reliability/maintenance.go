// Package reliability holds background jobs that keep the portfolio store
// healthy: WAL checkpointing and off-site snapshots.
package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptosage/backend/internal/database"
	"github.com/rs/zerolog"
)

// MaintainedDB is the subset of database.DB the maintenance job needs
type MaintainedDB interface {
	Name() string
	QuickCheck(ctx context.Context) error
	WALCheckpoint(ctx context.Context, mode string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// MaintenanceJob checkpoints the WAL and records store statistics
type MaintenanceJob struct {
	db  MaintainedDB
	log zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db MaintainedDB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "maintenance").Str("database", db.Name()).Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run(ctx context.Context) error {
	startTime := time.Now()

	if err := j.db.QuickCheck(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	before, err := j.db.GetStats(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read stats before checkpoint")
	}

	if err := j.db.WALCheckpoint(ctx, "TRUNCATE"); err != nil {
		return err
	}

	after, err := j.db.GetStats(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read stats after checkpoint")
		return nil
	}

	event := j.log.Info().
		Int64("size_bytes", after.SizeBytes).
		Int64("wal_size_bytes", after.WALSizeBytes).
		Int64("freelist_count", after.FreelistCount).
		Dur("duration", time.Since(startTime))
	if before != nil {
		event = event.Int64("wal_reclaimed_bytes", before.WALSizeBytes-after.WALSizeBytes)
	}
	event.Msg("Maintenance completed")

	return nil
}
