// Package di provides dependency injection for scheduler jobs.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptosage/backend/internal/config"
	"github.com/cryptosage/backend/internal/reliability"
	"github.com/cryptosage/backend/internal/scheduler"
	"github.com/cryptosage/backend/internal/server"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler, registers maintenance and backup
// jobs, and exposes them for manual triggering via the system handlers.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.PortfolioDB == nil {
		return nil, fmt.Errorf("container databases not initialized")
	}

	instances := &JobInstances{}
	sched := scheduler.New(cfg.Jobs.Timeout, log)
	container.Scheduler = sched
	container.SystemHandlers = server.NewSystemHandlers(container.PortfolioDB, sched, log)

	instances.Maintenance = reliability.NewMaintenanceJob(container.PortfolioDB, log)
	if err := sched.AddJob(cfg.Jobs.MaintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}
	container.SystemHandlers.RegisterJob(instances.Maintenance)

	if !cfg.Backup.Enabled() {
		log.Info().Msg("Backup bucket not configured, off-site backups disabled")
		return instances, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := reliability.NewS3Store(ctx, reliability.S3Config{
		Endpoint:        cfg.Backup.Endpoint,
		Region:          cfg.Backup.Region,
		Bucket:          cfg.Backup.Bucket,
		AccessKeyID:     cfg.Backup.AccessKeyID,
		SecretAccessKey: cfg.Backup.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup store: %w", err)
	}

	instances.Backup = reliability.NewBackupJob(container.PortfolioDB, store, cfg.Backup.RetentionDays, log)
	if err := sched.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
		return nil, fmt.Errorf("failed to register backup job: %w", err)
	}
	container.SystemHandlers.RegisterJob(instances.Backup)

	return instances, nil
}
