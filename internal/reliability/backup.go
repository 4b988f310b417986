package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "portfolio-backup-"
	backupSuffix     = ".db"
	backupTimeLayout = "2006-01-02-150405"

	// newest backups that rotation never deletes
	minBackupsToKeep = 3
)

// Snapshotter produces a consistent copy of a database file
type Snapshotter interface {
	Name() string
	VacuumInto(ctx context.Context, dest string) error
}

// BackupInfo represents a backup found in the object store
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupJob snapshots the portfolio store and uploads it off-site
type BackupJob struct {
	db            Snapshotter
	store         ObjectStore
	retentionDays int
	now           func() time.Time
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job. retentionDays of 0 keeps
// every backup.
func NewBackupJob(db Snapshotter, store ObjectStore, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		db:            db,
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
		log:           log.With().Str("job", "backup").Str("database", db.Name()).Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run uploads a fresh snapshot and rotates old ones
func (j *BackupJob) Run(ctx context.Context) error {
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp("", "portfolio-backup")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshot := filepath.Join(stagingDir, j.db.Name()+backupSuffix)
	if err := j.db.VacuumInto(ctx, snapshot); err != nil {
		return err
	}

	file, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	key := backupKey(j.now())
	if err := j.store.Put(ctx, key, file); err != nil {
		return err
	}

	j.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Dur("duration", time.Since(startTime)).
		Msg("Backup uploaded")

	if err := j.Rotate(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// ListBackups returns stored backups, newest first
func (j *BackupJob) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := j.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseBackupKey(obj.Key)
		if !ok {
			j.log.Debug().Str("key", obj.Key).Msg("Skipping unrecognized object")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, Timestamp: ts, SizeBytes: obj.SizeBytes})
	}

	sort.Slice(backups, func(a, b int) bool {
		return backups[a].Timestamp.After(backups[b].Timestamp)
	})
	return backups, nil
}

// Rotate deletes backups older than the retention period, always
// keeping the newest few.
func (j *BackupJob) Rotate(ctx context.Context) error {
	if j.retentionDays <= 0 {
		return nil
	}

	backups, err := j.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := j.now().AddDate(0, 0, -j.retentionDays)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, b.Key); err != nil {
			j.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		j.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Rotated old backups")
	}
	return nil
}

func backupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupTimeLayout) + backupSuffix
}

func parseBackupKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, backupPrefix) || !strings.HasSuffix(key, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), backupSuffix)
	ts, err := time.Parse(backupTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
