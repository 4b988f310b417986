package reliability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cryptosage/backend/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, SizeBytes: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "portfolio.db"), Name: "portfolio"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMaintenanceJob_Run(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Conn().Exec(
		"INSERT INTO users (id, email, created_at, updated_at) VALUES ('u1', 'a@example.com', 1, 1)",
	)
	require.NoError(t, err)

	job := NewMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run(context.Background()))

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMaintenanceJob_ClosedDatabase(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Close())

	err := NewMaintenanceJob(db, zerolog.Nop()).Run(context.Background())
	assert.Error(t, err)
}

func TestBackupJob_UploadsSnapshot(t *testing.T) {
	db := newTestDB(t)
	store := newMemoryStore()
	job := NewBackupJob(db, store, 0, zerolog.Nop())
	job.now = func() time.Time { return time.Date(2026, 3, 1, 14, 30, 22, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))

	key := "portfolio-backup-2026-03-01-143022.db"
	require.Equal(t, []string{key}, store.keys())
	// SQLite files start with a fixed magic header
	assert.True(t, bytes.HasPrefix(store.objects[key], []byte("SQLite format 3\x00")))
}

func TestBackupJob_UploadFailure(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("bucket unavailable")
	job := NewBackupJob(newTestDB(t), store, 0, zerolog.Nop())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, store.putErr)
}

func TestBackupJob_RotatesOldBackups(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	for _, age := range []int{1, 2, 3, 40, 50} {
		store.objects[backupKey(now.AddDate(0, 0, -age))] = []byte("x")
	}
	store.objects["notes.txt"] = []byte("unrelated")

	job := NewBackupJob(newTestDB(t), store, 30, zerolog.Nop())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{
		"notes.txt",
		backupKey(now.AddDate(0, 0, -3)),
		backupKey(now.AddDate(0, 0, -2)),
		backupKey(now.AddDate(0, 0, -1)),
		backupKey(now),
	}, store.keys())
}

func TestBackupJob_RotationKeepsMinimum(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	for _, age := range []int{100, 200, 300} {
		store.objects[backupKey(now.AddDate(0, 0, -age))] = []byte("x")
	}

	job := NewBackupJob(newTestDB(t), store, 7, zerolog.Nop())
	job.now = func() time.Time { return now }
	require.NoError(t, job.Rotate(context.Background()))

	assert.Len(t, store.keys(), 3)
}

func TestBackupJob_ListBackupsNewestFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	store.objects[backupKey(now.AddDate(0, 0, -5))] = []byte("old")
	store.objects[backupKey(now)] = []byte("newest")
	store.objects["portfolio-backup-garbage.db"] = []byte("?")

	job := NewBackupJob(newTestDB(t), store, 0, zerolog.Nop())
	backups, err := job.ListBackups(context.Background())
	require.NoError(t, err)

	require.Len(t, backups, 2)
	assert.Equal(t, now, backups[0].Timestamp)
	assert.Equal(t, int64(len("newest")), backups[0].SizeBytes)
}

func TestParseBackupKey(t *testing.T) {
	ts, ok := parseBackupKey("portfolio-backup-2026-01-08-143022.db")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC), ts)

	_, ok = parseBackupKey("portfolio-backup-2026-01-08-143022.tar.gz")
	assert.False(t, ok)
}
