package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nutriledger/internal/database"
	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager wires a manager to an in-memory ledger with one food and a
// mock object store.
func newTestManager(t *testing.T, cfg Config) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = store.NewFoodStore(db).Create(context.Background(), model.FoodInput{
		Name: "Arroz", Category: "Cereais", Context: "almoço", Kcal: 130, ProteinG: 2.7, CarbG: 28, FatG: 0.3,
	})
	require.NoError(t, err)

	prefix := cfg.S3.Prefix
	cfg.S3 = testS3
	cfg.S3.Prefix = prefix
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	m := NewManager(cfg, db, store.NewBackupStore(db), nil, discardLogger())
	mock := newMockS3()
	m.client = mock
	return m, mock, db
}

func TestManagerStateLifecycle(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, discardLogger())
	assert.Equal(t, StateDisabled, m.Status().State)
	assert.False(t, m.Enabled())

	m2 := NewManager(Config{S3: testS3}, nil, nil, nil, discardLogger())
	assert.Equal(t, StateIdle, m2.Status().State)
	assert.True(t, m2.Enabled())
}

func TestManagerStatusCallback(t *testing.T) {
	var received []Status
	var mu sync.Mutex
	cb := func(s Status) {
		mu.Lock()
		received = append(received, s)
		mu.Unlock()
	}

	m := NewManager(Config{S3: testS3}, nil, nil, cb, discardLogger())

	m.setStatus(Status{State: StateRunning, InProgress: true})
	m.setStatus(Status{State: StateIdle})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, StateRunning, received[0].State)
	assert.Equal(t, StateIdle, received[1].State)
}

func TestRunNowPlain(t *testing.T) {
	m, mock, _ := newTestManager(t, Config{})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusCompleted, b.Status)
	assert.False(t, b.Encrypted)
	assert.NotNil(t, b.CompletedAt)
	assert.Equal(t, b.Filename, b.ObjectKey)

	data, ok := mock.object(b.ObjectKey)
	require.True(t, ok, "object should be uploaded")
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3\x00")))
	assert.Equal(t, int64(len(data)), b.SizeBytes)

	st := m.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.NotNil(t, st.LastBackup)
	assert.False(t, st.InProgress)
}

func TestRunNowEncryptedAndRestore(t *testing.T) {
	m, mock, _ := newTestManager(t, Config{Passphrase: "segredo", S3: S3Config{Prefix: "ledger/"}})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)
	assert.True(t, b.Encrypted)
	assert.Equal(t, "ledger/"+b.Filename, b.ObjectKey)
	assert.Equal(t, ".enc", filepath.Ext(b.Filename))

	data, ok := mock.object(b.ObjectKey)
	require.True(t, ok)
	assert.True(t, IsSealed(data))

	dst := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, m.RestoreTo(ctx, b.ID, dst))

	restored, err := database.Open(dst)
	require.NoError(t, err)
	defer restored.Close()

	foods, err := store.NewFoodStore(restored).List(ctx, model.FoodFilter{})
	require.NoError(t, err)
	require.Len(t, foods, 1)
	assert.Equal(t, "Arroz", foods[0].Name)
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "taken.db")
	require.NoError(t, os.WriteFile(dst, []byte("x"), 0o600))
	assert.Error(t, m.RestoreTo(ctx, b.ID, dst))
}

func TestRestoreRefusesUncheckableTarget(t *testing.T) {
	m, mock, _ := newTestManager(t, Config{})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)

	// A path below a regular file cannot be stat'ed as missing.
	parent := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))
	dst := filepath.Join(parent, "restored.db")

	mock.getErr = errors.New("download must not be attempted")
	err = m.RestoreTo(ctx, b.ID, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check restore target")
	assert.NotErrorIs(t, err, fs.ErrNotExist)
}

func TestRestoreWrongPassphrase(t *testing.T) {
	m, _, _ := newTestManager(t, Config{Passphrase: "right"})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)

	m.cfg.Passphrase = "wrong"
	dst := filepath.Join(t.TempDir(), "restored.db")
	err = m.RestoreTo(ctx, b.ID, dst)
	assert.ErrorIs(t, err, ErrBadPassphrase)
	assert.NoFileExists(t, dst)
}

func TestRunNowUploadFailure(t *testing.T) {
	m, mock, _ := newTestManager(t, Config{})
	mock.putErr = errors.New("bucket unreachable")
	ctx := context.Background()

	_, err := m.RunNow(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")

	st := m.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Error, "bucket unreachable")

	list, err := m.store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BackupStatusFailed, list[0].Status)
	assert.Contains(t, list[0].Error, "bucket unreachable")

	_, _, err = m.Download(ctx, list[0].ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRunNowDisabled(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, discardLogger())
	_, err := m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)

	_, _, err = m.Download(context.Background(), 1)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestRunNowRejectsConcurrentRun(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	m.running = true

	_, err := m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestDownloadMissingBackup(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	_, _, err := m.Download(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupRemovesExpiredBackups(t *testing.T) {
	m, mock, db := newTestManager(t, Config{RetentionDays: 7})
	ctx := context.Background()

	old, err := m.RunNow(ctx)
	require.NoError(t, err)
	fresh, err := m.RunNow(ctx)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, -10), old.ID)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup(ctx))

	_, ok := mock.object(old.ObjectKey)
	assert.False(t, ok, "expired object should be deleted")
	_, ok = mock.object(fresh.ObjectKey)
	assert.True(t, ok, "fresh object should remain")

	_, err = m.store.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.store.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupToleratesObjectDeleteFailure(t *testing.T) {
	m, mock, db := newTestManager(t, Config{RetentionDays: 1})
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, -2), b.ID)
	require.NoError(t, err)

	mock.delErr = errors.New("denied")
	assert.NoError(t, m.Cleanup(ctx))
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(Config{S3: testS3, Interval: time.Hour}, nil, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{Interval: time.Minute}, nil, nil, nil, discardLogger())
	m.Start(context.Background())

	// Stop should not block
	m.Stop()
}
