package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"NUTRILEDGER_PORT", "NUTRILEDGER_DB_PATH", "NUTRILEDGER_LOG_LEVEL", "NUTRILEDGER_LOG_FORMAT",
	"NUTRILEDGER_MAX_OPEN_CONNS", "NUTRILEDGER_RATE_LIMIT", "NUTRILEDGER_RATE_BURST",
	"NUTRILEDGER_BACKUP_ENDPOINT", "NUTRILEDGER_BACKUP_BUCKET", "NUTRILEDGER_BACKUP_REGION",
	"NUTRILEDGER_BACKUP_ACCESS_KEY", "NUTRILEDGER_BACKUP_SECRET_KEY", "NUTRILEDGER_BACKUP_PREFIX",
	"NUTRILEDGER_BACKUP_PASSPHRASE", "NUTRILEDGER_BACKUP_INTERVAL", "NUTRILEDGER_BACKUP_RETENTION_DAYS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{
		Port:         "8001",
		DBPath:       "nutriledger.db",
		LogLevel:     "info",
		LogFormat:    "text",
		MaxOpenConns: 4,
		RateLimit:    10,
		RateBurst:    20,
		Backup: Backup{
			Region:        "us-east-1",
			Interval:      24 * time.Hour,
			RetentionDays: 30,
		},
	}, cfg)
	assert.Equal(t, ":8001", cfg.Addr())
	assert.False(t, cfg.Backup.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NUTRILEDGER_PORT", " 9090 ")
	t.Setenv("NUTRILEDGER_DB_PATH", "/tmp/ledger.db")
	t.Setenv("NUTRILEDGER_LOG_FORMAT", "json")
	t.Setenv("NUTRILEDGER_MAX_OPEN_CONNS", "8")
	t.Setenv("NUTRILEDGER_RATE_LIMIT", "2.5")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/ledger.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 8, cfg.MaxOpenConns)
	assert.Equal(t, 2.5, cfg.RateLimit)
}

func TestFromEnvBackup(t *testing.T) {
	clearEnv(t)
	t.Setenv("NUTRILEDGER_BACKUP_BUCKET", "ledger-backups")
	t.Setenv("NUTRILEDGER_BACKUP_ENDPOINT", "http://localhost:9000")
	t.Setenv("NUTRILEDGER_BACKUP_ACCESS_KEY", "ak")
	t.Setenv("NUTRILEDGER_BACKUP_SECRET_KEY", "sk")
	t.Setenv("NUTRILEDGER_BACKUP_INTERVAL", "6h")
	t.Setenv("NUTRILEDGER_BACKUP_RETENTION_DAYS", "7")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, "ledger-backups", cfg.Backup.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Backup.Endpoint)
	assert.Equal(t, 6*time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
}

func TestFromEnvRejectsBadNumbers(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{"NUTRILEDGER_MAX_OPEN_CONNS", "many"},
		{"NUTRILEDGER_MAX_OPEN_CONNS", "0"},
		{"NUTRILEDGER_RATE_BURST", "1.5"},
		{"NUTRILEDGER_RATE_BURST", "0"},
		{"NUTRILEDGER_RATE_BURST", "-3"},
		{"NUTRILEDGER_RATE_LIMIT", "0"},
		{"NUTRILEDGER_BACKUP_INTERVAL", "daily"},
		{"NUTRILEDGER_BACKUP_RETENTION_DAYS", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NUTRILEDGER_DB_PATH=from-file.db\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	// godotenv does not override variables that are already set, and
	// clearEnv sets them to empty, so drop this one entirely.
	os.Unsetenv("NUTRILEDGER_DB_PATH")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
}
