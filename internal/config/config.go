package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	LogFormat    string
	MaxOpenConns int
	RateLimit    float64 // write requests per second per client
	RateBurst    int
	Backup       Backup
}

// Backup configures snapshots to S3-compatible storage. Backups stay off
// until a bucket and both keys are set.
type Backup struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	Prefix        string
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

// Enabled reports whether enough settings are present to reach storage.
func (b Backup) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:      envOr("NUTRILEDGER_PORT", "8001"),
		DBPath:    envOr("NUTRILEDGER_DB_PATH", "nutriledger.db"),
		LogLevel:  envOr("NUTRILEDGER_LOG_LEVEL", "info"),
		LogFormat: envOr("NUTRILEDGER_LOG_FORMAT", "text"),
	}

	var err error
	if cfg.MaxOpenConns, err = intEnv("NUTRILEDGER_MAX_OPEN_CONNS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxOpenConns < 1 {
		return Config{}, fmt.Errorf("NUTRILEDGER_MAX_OPEN_CONNS must be at least 1")
	}
	if cfg.RateBurst, err = intEnv("NUTRILEDGER_RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst < 1 {
		return Config{}, fmt.Errorf("NUTRILEDGER_RATE_BURST must be at least 1")
	}
	if cfg.RateLimit, err = floatEnv("NUTRILEDGER_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit <= 0 {
		return Config{}, fmt.Errorf("NUTRILEDGER_RATE_LIMIT must be positive")
	}

	cfg.Backup = Backup{
		Endpoint:   os.Getenv("NUTRILEDGER_BACKUP_ENDPOINT"),
		Bucket:     os.Getenv("NUTRILEDGER_BACKUP_BUCKET"),
		Region:     envOr("NUTRILEDGER_BACKUP_REGION", "us-east-1"),
		AccessKey:  os.Getenv("NUTRILEDGER_BACKUP_ACCESS_KEY"),
		SecretKey:  os.Getenv("NUTRILEDGER_BACKUP_SECRET_KEY"),
		Prefix:     os.Getenv("NUTRILEDGER_BACKUP_PREFIX"),
		Passphrase: os.Getenv("NUTRILEDGER_BACKUP_PASSPHRASE"),
	}
	if cfg.Backup.Interval, err = durationEnv("NUTRILEDGER_BACKUP_INTERVAL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Backup.Interval < 0 {
		return Config{}, fmt.Errorf("NUTRILEDGER_BACKUP_INTERVAL must not be negative")
	}
	if cfg.Backup.RetentionDays, err = intEnv("NUTRILEDGER_BACKUP_RETENTION_DAYS", 30); err != nil {
		return Config{}, err
	}
	if cfg.Backup.RetentionDays < 1 {
		return Config{}, fmt.Errorf("NUTRILEDGER_BACKUP_RETENTION_DAYS must be at least 1")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
