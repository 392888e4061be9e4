package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/nutriledger/internal/backup"
	"github.com/dukerupert/nutriledger/internal/config"
	"github.com/dukerupert/nutriledger/internal/database"
	"github.com/dukerupert/nutriledger/internal/logging"
	"github.com/dukerupert/nutriledger/internal/server"
	"github.com/dukerupert/nutriledger/internal/store"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterMaxIdle         = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "text").Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath, database.WithMaxOpenConns(cfg.MaxOpenConns))
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) > 1 && os.Args[1] == "restore" {
		if err := restore(db, cfg, logger, os.Args[2:]); err != nil {
			logger.Error("restore failed", "error", err)
			db.Close()
			os.Exit(1)
		}
		return
	}

	srv := server.New(db, server.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Backup:    backupConfig(cfg.Backup),
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup(limiterMaxIdle)
			case <-ctx.Done():
				return
			}
		}
	}()

	srv.Backups().Start(ctx)
	if cfg.Backup.Enabled() {
		logger.Info("backups enabled", "bucket", cfg.Backup.Bucket, "interval", cfg.Backup.Interval, "encrypted", cfg.Backup.Passphrase != "")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nutriledger listening", "addr", cfg.Addr(), "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		db.Close()
		os.Exit(1)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	srv.Backups().Stop()
}

func backupConfig(b config.Backup) backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
			Prefix:    b.Prefix,
		},
		Passphrase:    b.Passphrase,
		Interval:      b.Interval,
		RetentionDays: b.RetentionDays,
	}
}

// restore handles "nutriledger restore <backup-id> <target-path>". The
// restored copy is written next to, never over, the live database.
func restore(db *sql.DB, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: nutriledger restore <backup-id> <target-path>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid backup id %q", args[0])
	}

	m := backup.NewManager(backupConfig(cfg.Backup), db, store.NewBackupStore(db), nil, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return m.RestoreTo(ctx, id, args[1])
}
