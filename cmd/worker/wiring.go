package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nucleus/replication-worker/internal/config"
	"github.com/nucleus/replication-worker/internal/featureflag"
	"github.com/nucleus/replication-worker/internal/objectstore"
	"github.com/nucleus/replication-worker/internal/retry"
	"github.com/nucleus/replication-worker/internal/state"
)

func newLogger(cfg *config.Config, override string) *slog.Logger {
	level := cfg.LogLevel
	if override != "" {
		level = override
	}
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
	}
}

// newFlags returns the file-backed flag client when FEATURE_FLAG_FILE is set.
// The returned FileClient is nil otherwise.
func newFlags(cfg *config.Config) (featureflag.Client, *featureflag.FileClient, error) {
	if cfg.FeatureFlagFile == "" {
		return featureflag.Static{}, nil, nil
	}
	fc, err := featureflag.NewFileClient(cfg.FeatureFlagFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load feature flags: %w", err)
	}
	return fc, fc, nil
}

// newArchive returns nil when archiving is disabled.
func newArchive(ctx context.Context, cfg *config.Config) (*state.Archive, error) {
	if !cfg.StateArchiveEnabled {
		return nil, nil
	}
	if cfg.MinioEndpoint == "" {
		return state.NewArchive(objectstore.NewLocalStore(cfg.StateArchiveDir), cfg.MinioBucket), nil
	}
	store, err := objectstore.NewS3Store(objectstore.Config{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioAccessKey,
		SecretAccessKey: cfg.MinioSecretKey,
		UseSSL:          cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("state archive store: %w", err)
	}
	if err := store.EnsureBucket(ctx, cfg.MinioBucket); err != nil {
		return nil, fmt.Errorf("state archive bucket: %w", err)
	}
	return state.NewArchive(store, cfg.MinioBucket), nil
}
