package main

import (
	"context"
	"time"

	tlog "go.temporal.io/sdk/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthCheckInterval = 15 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// checkSecretStore sets the overall serving status from one ping of store.
func checkSecretStore(ctx context.Context, hs *health.Server, store pinger, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

// watchSecretStore re-checks the secret store every interval until ctx is done.
func watchSecretStore(ctx context.Context, hs *health.Server, store pinger, interval time.Duration, logger tlog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := checkSecretStore(ctx, hs, store, interval/2)
		switch {
		case err != nil && healthy:
			logger.Warn("secret store unreachable, reporting not serving", "error", err)
		case err == nil && !healthy:
			logger.Info("secret store reachable again")
		}
		healthy = err == nil
	}
}
