package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nucleus/replication-worker/internal/activities"
	"github.com/nucleus/replication-worker/internal/config"
	"github.com/nucleus/replication-worker/internal/controlplane"
	"github.com/nucleus/replication-worker/internal/hydration"
	"github.com/nucleus/replication-worker/internal/metrics"
	"github.com/nucleus/replication-worker/internal/secrets"
	"github.com/nucleus/replication-worker/internal/state"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Temporal worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := config.Load()
	slogger := newLogger(cfg, opts.logLevel)
	logger := tlog.NewStructuredLogger(slogger)

	log.Printf("Starting replication worker: address=%s namespace=%s queue=%s",
		cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TaskQueue)

	// Control plane
	cp := controlplane.NewClient(&controlplane.ClientConfig{
		BaseURL:   cfg.ControlPlaneURL,
		Token:     cfg.ControlPlaneToken,
		Timeout:   cfg.ControlPlaneTimeout,
		RateLimit: cfg.ControlPlaneRateLimit,
		RateBurst: cfg.ControlPlaneRateBurst,
	})
	policy := retryPolicy(cfg)

	// Secrets
	if cfg.SecretsDatabaseURL == "" {
		return errors.New("SECRETS_DATABASE_URL or DATABASE_URL required for the secret store")
	}
	secretStore, err := secrets.NewPostgresStore(ctx, cfg.SecretsDatabaseURL)
	if err != nil {
		return fmt.Errorf("secret store init: %w", err)
	}
	defer secretStore.Close()

	flags, fileFlags, err := newFlags(cfg)
	if err != nil {
		return err
	}
	if fileFlags != nil {
		go func() {
			err := fileFlags.Watch(ctx, func(err error) {
				if err != nil {
					logger.Warn("feature flag reload failed", "error", err)
					return
				}
				logger.Info("feature flags reloaded", "path", cfg.FeatureFlagFile)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("feature flag watch stopped", "error", err)
			}
		}()
	}
	resolver := secrets.NewResolver(secretStore, cp, secrets.NewFactory(), flags, policy)

	// State
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		log.Printf("state archive disabled: %v", err)
		archive = nil
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	defer metricsSrv.Close()

	hydrator := hydration.NewHydrator(hydration.Deps{
		ControlPlane: cp,
		States:       state.NewAPIStore(cp),
		Secrets:      resolver,
		Reporter:     hydration.NewAttemptMetadataReporter(cp, policy),
		Archive:      archive,
		Metrics:      recorder,
		Logger:       logger,
		Retry:        policy,
	})

	// Health
	lis, err := net.Listen("tcp", cfg.HealthGRPCAddr)
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("health server: %v", err)
		}
	}()
	defer grpcServer.GracefulStop()

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterActivity(activities.NewActivities(hydrator))
	log.Printf("Registered activity: %s", activities.HydrateActivityName)

	if err := checkSecretStore(ctx, healthSrv, secretStore, 5*time.Second); err != nil {
		logger.Warn("secret store unreachable at startup", "error", err)
	}
	go watchSecretStore(ctx, healthSrv, secretStore, healthCheckInterval, logger)
	defer healthSrv.Shutdown()

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}
