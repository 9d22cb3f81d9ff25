package hydration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.temporal.io/sdk/log"

	"github.com/nucleus/replication-worker/internal/backfill"
	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/controlplane"
	"github.com/nucleus/replication-worker/internal/metrics"
	"github.com/nucleus/replication-worker/internal/retry"
	"github.com/nucleus/replication-worker/internal/secrets"
	"github.com/nucleus/replication-worker/internal/state"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// ControlPlane is the subset of the control-plane API the hydrator reads.
type ControlPlane interface {
	GetJobInput(ctx context.Context, jobID int64, attemptNumber int) (*controlplane.JobInput, error)
	GetConnection(ctx context.Context, connectionID string) (*controlplane.Connection, error)
	GetConnectionForJob(ctx context.Context, connectionID string, jobID int64) (*controlplane.Connection, error)
	GetLastReplicationJob(ctx context.Context, connectionID string) (*controlplane.JobInfo, error)
}

// SecretResolver hydrates secret placeholders. The persistence choice is
// passed in so one hydration never mixes backends.
type SecretResolver interface {
	UsesRuntimePersistence(scope *secrets.Scope) bool
	ResolveWith(ctx context.Context, config json.RawMessage, scope *secrets.Scope, useRuntime bool) (json.RawMessage, error)
	ResolveMappers(ctx context.Context, c *catalog.ConfiguredCatalog, scope *secrets.Scope, useRuntime bool) error
}

// StateArchiver keeps a copy of state before it is overwritten.
type StateArchiver interface {
	ArchivePrior(ctx context.Context, connectionID string, jobID int64, st *state.State) (string, error)
}

// MetadataReporter reports stream attempt metadata. Its result carries the
// error instead of returning one.
type MetadataReporter interface {
	Report(ctx context.Context, jobID int64, attempt int, resumed, backfilled []catalog.StreamDescriptor) ReportResult
}

// Deps are the hydrator's collaborators. Archive, Reporter, Metrics and Logger
// are optional.
type Deps struct {
	ControlPlane ControlPlane
	States       state.SyncStateStore
	Secrets      SecretResolver
	Reporter     MetadataReporter
	Archive      StateArchiver
	Metrics      metrics.Client
	Logger       log.Logger
	Retry        retry.Policy
}

// =============================================================================
// HYDRATOR
// =============================================================================

// Hydrator assembles ReplicationInputs. It holds no per-call state and is safe
// for concurrent use across connections.
type Hydrator struct {
	cp       ControlPlane
	states   state.SyncStateStore
	secrets  SecretResolver
	reporter MetadataReporter
	archive  StateArchiver
	metrics  metrics.Client
	logger   log.Logger
	policy   retry.Policy
	validate *validator.Validate
}

// NewHydrator creates a hydrator.
func NewHydrator(d Deps) *Hydrator {
	h := &Hydrator{
		cp:       d.ControlPlane,
		states:   d.States,
		secrets:  d.Secrets,
		reporter: d.Reporter,
		archive:  d.Archive,
		metrics:  d.Metrics,
		logger:   d.Logger,
		policy:   d.Retry,
		validate: validator.New(),
	}
	if h.metrics == nil {
		h.metrics = metrics.Noop{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Hydrate resolves in into a ReplicationInput. The steps run in a fixed order;
// any failure other than attempt metadata reporting aborts with a
// *HydrationError and no partial result.
func (h *Hydrator) Hydrate(ctx context.Context, in *ReplicationActivityInput) (*ReplicationInput, error) {
	if in == nil {
		return nil, &HydrationError{Kind: KindPrecondition, Step: StepValidate, Err: errors.New("input is required")}
	}
	if err := h.validate.Struct(in); err != nil {
		return nil, &HydrationError{Kind: KindPrecondition, Step: StepValidate, Err: err}
	}

	start := time.Now()
	connectionID := in.ConnectionID
	jobID := in.JobRunConfig.JobID
	attempt := in.JobRunConfig.AttemptNumber
	logger := log.With(h.logger, "connectionId", connectionID, "jobId", jobID, "attempt", attempt)

	sourceConfig := in.SourceConfiguration
	destinationConfig := in.DestinationConfiguration

	// 1. Pick up configuration edits made after the job was scheduled.
	jobInput, err := retry.Call(ctx, h.retryPolicy(logger, StepRefreshSecrets), func(ctx context.Context) (*controlplane.JobInput, error) {
		return h.cp.GetJobInput(ctx, jobID, attempt)
	})
	if err != nil {
		return nil, h.fail(ctx, StepRefreshSecrets, KindTransport, err)
	}
	if jobInput != nil && jobInput.SyncInput != nil {
		if len(jobInput.SyncInput.SourceConfiguration) > 0 {
			sourceConfig = jobInput.SyncInput.SourceConfiguration
		}
		if len(jobInput.SyncInput.DestinationConfiguration) > 0 {
			destinationConfig = jobInput.SyncInput.DestinationConfiguration
		}
		logger.Debug("refreshed connector configurations from job input")
	}

	// 2. Connection and catalog.
	conn, err := retry.Call(ctx, h.retryPolicy(logger, StepFetchConnection), func(ctx context.Context) (*controlplane.Connection, error) {
		if in.SupportsRefreshes {
			return h.cp.GetConnectionForJob(ctx, connectionID, jobID)
		}
		return h.cp.GetConnection(ctx, connectionID)
	})
	if err != nil {
		return nil, h.fail(ctx, StepFetchConnection, KindTransport, err)
	}
	if conn == nil || conn.SyncCatalog == nil {
		return nil, h.fail(ctx, StepFetchConnection, KindPrecondition, errors.New("connection is missing catalog, which is required"))
	}
	cat := conn.SyncCatalog

	// 3. Resets force full_refresh/overwrite before anything reads the catalog's sync modes.
	if in.IsReset {
		if err := h.applyReset(ctx, logger, connectionID, cat); err != nil {
			return nil, err
		}
	}

	// 4. Prior state. not_set and absent both mean no state.
	snap, err := retry.Call(ctx, h.retryPolicy(logger, StepFetchState), func(ctx context.Context) (state.Snapshot, error) {
		return h.states.Get(ctx, connectionID)
	})
	if err != nil {
		return nil, h.fail(ctx, StepFetchState, KindState, err)
	}
	prior := snap.Value()
	outputState := prior
	logger.Debug("fetched prior state", "presence", snap.Presence.String())

	// 5. Backfill: clear and persist before anything else can fail.
	var backfilled []catalog.StreamDescriptor
	if conn.BackfillOnSchemaChange() && in.SchemaRefreshOutput != nil && in.SchemaRefreshOutput.AppliedDiff != nil {
		backfilled = backfill.StreamsToBackfill(in.SchemaRefreshOutput.AppliedDiff, cat)
		if len(backfilled) > 0 {
			outputState, err = h.persistClearedState(ctx, logger, connectionID, jobID, prior, backfilled)
			if err != nil {
				return nil, err
			}
		}
	}

	// 6. Best effort.
	if h.reporter != nil {
		result := h.reporter.Report(ctx, jobID, attempt, prior.StreamDescriptors(), backfilled)
		if !result.OK() {
			h.metrics.Count(metrics.AttemptMetadataReportFailure, 1)
			logger.Warn("failed to report stream attempt metadata", "step", StepAttemptMetadata, "error", result.Err)
		}
	}

	// 7. Connector secrets, destination first. The persistence flag is read
	// once and shared with the mappers.
	scope := in.Scope()
	useRuntime := h.secrets.UsesRuntimePersistence(scope)
	hydratedDestination, err := h.secrets.ResolveWith(ctx, destinationConfig, scope, useRuntime)
	if err != nil {
		return nil, h.secretFailure(ctx, StepHydrateDest, "destination", in.DestinationLauncherConfig.DockerImage, connectionID, err)
	}
	hydratedSource, err := h.secrets.ResolveWith(ctx, sourceConfig, scope, useRuntime)
	if err != nil {
		return nil, h.secretFailure(ctx, StepHydrateSource, "source", in.SourceLauncherConfig.DockerImage, connectionID, err)
	}

	// 8. Mapper secrets.
	if cat.MapperCount() > 0 {
		if err := h.secrets.ResolveMappers(ctx, cat, scope, useRuntime); err != nil {
			return nil, h.fail(ctx, StepHydrateMappers, KindSecret, err)
		}
	}

	// 9. Assemble.
	out := newReplicationInput(in)
	out.SourceConfiguration = hydratedSource
	out.DestinationConfiguration = hydratedDestination
	out.Catalog = cat
	out.State = outputState
	out.DestinationSupportsRefreshes = in.SupportsRefreshes

	logger.Info("hydrated replication input",
		"streams", len(cat.Streams),
		"backfilled", len(backfilled),
		"reset", in.IsReset,
		"duration", time.Since(start).String())
	return out, nil
}

func (h *Hydrator) applyReset(ctx context.Context, logger log.Logger, connectionID string, cat *catalog.ConfiguredCatalog) error {
	info, err := retry.Call(ctx, h.retryPolicy(logger, StepResetStreams), func(ctx context.Context) (*controlplane.JobInfo, error) {
		return h.cp.GetLastReplicationJob(ctx, connectionID)
	})
	if err != nil {
		return h.fail(ctx, StepResetStreams, KindTransport, err)
	}
	if info == nil || info.Job == nil {
		return h.fail(ctx, StepResetStreams, KindPrecondition, errors.New("reset requested but connection has no replication job"))
	}
	if info.Job.ResetConfig == nil {
		return h.fail(ctx, StepResetStreams, KindPrecondition, fmt.Errorf("reset requested but job %d has no reset config", info.Job.ID))
	}

	reset, missing := catalog.ApplyReset(cat, info.Job.ResetConfig.StreamsToReset)
	if len(missing) > 0 {
		logger.Warn("reset streams not found in catalog", "missing", len(missing))
	}
	logger.Info("applied reset to catalog", "streams", len(reset))
	return nil
}

// persistClearedState is the durability fence: once it returns, a retried
// attempt reads the cleared state rather than stale checkpoints.
func (h *Hydrator) persistClearedState(ctx context.Context, logger log.Logger, connectionID string, jobID int64, prior *state.State, streams []catalog.StreamDescriptor) (*state.State, error) {
	cleared := backfill.ClearedState(prior, streams)
	h.metrics.Count(metrics.BackfillStreams, len(streams), metrics.Attr{Key: metrics.AttrConnectionID, Value: connectionID})

	if prior == nil {
		logger.Info("backfill requested without prior state", "streams", len(streams))
		return nil, nil
	}

	if h.archive != nil {
		if ref, err := h.archive.ArchivePrior(ctx, connectionID, jobID, prior); err != nil {
			logger.Warn("failed to archive prior state", "error", err)
		} else if ref != "" {
			logger.Info("archived prior state", "ref", ref)
		}
	}

	err := retry.Do(ctx, h.retryPolicy(logger, StepBackfill), func(ctx context.Context) error {
		return h.states.Put(ctx, connectionID, cleared)
	})
	if err != nil {
		return nil, h.fail(ctx, StepBackfill, KindState, err)
	}
	h.metrics.Count(metrics.StateResetPersisted, 1, metrics.Attr{Key: metrics.AttrConnectionID, Value: connectionID})
	logger.Info("persisted cleared state for backfill", "streams", len(streams))
	return cleared, nil
}

// secretFailure counts secret-specific failures before failing hydration.
func (h *Hydrator) secretFailure(ctx context.Context, step, connectorType, image, connectionID string, err error) error {
	var resErr *secrets.SecretResolutionError
	if ctx.Err() == nil && errors.As(err, &resErr) {
		h.metrics.Count(metrics.SecretsHydrationFailure, 1,
			metrics.Attr{Key: metrics.AttrConnectorImage, Value: image},
			metrics.Attr{Key: metrics.AttrConnectorType, Value: connectorType},
			metrics.Attr{Key: metrics.AttrConnectionID, Value: connectionID},
		)
		return h.fail(ctx, step, KindSecret, err)
	}
	return h.fail(ctx, step, KindTransport, err)
}

func (h *Hydrator) fail(ctx context.Context, step string, kind Kind, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &HydrationError{Kind: KindCanceled, Step: step, Err: errors.Join(ctxErr, err)}
	}
	h.logger.Error("replication input hydration failed", "step", step, "kind", string(kind), "error", err)
	return &HydrationError{Kind: kind, Step: step, Err: err}
}

func (h *Hydrator) retryPolicy(logger log.Logger, step string) retry.Policy {
	p := h.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("retrying control-plane call", "step", step, "attempt", attempt, "delay", delay.String(), "error", err)
	}
	return p
}
