// Package activities exposes replication input hydration as a Temporal activity.
package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/nucleus/replication-worker/internal/hydration"
)

// HydrateActivityName is the registered name of the hydration activity.
const HydrateActivityName = "HydrateReplicationInput"

// Hydrator produces replication inputs.
type Hydrator interface {
	Hydrate(ctx context.Context, in *hydration.ReplicationActivityInput) (*hydration.ReplicationInput, error)
}

// Activities holds the replication Temporal activities.
type Activities struct {
	hydrator Hydrator
}

// NewActivities creates a new Activities instance.
func NewActivities(h Hydrator) *Activities {
	return &Activities{hydrator: h}
}

// =============================================================================
// ACTIVITY: HydrateReplicationInput
// =============================================================================

// HydrateReplicationInput resolves the terse workflow input into the input the
// replication engine runs with. Precondition and secret failures are returned
// as non-retryable application errors; Temporal retries the rest.
func (a *Activities) HydrateReplicationInput(ctx context.Context, in hydration.ReplicationActivityInput) (*hydration.ReplicationInput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("hydrating replication input",
		"connectionId", in.ConnectionID,
		"jobId", in.JobRunConfig.JobID,
		"attempt", in.JobRunConfig.AttemptNumber)

	out, err := a.hydrator.Hydrate(ctx, &in)
	if err != nil {
		logger.Error("replication input hydration failed", "connectionId", in.ConnectionID, "error", err)
		return nil, toApplicationError(err)
	}

	activity.RecordHeartbeat(ctx, in.ConnectionID)
	logger.Info("replication input hydrated", "connectionId", in.ConnectionID, "streams", len(out.Catalog.Streams))
	return out, nil
}

// ErrorType returns the application error type reported for a hydration kind.
func ErrorType(kind hydration.Kind) string {
	if kind == "" {
		return "HydrationError"
	}
	return "Hydration_" + string(kind)
}

func toApplicationError(err error) error {
	var he *hydration.HydrationError
	if !errors.As(err, &he) {
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrorType(""), err)
	}
	switch he.Kind {
	case hydration.KindPrecondition, hydration.KindSecret:
		return temporal.NewNonRetryableApplicationError(he.Error(), ErrorType(he.Kind), he)
	case hydration.KindCanceled:
		if errors.Is(he, context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return temporal.NewCanceledError(he.Step)
	default:
		return temporal.NewApplicationErrorWithCause(he.Error(), ErrorType(he.Kind), he)
	}
}
