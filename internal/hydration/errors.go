package hydration

import (
	"errors"
	"fmt"
)

// Kind classifies a hydration failure.
type Kind string

const (
	// KindTransport is a control-plane call that failed after retries.
	KindTransport Kind = "transport"
	// KindPrecondition is inconsistent upstream data; retrying will not help.
	KindPrecondition Kind = "precondition"
	// KindSecret is a configuration whose secrets could not be hydrated.
	KindSecret Kind = "secret"
	// KindState is a state store read or write failure.
	KindState Kind = "state"
	// KindCanceled means the caller's context ended.
	KindCanceled Kind = "canceled"
)

// Steps, in execution order.
const (
	StepValidate        = "validate_input"
	StepRefreshSecrets  = "refresh_secret_references"
	StepFetchConnection = "fetch_connection"
	StepResetStreams    = "reset_streams"
	StepFetchState      = "fetch_state"
	StepBackfill        = "backfill"
	StepAttemptMetadata = "report_attempt_metadata"
	StepHydrateDest     = "hydrate_destination_config"
	StepHydrateSource   = "hydrate_source_config"
	StepHydrateMappers  = "hydrate_mapper_secrets"
)

// HydrationError wraps any failure that aborts hydration.
type HydrationError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydration failed at %s (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }

// KindOf returns the kind of a hydration error, or "" for other errors.
func KindOf(err error) Kind {
	var he *HydrationError
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}
