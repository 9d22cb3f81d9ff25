package state

import (
	"context"
	"errors"
	"fmt"
)

// SyncStateStore reads and durably writes a connection's checkpoint state.
type SyncStateStore interface {
	Get(ctx context.Context, connectionID string) (Snapshot, error)
	Put(ctx context.Context, connectionID string, st *State) error
}

// API is the subset of the control plane backing APIStore.
type API interface {
	GetState(ctx context.Context, connectionID string) (*ConnectionState, error)
	CreateOrUpdateState(ctx context.Context, cs *ConnectionState) error
}

// APIStore implements SyncStateStore over the control-plane state endpoints.
// Writes overwrite by connection id; there is no concurrency token.
type APIStore struct {
	api API
}

// NewAPIStore creates a state store over the control plane.
func NewAPIStore(api API) *APIStore {
	return &APIStore{api: api}
}

func (s *APIStore) Get(ctx context.Context, connectionID string) (Snapshot, error) {
	cs, err := s.api.GetState(ctx, connectionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get state: %w", err)
	}
	return SnapshotOf(cs), nil
}

func (s *APIStore) Put(ctx context.Context, connectionID string, st *State) error {
	if st == nil {
		return errors.New("state is required")
	}
	cs := &ConnectionState{ConnectionID: connectionID, State: *st.Clone()}
	if err := s.api.CreateOrUpdateState(ctx, cs); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
