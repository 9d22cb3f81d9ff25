package controlplane

import (
	"context"
	"errors"

	"github.com/nucleus/replication-worker/internal/secrets"
	"github.com/nucleus/replication-worker/internal/state"
)

const (
	pathJobInput           = "/v1/jobs/get_input"
	pathConnection         = "/v1/connections/get"
	pathConnectionForJob   = "/v1/connections/get_for_job"
	pathLastReplicationJob = "/v1/jobs/get_last_replication_job"
	pathGetState           = "/v1/state/get"
	pathCreateState        = "/v1/state/create_or_update"
	pathStreamMetadata     = "/v1/attempt/save_stream_metadata"
	pathSecretPersistence  = "/v1/secrets_persistence_config/get"
)

// GetJobInput returns the job's current sync input.
func (c *Client) GetJobInput(ctx context.Context, jobID int64, attemptNumber int) (*JobInput, error) {
	body := map[string]any{"jobId": jobID, "attemptNumber": attemptNumber}
	var out JobInput
	if err := c.post(ctx, pathJobInput, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConnection returns the connection record.
func (c *Client) GetConnection(ctx context.Context, connectionID string) (*Connection, error) {
	var out Connection
	if err := c.post(ctx, pathConnection, map[string]any{"connectionId": connectionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConnectionForJob returns the connection record as seen by a specific job.
func (c *Client) GetConnectionForJob(ctx context.Context, connectionID string, jobID int64) (*Connection, error) {
	var out Connection
	body := map[string]any{"connectionId": connectionID, "jobId": jobID}
	if err := c.post(ctx, pathConnectionForJob, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLastReplicationJob returns the most recent replication job of a connection.
func (c *Client) GetLastReplicationJob(ctx context.Context, connectionID string) (*JobInfo, error) {
	var out JobInfo
	if err := c.post(ctx, pathLastReplicationJob, map[string]any{"connectionId": connectionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetState returns the connection's state, or nil when the server has no record.
func (c *Client) GetState(ctx context.Context, connectionID string) (*state.ConnectionState, error) {
	var out state.ConnectionState
	err := c.post(ctx, pathGetState, map[string]any{"connectionId": connectionID}, &out)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateState overwrites the connection's state.
func (c *Client) CreateOrUpdateState(ctx context.Context, cs *state.ConnectionState) error {
	body := map[string]any{"connectionId": cs.ConnectionID, "connectionState": cs}
	return c.post(ctx, pathCreateState, body, nil)
}

// SaveStreamMetadata records per-stream attempt metadata.
func (c *Client) SaveStreamMetadata(ctx context.Context, req *SaveStreamMetadataRequest) error {
	return c.post(ctx, pathStreamMetadata, req, nil)
}

// GetSecretsPersistenceConfig returns the secret persistence descriptor of a scope.
func (c *Client) GetSecretsPersistenceConfig(ctx context.Context, scopeType secrets.ScopeType, scopeID string) (*secrets.PersistenceConfig, error) {
	var out secrets.PersistenceConfig
	body := map[string]any{"scopeType": scopeType, "scopeId": scopeID}
	if err := c.post(ctx, pathSecretPersistence, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
