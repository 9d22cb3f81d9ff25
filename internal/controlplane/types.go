package controlplane

import (
	"encoding/json"

	"github.com/nucleus/replication-worker/internal/catalog"
)

// SyncInput carries the latest connector configurations for a job.
type SyncInput struct {
	SourceConfiguration      json.RawMessage `json:"sourceConfiguration,omitempty"`
	DestinationConfiguration json.RawMessage `json:"destinationConfiguration,omitempty"`
}

// JobInput is the response of get_input.
type JobInput struct {
	SyncInput *SyncInput `json:"syncInput,omitempty"`
}

// BackfillPreference controls whether schema changes trigger backfills.
type BackfillPreference string

const (
	BackfillEnabled  BackfillPreference = "enabled"
	BackfillDisabled BackfillPreference = "disabled"
)

// Connection is the connection record with its configured catalog.
type Connection struct {
	ConnectionID       string                     `json:"connectionId"`
	Name               string                     `json:"name,omitempty"`
	SourceID           string                     `json:"sourceId,omitempty"`
	DestinationID      string                     `json:"destinationId,omitempty"`
	Status             string                     `json:"status,omitempty"`
	SyncCatalog        *catalog.ConfiguredCatalog `json:"syncCatalog,omitempty"`
	BackfillPreference BackfillPreference         `json:"backfillPreference,omitempty"`
}

// BackfillOnSchemaChange reports whether the connection opted into backfills.
func (c *Connection) BackfillOnSchemaChange() bool {
	return c != nil && c.BackfillPreference == BackfillEnabled
}

// ResetConfig lists the streams a reset job clears.
type ResetConfig struct {
	StreamsToReset []catalog.StreamDescriptor `json:"streamsToReset"`
}

// Job is a control-plane job record.
type Job struct {
	ID          int64        `json:"id"`
	ConfigType  string       `json:"configType"`
	ResetConfig *ResetConfig `json:"resetConfig,omitempty"`
}

// JobInfo is the response of get_last_replication_job. Job is nil when the
// connection has never run.
type JobInfo struct {
	Job *Job `json:"job,omitempty"`
}

// StreamAttemptMetadata records whether a stream resumed or backfilled in an attempt.
type StreamAttemptMetadata struct {
	StreamName      string `json:"streamName"`
	StreamNamespace string `json:"streamNamespace,omitempty"`
	WasBackfilled   bool   `json:"wasBackfilled"`
	WasResumed      bool   `json:"wasResumed"`
}

// SaveStreamMetadataRequest is the body of save_stream_metadata.
type SaveStreamMetadataRequest struct {
	JobID          int64                   `json:"jobId"`
	AttemptNumber  int                     `json:"attemptNumber"`
	StreamMetadata []StreamAttemptMetadata `json:"streamMetadata"`
}
