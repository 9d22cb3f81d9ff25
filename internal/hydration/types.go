// Package hydration turns a terse replication activity input into the fully
// resolved input consumed by the data-movement engine.
package hydration

import (
	"encoding/json"

	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/secrets"
	"github.com/nucleus/replication-worker/internal/state"
)

// JobRunConfig identifies the job attempt being hydrated.
type JobRunConfig struct {
	JobID         int64 `json:"jobId" validate:"required"`
	AttemptNumber int   `json:"attemptNumber" validate:"gte=0"`
}

// LauncherConfig describes how a connector is launched.
type LauncherConfig struct {
	ConnectorID       string `json:"connectorId,omitempty"`
	DockerImage       string `json:"dockerImage" validate:"required"`
	IsCustomConnector bool   `json:"isCustomConnector,omitempty"`
}

// ConnectionContext carries the ownership of a connection.
type ConnectionContext struct {
	OrganizationID          string `json:"organizationId,omitempty"`
	WorkspaceID             string `json:"workspaceId,omitempty"`
	SourceDefinitionID      string `json:"sourceDefinitionId,omitempty"`
	DestinationDefinitionID string `json:"destinationDefinitionId,omitempty"`
}

// ReplicationActivityInput is the terse handle the workflow passes in. The
// configurations carry secret placeholders.
type ReplicationActivityInput struct {
	ConnectionID              string                       `json:"connectionId" validate:"required"`
	WorkspaceID               string                       `json:"workspaceId,omitempty"`
	SourceID                  string                       `json:"sourceId,omitempty"`
	DestinationID             string                       `json:"destinationId,omitempty"`
	JobRunConfig              JobRunConfig                 `json:"jobRunConfig"`
	SourceLauncherConfig      LauncherConfig               `json:"sourceLauncherConfig"`
	DestinationLauncherConfig LauncherConfig               `json:"destinationLauncherConfig"`
	SourceConfiguration       json.RawMessage              `json:"sourceConfiguration,omitempty"`
	DestinationConfiguration  json.RawMessage              `json:"destinationConfiguration,omitempty"`
	NamespaceDefinition       string                       `json:"namespaceDefinition,omitempty"`
	NamespaceFormat           string                       `json:"namespaceFormat,omitempty"`
	Prefix                    string                       `json:"prefix,omitempty"`
	IsReset                   bool                         `json:"isReset"`
	SupportsRefreshes         bool                         `json:"supportsRefreshes"`
	SchemaRefreshOutput       *catalog.SchemaRefreshOutput `json:"schemaRefreshOutput,omitempty"`
	ConnectionContext         *ConnectionContext           `json:"connectionContext,omitempty"`
}

// Scope returns the secret scope of the connection, or nil without an organization.
func (in *ReplicationActivityInput) Scope() *secrets.Scope {
	if in.ConnectionContext == nil || in.ConnectionContext.OrganizationID == "" {
		return nil
	}
	ws := in.ConnectionContext.WorkspaceID
	if ws == "" {
		ws = in.WorkspaceID
	}
	return &secrets.Scope{
		OrganizationID: in.ConnectionContext.OrganizationID,
		WorkspaceID:    ws,
		ConnectionID:   in.ConnectionID,
	}
}

// ReplicationInput is the fully hydrated input. It contains resolved secrets
// and must not be logged or persisted by this worker.
type ReplicationInput struct {
	ConnectionID                 string                     `json:"connectionId"`
	WorkspaceID                  string                     `json:"workspaceId,omitempty"`
	SourceID                     string                     `json:"sourceId,omitempty"`
	DestinationID                string                     `json:"destinationId,omitempty"`
	JobRunConfig                 JobRunConfig               `json:"jobRunConfig"`
	SourceLauncherConfig         LauncherConfig             `json:"sourceLauncherConfig"`
	DestinationLauncherConfig    LauncherConfig             `json:"destinationLauncherConfig"`
	NamespaceDefinition          string                     `json:"namespaceDefinition,omitempty"`
	NamespaceFormat              string                     `json:"namespaceFormat,omitempty"`
	Prefix                       string                     `json:"prefix,omitempty"`
	ConnectionContext            *ConnectionContext         `json:"connectionContext,omitempty"`
	IsReset                      bool                       `json:"isReset"`
	SourceConfiguration          json.RawMessage            `json:"sourceConfiguration"`
	DestinationConfiguration     json.RawMessage            `json:"destinationConfiguration"`
	Catalog                      *catalog.ConfiguredCatalog `json:"catalog"`
	State                        *state.State               `json:"state,omitempty"`
	DestinationSupportsRefreshes bool                       `json:"destinationSupportsRefreshes"`
}

// newReplicationInput maps the pass-through fields of the activity input.
func newReplicationInput(in *ReplicationActivityInput) *ReplicationInput {
	out := &ReplicationInput{
		ConnectionID:              in.ConnectionID,
		WorkspaceID:               in.WorkspaceID,
		SourceID:                  in.SourceID,
		DestinationID:             in.DestinationID,
		JobRunConfig:              in.JobRunConfig,
		SourceLauncherConfig:      in.SourceLauncherConfig,
		DestinationLauncherConfig: in.DestinationLauncherConfig,
		NamespaceDefinition:       in.NamespaceDefinition,
		NamespaceFormat:           in.NamespaceFormat,
		Prefix:                    in.Prefix,
		IsReset:                   in.IsReset,
	}
	if in.ConnectionContext != nil {
		cc := *in.ConnectionContext
		out.ConnectionContext = &cc
	}
	return out
}
