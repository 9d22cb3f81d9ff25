// Package catalog models the configured catalog handed to the data-movement engine.
package catalog

import (
	"encoding/json"
	"fmt"
)

// SyncMode is the source-side read mode of a stream.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncMode is the destination-side write mode of a stream.
type DestinationSyncMode string

const (
	DestinationSyncModeOverwrite   DestinationSyncMode = "overwrite"
	DestinationSyncModeAppend      DestinationSyncMode = "append"
	DestinationSyncModeAppendDedup DestinationSyncMode = "append_dedup"
)

// =============================================================================
// STREAMS
// =============================================================================

// StreamDescriptor is the fully-qualified name of a stream. Namespace is optional.
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

func (d StreamDescriptor) String() string {
	if d.Namespace == "" {
		return d.Name
	}
	return fmt.Sprintf("%s.%s", d.Namespace, d.Name)
}

// Stream is the source-declared shape of a stream.
type Stream struct {
	Name                    string          `json:"name"`
	Namespace               string          `json:"namespace,omitempty"`
	JSONSchema              json.RawMessage `json:"json_schema,omitempty"`
	SupportedSyncModes      []SyncMode      `json:"supported_sync_modes,omitempty"`
	SourceDefinedCursor     bool            `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string        `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string      `json:"source_defined_primary_key,omitempty"`
}

// FieldMapper is a per-stream record transformation. Config may carry secret references.
type FieldMapper struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ConfiguredStream is a stream plus the sync settings chosen for it.
type ConfiguredStream struct {
	Stream              Stream              `json:"stream"`
	SyncMode            SyncMode            `json:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
	CursorField         []string            `json:"cursor_field,omitempty"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty"`
	Mappers             []FieldMapper       `json:"mappers,omitempty"`
}

// Descriptor returns the stream's fully-qualified name.
func (s *ConfiguredStream) Descriptor() StreamDescriptor {
	return StreamDescriptor{Name: s.Stream.Name, Namespace: s.Stream.Namespace}
}

// IsIncremental reports whether the stream keeps a checkpoint between syncs.
func (s *ConfiguredStream) IsIncremental() bool {
	return s.SyncMode == SyncModeIncremental
}

// =============================================================================
// CATALOG
// =============================================================================

// ConfiguredCatalog is the ordered list of streams a sync will move.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// Find returns the configured stream matching d, or nil.
func (c *ConfiguredCatalog) Find(d StreamDescriptor) *ConfiguredStream {
	if c == nil {
		return nil
	}
	for i := range c.Streams {
		if c.Streams[i].Descriptor() == d {
			return &c.Streams[i]
		}
	}
	return nil
}

// Descriptors lists the catalog's streams in catalog order.
func (c *ConfiguredCatalog) Descriptors() []StreamDescriptor {
	if c == nil {
		return nil
	}
	out := make([]StreamDescriptor, 0, len(c.Streams))
	for i := range c.Streams {
		out = append(out, c.Streams[i].Descriptor())
	}
	return out
}

// MapperCount returns the number of field mappers across all streams.
func (c *ConfiguredCatalog) MapperCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for i := range c.Streams {
		n += len(c.Streams[i].Mappers)
	}
	return n
}

// ApplyReset forces every listed stream to full_refresh/overwrite in place.
// Streams not present in the catalog are returned as missing.
func ApplyReset(c *ConfiguredCatalog, streams []StreamDescriptor) (reset, missing []StreamDescriptor) {
	for _, d := range streams {
		s := c.Find(d)
		if s == nil {
			missing = append(missing, d)
			continue
		}
		s.SyncMode = SyncModeFullRefresh
		s.DestinationSyncMode = DestinationSyncModeOverwrite
		reset = append(reset, d)
	}
	return reset, missing
}
