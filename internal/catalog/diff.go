package catalog

// TransformType classifies a stream-level change between two discoveries.
type TransformType string

const (
	TransformAddStream    TransformType = "add_stream"
	TransformRemoveStream TransformType = "remove_stream"
	TransformUpdateStream TransformType = "update_stream"
)

// FieldTransform describes a change to a single field of a stream.
type FieldTransform struct {
	TransformType string   `json:"transformType"`
	FieldName     []string `json:"fieldName"`
	Breaking      bool     `json:"breaking,omitempty"`
}

// StreamAttributeTransform describes a change to stream-level attributes such as
// the primary key, cursor or sync mode.
type StreamAttributeTransform struct {
	TransformType string `json:"transformType"`
	Breaking      bool   `json:"breaking,omitempty"`
}

// UpdateStream carries the details of an update_stream transform.
type UpdateStream struct {
	FieldTransforms           []FieldTransform           `json:"fieldTransforms,omitempty"`
	StreamAttributeTransforms []StreamAttributeTransform `json:"streamAttributeTransforms,omitempty"`
}

// HasChanges reports whether the update touches any field or stream attribute.
func (u *UpdateStream) HasChanges() bool {
	return u != nil && (len(u.FieldTransforms) > 0 || len(u.StreamAttributeTransforms) > 0)
}

// StreamTransform is one entry of a catalog diff. Backfill is the upstream
// classification that the stream needs a full historical reload.
type StreamTransform struct {
	TransformType    TransformType    `json:"transformType"`
	StreamDescriptor StreamDescriptor `json:"streamDescriptor"`
	UpdateStream     *UpdateStream    `json:"updateStream,omitempty"`
	Backfill         bool             `json:"backfill,omitempty"`
}

// CatalogDiff lists the stream transforms between two schema discoveries.
type CatalogDiff struct {
	Transforms []StreamTransform `json:"transforms"`
}

// SchemaRefreshOutput is the result of the schema refresh that preceded the sync.
type SchemaRefreshOutput struct {
	AppliedDiff *CatalogDiff `json:"appliedDiff,omitempty"`
}
