package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *ConfiguredCatalog {
	return &ConfiguredCatalog{Streams: []ConfiguredStream{
		{
			Stream:              Stream{Name: "users", Namespace: "public"},
			SyncMode:            SyncModeIncremental,
			DestinationSyncMode: DestinationSyncModeAppendDedup,
			CursorField:         []string{"updated_at"},
			PrimaryKey:          [][]string{{"id"}},
		},
		{
			Stream:              Stream{Name: "orders", Namespace: "public"},
			SyncMode:            SyncModeIncremental,
			DestinationSyncMode: DestinationSyncModeAppend,
		},
		{
			Stream:              Stream{Name: "events"},
			SyncMode:            SyncModeFullRefresh,
			DestinationSyncMode: DestinationSyncModeOverwrite,
		},
	}}
}

func TestStreamDescriptorString(t *testing.T) {
	assert.Equal(t, "public.users", StreamDescriptor{Name: "users", Namespace: "public"}.String())
	assert.Equal(t, "events", StreamDescriptor{Name: "events"}.String())
}

func TestFind(t *testing.T) {
	c := testCatalog()

	s := c.Find(StreamDescriptor{Name: "orders", Namespace: "public"})
	require.NotNil(t, s)
	assert.Equal(t, "orders", s.Stream.Name)

	assert.Nil(t, c.Find(StreamDescriptor{Name: "orders"}), "namespace is part of identity")

	var nilCatalog *ConfiguredCatalog
	assert.Nil(t, nilCatalog.Find(StreamDescriptor{Name: "x"}))
}

func TestApplyReset(t *testing.T) {
	c := testCatalog()

	reset, missing := ApplyReset(c, []StreamDescriptor{
		{Name: "users", Namespace: "public"},
		{Name: "ghost", Namespace: "public"},
	})

	assert.Equal(t, []StreamDescriptor{{Name: "users", Namespace: "public"}}, reset)
	assert.Equal(t, []StreamDescriptor{{Name: "ghost", Namespace: "public"}}, missing)

	users := c.Find(StreamDescriptor{Name: "users", Namespace: "public"})
	assert.Equal(t, SyncModeFullRefresh, users.SyncMode)
	assert.Equal(t, DestinationSyncModeOverwrite, users.DestinationSyncMode)

	orders := c.Find(StreamDescriptor{Name: "orders", Namespace: "public"})
	assert.Equal(t, SyncModeIncremental, orders.SyncMode)
	assert.Equal(t, DestinationSyncModeAppend, orders.DestinationSyncMode)
}

func TestCatalogJSONShape(t *testing.T) {
	raw := `{"streams":[{"stream":{"name":"users","namespace":"public"},"sync_mode":"incremental",
		"destination_sync_mode":"append_dedup","cursor_field":["updated_at"],"primary_key":[["id"]],
		"mappers":[{"type":"hashing","config":{"fieldName":"email"}}]}]}`

	var c ConfiguredCatalog
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	require.Len(t, c.Streams, 1)
	assert.Equal(t, SyncModeIncremental, c.Streams[0].SyncMode)
	assert.Equal(t, [][]string{{"id"}}, c.Streams[0].PrimaryKey)
	assert.Equal(t, 1, c.MapperCount())
	assert.Equal(t, []StreamDescriptor{{Name: "users", Namespace: "public"}}, c.Descriptors())
}

func TestUpdateStreamHasChanges(t *testing.T) {
	var nilUpdate *UpdateStream
	assert.False(t, nilUpdate.HasChanges())
	assert.False(t, (&UpdateStream{}).HasChanges())
	assert.True(t, (&UpdateStream{FieldTransforms: []FieldTransform{{TransformType: "add_field"}}}).HasChanges())
	assert.True(t, (&UpdateStream{StreamAttributeTransforms: []StreamAttributeTransform{{TransformType: "update_primary_key"}}}).HasChanges())
}
