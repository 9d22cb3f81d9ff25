package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/objectstore"
)

var (
	users  = catalog.StreamDescriptor{Name: "users", Namespace: "public"}
	orders = catalog.StreamDescriptor{Name: "orders", Namespace: "public"}
)

func streamState() *State {
	return &State{
		Type: TypeStream,
		Streams: []StreamState{
			{StreamDescriptor: users, StreamState: json.RawMessage(`{"cursor":"2024-01-01"}`)},
			{StreamDescriptor: orders, StreamState: json.RawMessage(`{"cursor":42}`)},
		},
	}
}

func TestSnapshotOf(t *testing.T) {
	tests := []struct {
		name     string
		in       *ConnectionState
		presence Presence
		hasValue bool
	}{
		{"missing record", nil, Absent, false},
		{"explicit not_set", &ConnectionState{ConnectionID: "c", State: State{Type: TypeNotSet}}, NotSet, false},
		{"empty type", &ConnectionState{ConnectionID: "c"}, NotSet, false},
		{"stream state", &ConnectionState{ConnectionID: "c", State: *streamState()}, Present, true},
		{"legacy state", &ConnectionState{ConnectionID: "c", State: State{Type: TypeLegacy, Legacy: json.RawMessage(`{}`)}}, Present, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := SnapshotOf(tt.in)
			assert.Equal(t, tt.presence, snap.Presence)
			assert.Equal(t, tt.hasValue, snap.Value() != nil)
		})
	}
}

func TestStateEntries(t *testing.T) {
	st := streamState()
	assert.Equal(t, []catalog.StreamDescriptor{users, orders}, st.StreamDescriptors())

	raw, ok := st.Entry(orders)
	require.True(t, ok)
	assert.JSONEq(t, `{"cursor":42}`, string(raw))

	global := &State{Type: TypeGlobal, Global: &GlobalState{
		SharedState:  json.RawMessage(`{"lsn":1}`),
		StreamStates: []StreamState{{StreamDescriptor: users}},
	}}
	assert.Equal(t, []catalog.StreamDescriptor{users}, global.StreamDescriptors())

	legacy := &State{Type: TypeLegacy, Legacy: json.RawMessage(`{"users":"x"}`)}
	assert.Empty(t, legacy.StreamDescriptors())
}

func TestCloneIsDeep(t *testing.T) {
	st := streamState()
	clone := st.Clone()
	clone.Streams[0].StreamState[2] = 'X'
	clone.Streams = clone.Streams[:1]

	assert.Len(t, st.Streams, 2)
	assert.JSONEq(t, `{"cursor":"2024-01-01"}`, string(st.Streams[0].StreamState))
}

type fakeAPI struct {
	get     *ConnectionState
	getErr  error
	written []*ConnectionState
}

func (f *fakeAPI) GetState(ctx context.Context, connectionID string) (*ConnectionState, error) {
	return f.get, f.getErr
}

func (f *fakeAPI) CreateOrUpdateState(ctx context.Context, cs *ConnectionState) error {
	f.written = append(f.written, cs)
	return nil
}

func TestAPIStore(t *testing.T) {
	api := &fakeAPI{get: &ConnectionState{ConnectionID: "conn-1", State: *streamState()}}
	store := NewAPIStore(api)

	snap, err := store.Get(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, Present, snap.Presence)

	require.NoError(t, store.Put(context.Background(), "conn-1", snap.State))
	require.Len(t, api.written, 1)
	assert.Equal(t, "conn-1", api.written[0].ConnectionID)
	assert.Equal(t, TypeStream, api.written[0].Type)

	assert.Error(t, store.Put(context.Background(), "conn-1", nil))

	api.getErr = errors.New("boom")
	_, err = store.Get(context.Background(), "conn-1")
	assert.ErrorContains(t, err, "failed to get state")
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(objectstore.NewLocalStore(t.TempDir()), "state-history")
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	archive.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	ref1, err := archive.ArchivePrior(ctx, "conn-1", 10, streamState())
	require.NoError(t, err)
	assert.Contains(t, ref1, "minio://state-history/states/conn-1/")
	_, err = archive.ArchivePrior(ctx, "conn-1", 11, &State{Type: TypeLegacy, Legacy: json.RawMessage(`{}`)})
	require.NoError(t, err)

	keys, err := archive.History(ctx, "conn-1", 0)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Contains(t, keys[0], "job11")

	loaded, err := archive.Load(ctx, keys[1])
	require.NoError(t, err)
	assert.Equal(t, streamState(), loaded)

	var disabled *Archive
	ref, err := disabled.ArchivePrior(ctx, "conn-1", 1, streamState())
	assert.NoError(t, err)
	assert.Empty(t, ref)
}
