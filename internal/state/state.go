// Package state models a connection's persisted checkpoint state and the stores it lives in.
package state

import (
	"encoding/json"

	"github.com/nucleus/replication-worker/internal/catalog"
)

// Type is the shape of a connection's state.
type Type string

const (
	TypeLegacy Type = "legacy"
	TypeGlobal Type = "global"
	TypeStream Type = "stream"
	TypeNotSet Type = "not_set"
)

// StreamState is the checkpoint of one stream.
type StreamState struct {
	StreamDescriptor catalog.StreamDescriptor `json:"streamDescriptor"`
	StreamState      json.RawMessage          `json:"streamState,omitempty"`
}

// GlobalState is a shared checkpoint plus per-stream entries (CDC sources).
type GlobalState struct {
	SharedState  json.RawMessage `json:"sharedState,omitempty"`
	StreamStates []StreamState   `json:"streamStates,omitempty"`
}

// State is the checkpoint payload of a connection. Exactly one of Legacy,
// Streams or Global is meaningful depending on Type.
type State struct {
	Type    Type            `json:"stateType"`
	Legacy  json.RawMessage `json:"state,omitempty"`
	Streams []StreamState   `json:"streamState,omitempty"`
	Global  *GlobalState    `json:"globalState,omitempty"`
}

// ConnectionState is the control-plane representation of a connection's state.
type ConnectionState struct {
	ConnectionID string `json:"connectionId"`
	State
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Type:    s.Type,
		Legacy:  cloneRaw(s.Legacy),
		Streams: cloneStreams(s.Streams),
	}
	if s.Global != nil {
		out.Global = &GlobalState{
			SharedState:  cloneRaw(s.Global.SharedState),
			StreamStates: cloneStreams(s.Global.StreamStates),
		}
	}
	return out
}

// entries returns the per-stream entries of s regardless of its type.
func (s *State) entries() []StreamState {
	if s == nil {
		return nil
	}
	switch s.Type {
	case TypeStream:
		return s.Streams
	case TypeGlobal:
		if s.Global != nil {
			return s.Global.StreamStates
		}
	}
	return nil
}

// StreamDescriptors lists the streams that carry an entry in s.
// Legacy state has no per-stream entries.
func (s *State) StreamDescriptors() []catalog.StreamDescriptor {
	entries := s.entries()
	out := make([]catalog.StreamDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StreamDescriptor)
	}
	return out
}

// Entry returns the checkpoint recorded for d, if any.
func (s *State) Entry(d catalog.StreamDescriptor) (json.RawMessage, bool) {
	for _, e := range s.entries() {
		if e.StreamDescriptor == d {
			return e.StreamState, true
		}
	}
	return nil, false
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func cloneStreams(in []StreamState) []StreamState {
	if in == nil {
		return nil
	}
	out := make([]StreamState, len(in))
	for i, e := range in {
		out[i] = StreamState{StreamDescriptor: e.StreamDescriptor, StreamState: cloneRaw(e.StreamState)}
	}
	return out
}

// =============================================================================
// PRESENCE
// =============================================================================

// Presence distinguishes a missing state record from an explicit not_set record.
type Presence int

const (
	Absent Presence = iota
	NotSet
	Present
)

func (p Presence) String() string {
	switch p {
	case NotSet:
		return "not_set"
	case Present:
		return "present"
	default:
		return "absent"
	}
}

// Snapshot is the result of reading a connection's state.
type Snapshot struct {
	Presence Presence
	State    *State
}

// SnapshotOf classifies a control-plane state response.
func SnapshotOf(cs *ConnectionState) Snapshot {
	if cs == nil {
		return Snapshot{Presence: Absent}
	}
	if cs.Type == "" || cs.Type == TypeNotSet {
		return Snapshot{Presence: NotSet}
	}
	st := cs.State
	return Snapshot{Presence: Present, State: st.Clone()}
}

// Value returns the state to hand downstream. Not-set and absent both mean no state.
func (s Snapshot) Value() *State {
	if s.Presence != Present {
		return nil
	}
	return s.State
}
