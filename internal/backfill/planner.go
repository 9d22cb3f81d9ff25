// Package backfill decides which streams need a full historical reload after a
// schema change and clears their checkpoints.
package backfill

import (
	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/state"
)

// StreamsToBackfill returns the streams the applied diff marks for backfill, in
// catalog order. Only update_stream transforms that carry the upstream backfill
// classification or a field/attribute change qualify, and only for streams the
// catalog syncs incrementally; full refresh streams keep no checkpoint.
func StreamsToBackfill(diff *catalog.CatalogDiff, c *catalog.ConfiguredCatalog) []catalog.StreamDescriptor {
	if diff == nil || len(diff.Transforms) == 0 || c == nil {
		return nil
	}

	candidates := make(map[catalog.StreamDescriptor]bool)
	for _, t := range diff.Transforms {
		if t.TransformType != catalog.TransformUpdateStream {
			continue
		}
		if t.Backfill || t.UpdateStream.HasChanges() {
			candidates[t.StreamDescriptor] = true
		}
	}

	var out []catalog.StreamDescriptor
	for i := range c.Streams {
		s := &c.Streams[i]
		if candidates[s.Descriptor()] && s.IsIncremental() {
			out = append(out, s.Descriptor())
		}
	}
	return out
}

// ClearedState returns a copy of st with the listed streams' checkpoints removed.
// The input is never modified. Per-stream and global states drop the matching
// entries; a legacy state cannot be cleared per stream and is emptied entirely.
func ClearedState(st *state.State, streams []catalog.StreamDescriptor) *state.State {
	if st == nil {
		return nil
	}
	out := st.Clone()
	if len(streams) == 0 {
		return out
	}

	drop := make(map[catalog.StreamDescriptor]bool, len(streams))
	for _, d := range streams {
		drop[d] = true
	}

	switch out.Type {
	case state.TypeStream:
		out.Streams = without(out.Streams, drop)
	case state.TypeGlobal:
		if out.Global != nil {
			out.Global.StreamStates = without(out.Global.StreamStates, drop)
		}
	case state.TypeLegacy:
		out.Legacy = nil
	}
	return out
}

func without(entries []state.StreamState, drop map[catalog.StreamDescriptor]bool) []state.StreamState {
	kept := make([]state.StreamState, 0, len(entries))
	for _, e := range entries {
		if !drop[e.StreamDescriptor] {
			kept = append(kept, e)
		}
	}
	return kept
}
