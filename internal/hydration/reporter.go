package hydration

import (
	"context"

	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/controlplane"
	"github.com/nucleus/replication-worker/internal/retry"
)

// MetadataAPI is the control-plane call behind the reporter.
type MetadataAPI interface {
	SaveStreamMetadata(ctx context.Context, req *controlplane.SaveStreamMetadataRequest) error
}

// ReportResult is the outcome of a best-effort metadata report. A failed
// report never fails hydration; callers log it and move on.
type ReportResult struct {
	Streams int
	Err     error
}

// OK reports whether the metadata was recorded.
func (r ReportResult) OK() bool { return r.Err == nil }

// AttemptMetadataReporter records which streams an attempt resumed or backfilled.
type AttemptMetadataReporter struct {
	api    MetadataAPI
	policy retry.Policy
}

// NewAttemptMetadataReporter creates a reporter. policy is the same policy
// applied to every control-plane call; the reporter adds no retries of its own.
func NewAttemptMetadataReporter(api MetadataAPI, policy retry.Policy) *AttemptMetadataReporter {
	return &AttemptMetadataReporter{api: api, policy: policy}
}

// Report sends the merged per-stream flags for one attempt.
func (r *AttemptMetadataReporter) Report(ctx context.Context, jobID int64, attempt int, resumed, backfilled []catalog.StreamDescriptor) ReportResult {
	streams := MergeStreamMetadata(resumed, backfilled)
	if len(streams) == 0 {
		return ReportResult{}
	}
	req := &controlplane.SaveStreamMetadataRequest{
		JobID:          jobID,
		AttemptNumber:  attempt,
		StreamMetadata: streams,
	}
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.api.SaveStreamMetadata(ctx, req)
	})
	return ReportResult{Streams: len(streams), Err: err}
}

// MergeStreamMetadata combines resumed and backfilled streams into one entry
// per stream. A stream may be both.
func MergeStreamMetadata(resumed, backfilled []catalog.StreamDescriptor) []controlplane.StreamAttemptMetadata {
	index := make(map[catalog.StreamDescriptor]int)
	var out []controlplane.StreamAttemptMetadata

	entry := func(d catalog.StreamDescriptor) *controlplane.StreamAttemptMetadata {
		if i, ok := index[d]; ok {
			return &out[i]
		}
		out = append(out, controlplane.StreamAttemptMetadata{StreamName: d.Name, StreamNamespace: d.Namespace})
		index[d] = len(out) - 1
		return &out[len(out)-1]
	}

	for _, d := range resumed {
		entry(d).WasResumed = true
	}
	for _, d := range backfilled {
		entry(d).WasBackfilled = true
	}
	return out
}
