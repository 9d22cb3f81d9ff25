package hydration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/controlplane"
	"github.com/nucleus/replication-worker/internal/retry"
)

func TestReportSkipsEmptyMetadata(t *testing.T) {
	api := &fakeMetadataAPI{j: &journal{}}
	r := NewAttemptMetadataReporter(api, retry.Policy{MaxAttempts: 3})

	res := r.Report(context.Background(), 7, 1, nil, nil)
	assert.True(t, res.OK())
	assert.Zero(t, res.Streams)
	assert.Empty(t, api.reqs)
}

func TestReportSendsMergedStreams(t *testing.T) {
	api := &fakeMetadataAPI{j: &journal{}}
	r := NewAttemptMetadataReporter(api, retry.Policy{MaxAttempts: 3})

	res := r.Report(context.Background(), 7, 2, []catalog.StreamDescriptor{usersStream}, []catalog.StreamDescriptor{usersStream})
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Streams)

	require.Len(t, api.reqs, 1)
	assert.Equal(t, &controlplane.SaveStreamMetadataRequest{
		JobID:         7,
		AttemptNumber: 2,
		StreamMetadata: []controlplane.StreamAttemptMetadata{
			{StreamName: "users", StreamNamespace: "public", WasResumed: true, WasBackfilled: true},
		},
	}, api.reqs[0])
}

func TestReportCarriesFailureInResult(t *testing.T) {
	api := &fakeMetadataAPI{j: &journal{}, err: &controlplane.HTTPError{StatusCode: 400, Message: "bad request"}}
	r := NewAttemptMetadataReporter(api, retry.Policy{MaxAttempts: 3})

	res := r.Report(context.Background(), 7, 0, []catalog.StreamDescriptor{ordersStream}, nil)
	assert.False(t, res.OK())
	var httpErr *controlplane.HTTPError
	assert.True(t, errors.As(res.Err, &httpErr))
	assert.Len(t, api.reqs, 1, "client errors are not retried")
}
