package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

type fakeBroker struct {
	pingErr   error
	appendErr error
	appended  []TranscodeJob
}

func (b *fakeBroker) Ping(ctx context.Context) error { return b.pingErr }

func (b *fakeBroker) Append(ctx context.Context, job TranscodeJob) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.appended = append(b.appended, job)
	return nil
}

type fakeExecutor struct {
	err   error
	calls []TranscodeJob
}

func (e *fakeExecutor) Transcode(ctx context.Context, videoID int64, res entities.Resolution) error {
	e.calls = append(e.calls, TranscodeJob{VideoID: videoID, Resolution: res})
	return e.err
}

func renditionStatus(t *testing.T, repo repository.RenditionRepository, videoID int64, res entities.Resolution) entities.RenditionStatus {
	t.Helper()
	rn, err := repo.Get(context.Background(), videoID, res)
	require.NoError(t, err)
	return rn.Status
}

func TestDispatchQueuesWhenBackendReachable(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{}
	exec := &fakeExecutor{}
	renditions := repository.NewMemoryRenditions()
	adapter := NewAdapter(broker, exec, renditions)

	job := TranscodeJob{VideoID: 1, Resolution: entities.Res480p}
	require.NoError(t, adapter.Dispatch(ctx, job))

	require.Len(t, broker.appended, 1)
	assert.Empty(t, exec.calls, "reachable backend must not execute inline")
	assert.Equal(t, entities.RenditionQueued, renditionStatus(t, renditions, 1, entities.Res480p))
}

func TestDispatchFallsBackInlineWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{pingErr: errors.New("connection refused")}
	exec := &fakeExecutor{}
	renditions := repository.NewMemoryRenditions()
	adapter := NewAdapter(broker, exec, renditions)

	job := TranscodeJob{VideoID: 2, Resolution: entities.Res720p}
	require.NoError(t, adapter.Dispatch(ctx, job))

	// The job is resolved synchronously: executed and terminal.
	require.Len(t, exec.calls, 1)
	assert.Empty(t, broker.appended)
	assert.Equal(t, entities.RenditionReady, renditionStatus(t, renditions, 2, entities.Res720p))
}

func TestDispatchInlineFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{pingErr: errors.New("connection refused")}
	exec := &fakeExecutor{err: errors.New("ffmpeg exit 1")}
	renditions := repository.NewMemoryRenditions()
	adapter := NewAdapter(broker, exec, renditions)

	job := TranscodeJob{VideoID: 3, Resolution: entities.Res480p}
	require.NoError(t, adapter.Dispatch(ctx, job))

	assert.Equal(t, entities.RenditionFailed, renditionStatus(t, renditions, 3, entities.Res480p))
}

func TestDispatchFallsBackWhenAppendFails(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{appendErr: errors.New("stream write failed")}
	exec := &fakeExecutor{}
	renditions := repository.NewMemoryRenditions()
	adapter := NewAdapter(broker, exec, renditions)

	job := TranscodeJob{VideoID: 4, Resolution: entities.Res1080p}
	require.NoError(t, adapter.Dispatch(ctx, job))

	require.Len(t, exec.calls, 1)
	assert.Equal(t, entities.RenditionReady, renditionStatus(t, renditions, 4, entities.Res1080p))
}
