package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

func TestDecodeJob(t *testing.T) {
	raw, err := json.Marshal(TranscodeJob{VideoID: 5, Resolution: entities.Res720p})
	require.NoError(t, err)

	job, err := decodeJob(map[string]any{"payload": string(raw)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), job.VideoID)
	assert.Equal(t, entities.Res720p, job.Resolution)

	_, err = decodeJob(map[string]any{})
	require.Error(t, err)

	_, err = decodeJob(map[string]any{"payload": "{not json"})
	require.Error(t, err)

	_, err = decodeJob(map[string]any{"payload": `{"video_id":0,"resolution":"480p"}`})
	require.Error(t, err)

	_, err = decodeJob(map[string]any{"payload": `{"video_id":1,"resolution":"144p"}`})
	require.Error(t, err)
}

func TestProcessMarksReadyOnSuccess(t *testing.T) {
	ctx := context.Background()
	renditions := repository.NewMemoryRenditions()
	exec := &fakeExecutor{}
	w := &Worker{exec: exec, renditions: renditions}

	job := TranscodeJob{VideoID: 6, Resolution: entities.Res480p}
	require.NoError(t, w.process(ctx, job))

	assert.Equal(t, entities.RenditionReady, renditionStatus(t, renditions, 6, entities.Res480p))
	require.Len(t, exec.calls, 1)
}

func TestProcessMarksFailedWithoutRetry(t *testing.T) {
	ctx := context.Background()
	renditions := repository.NewMemoryRenditions()
	exec := &fakeExecutor{err: errors.New("ffmpeg exit 1")}
	w := &Worker{exec: exec, renditions: renditions}

	job := TranscodeJob{VideoID: 7, Resolution: entities.Res1080p}
	require.Error(t, w.process(ctx, job))

	assert.Equal(t, entities.RenditionFailed, renditionStatus(t, renditions, 7, entities.Res1080p))
	// No automatic retry: exactly one executor invocation.
	assert.Len(t, exec.calls, 1)
}

func TestReadBlockNeverBlocksForeverInBurst(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.QueueConfig
		want time.Duration
	}{
		// Burst must omit BLOCK entirely so an empty stream returns
		// redis.Nil instead of hanging; go-redis sends BLOCK for any
		// duration >= 0.
		{"burst", config.QueueConfig{Burst: true}, -1},
		{"burst ignores timeout", config.QueueConfig{Burst: true, BlockTimeout: 2 * time.Second}, -1},
		{"zero timeout gets a default", config.QueueConfig{}, 5 * time.Second},
		{"configured timeout", config.QueueConfig{BlockTimeout: 2 * time.Second}, 2 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &Worker{cfg: tc.cfg}
			assert.Equal(t, tc.want, w.readBlock())
		})
	}
}

func TestConsumeProcessesReclaimedMessage(t *testing.T) {
	ctx := context.Background()
	renditions := repository.NewMemoryRenditions()
	exec := &fakeExecutor{}
	w := &Worker{exec: exec, renditions: renditions}

	raw, err := json.Marshal(TranscodeJob{VideoID: 11, Resolution: entities.Res720p})
	require.NoError(t, err)

	// Messages adopted via XAUTOCLAIM arrive with the same shape as fresh
	// deliveries and must end in a terminal status, not sit unprocessed.
	msg := redis.XMessage{ID: "1-0", Values: map[string]any{"payload": string(raw)}}
	require.NoError(t, w.consume(ctx, msg))

	assert.Equal(t, entities.RenditionReady, renditionStatus(t, renditions, 11, entities.Res720p))
	require.Len(t, exec.calls, 1)
}

func TestConsumeDropsMalformedMessage(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	w := &Worker{exec: exec, renditions: repository.NewMemoryRenditions()}

	msg := redis.XMessage{ID: "2-0", Values: map[string]any{"payload": "{broken"}}
	assert.NoError(t, w.consume(ctx, msg), "malformed payloads are dropped, not requeued")
	assert.Empty(t, exec.calls)
}
