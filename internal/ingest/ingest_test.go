package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaschaGerspach/videoflix/internal/events"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

type fakeProber struct {
	height int
	err    error
}

func (p *fakeProber) Height(ctx context.Context, path string) (int, error) {
	return p.height, p.err
}

func TestIngestStoresSourceAndPublishes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	videos := repository.NewMemoryVideos()
	bus := events.NewBus()

	var published []events.SourceCommitted
	bus.SubscribeSourceCommitted(func(ctx context.Context, ev events.SourceCommitted) {
		published = append(published, ev)
	})

	svc := NewService(root, videos, &fakeProber{height: 1080}, bus)
	v, err := svc.Ingest(ctx, 42, "launch video", strings.NewReader("mp4-bytes"))
	require.NoError(t, err)

	require.NotNil(t, v.SourceHeight)
	assert.Equal(t, 1080, *v.SourceHeight)

	data, err := os.ReadFile(hls.SourcePath(root, v.ID))
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))

	stored, err := videos.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, hls.SourcePath(root, v.ID), stored.SourcePath)
	require.NotNil(t, stored.SourceHeight)
	assert.Equal(t, 1080, *stored.SourceHeight)

	require.Len(t, published, 1)
	assert.Equal(t, v.ID, published[0].VideoID)
	require.NotNil(t, published[0].Height)
	assert.Equal(t, 1080, *published[0].Height)
}

func TestIngestContinuesWhenProbeFails(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	bus := events.NewBus()

	var published []events.SourceCommitted
	bus.SubscribeSourceCommitted(func(ctx context.Context, ev events.SourceCommitted) {
		published = append(published, ev)
	})

	svc := NewService(root, repository.NewMemoryVideos(), &fakeProber{err: errors.New("no video stream")}, bus)
	v, err := svc.Ingest(ctx, 1, "broken upload", strings.NewReader("not-really-mp4"))
	require.NoError(t, err)

	assert.Nil(t, v.SourceHeight)
	require.Len(t, published, 1)
	assert.Nil(t, published[0].Height)
}
