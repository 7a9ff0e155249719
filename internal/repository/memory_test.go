package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

func TestMemoryRenditionsUpsertKeepsOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenditions()

	first := &entities.Rendition{VideoID: 1, Resolution: entities.Res480p, Status: entities.RenditionPending}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &entities.Rendition{VideoID: 1, Resolution: entities.Res480p, Status: entities.RenditionReady, ManifestPath: "/hls/1/480p/index.m3u8", SegmentCount: 4}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	rows, err := repo.ListByVideo(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entities.RenditionReady, rows[0].Status)
	assert.Equal(t, 4, rows[0].SegmentCount)
}

func TestMemoryRenditionsConcurrentUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenditions()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Upsert(ctx, &entities.Rendition{
				VideoID:    7,
				Resolution: entities.Res720p,
				Status:     entities.RenditionReady,
			})
		}()
	}
	wg.Wait()

	rows, err := repo.ListByVideo(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemorySegmentsUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySegments()

	seg := &entities.Segment{RenditionID: 3, Idx: 0, Size: 1024, Path: "/hls/1/480p/000.ts"}
	require.NoError(t, repo.Upsert(ctx, seg))
	again := &entities.Segment{RenditionID: 3, Idx: 0, Size: 1024, Path: "/hls/1/480p/000.ts"}
	require.NoError(t, repo.Upsert(ctx, again))

	rows, err := repo.ListByRendition(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, seg.ID, again.ID)
	assert.Equal(t, int64(1024), rows[0].Size)
}

func TestMemoryVideosSetSource(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVideos()

	v := &entities.Video{Title: "clip", Status: entities.VideoDraft}
	require.NoError(t, repo.Create(ctx, v))
	require.NotZero(t, v.ID)

	h := 1080
	require.NoError(t, repo.SetSource(ctx, v.ID, "/media/uploads/videos/1.mp4", &h))

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "/media/uploads/videos/1.mp4", got.SourcePath)
	require.NotNil(t, got.SourceHeight)
	assert.Equal(t, 1080, *got.SourceHeight)

	assert.ErrorIs(t, repo.SetSource(ctx, 999, "x", nil), ErrNotFound)
}
