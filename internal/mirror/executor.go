package mirror

import (
	"context"
	"log"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

// Transcoder matches the executor contract of the queue package.
type Transcoder interface {
	Transcode(ctx context.Context, videoID int64, res entities.Resolution) error
}

type mirroringExecutor struct {
	inner Transcoder
	store *Storage
}

// WrapExecutor decorates an executor so every successful transcode enqueues
// its artifacts for mirroring. Mirror failures are logged, never propagated:
// the rendition is already servable locally.
func WrapExecutor(inner Transcoder, store *Storage) Transcoder {
	return &mirroringExecutor{inner: inner, store: store}
}

func (e *mirroringExecutor) Transcode(ctx context.Context, videoID int64, res entities.Resolution) error {
	if err := e.inner.Transcode(ctx, videoID, res); err != nil {
		return err
	}
	if err := e.store.MirrorRendition(ctx, videoID, res); err != nil {
		log.Printf("[mirror] rendition mirror skipped: video_id=%d, resolution=%s, error=%v", videoID, res, err)
	}
	return nil
}
