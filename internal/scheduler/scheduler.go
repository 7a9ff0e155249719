// Package scheduler converts "a source became available or changed" into
// zero or more dispatched transcode jobs. The debounce entry is the sole
// dedup gate, so the same code path serves ingest events, manual re-triggers,
// and maintenance enqueues alike.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/SaschaGerspach/videoflix/internal/debounce"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

// Debouncer is the atomic check-and-set gate. Acquire must be safe across
// concurrent callers and processes: exactly one caller per key may win within
// the TTL window.
type Debouncer interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher hands one job to execution (queued or inline).
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.TranscodeJob) error
}

type Scheduler struct {
	debounce   Debouncer
	dispatcher Dispatcher
	renditions repository.RenditionRepository
}

func New(debounce Debouncer, dispatcher Dispatcher, renditions repository.RenditionRepository) *Scheduler {
	return &Scheduler{
		debounce:   debounce,
		dispatcher: dispatcher,
		renditions: renditions,
	}
}

// Schedule dispatches one job per resolution unless an unexpired debounce
// entry exists for the (video, resolution) key. Suppressed resolutions are
// skipped silently; the returned slice contains only what was actually
// dispatched.
func (s *Scheduler) Schedule(ctx context.Context, videoID int64, resolutions []entities.Resolution) ([]entities.Resolution, error) {
	var dispatched []entities.Resolution

	for _, res := range resolutions {
		if !res.Valid() {
			return dispatched, fmt.Errorf("unknown resolution %q", res)
		}

		key := debounce.Key(videoID, res)
		ok, err := s.debounce.Acquire(ctx, key)
		if err != nil {
			return dispatched, fmt.Errorf("debounce acquire: %w", err)
		}
		if !ok {
			log.Printf("[scheduler] skip (debounced): video_id=%d, resolution=%s", videoID, res)
			continue
		}

		if err := s.renditions.SetStatus(ctx, videoID, res, entities.RenditionPending); err != nil {
			_ = s.debounce.Release(ctx, key)
			return dispatched, fmt.Errorf("create rendition record: %w", err)
		}

		job := queue.TranscodeJob{VideoID: videoID, Resolution: res}
		if err := s.dispatcher.Dispatch(ctx, job); err != nil {
			// Drop the entry so an operator retry is not locked out for the
			// remainder of the window.
			_ = s.debounce.Release(ctx, key)
			return dispatched, fmt.Errorf("dispatch %s: %w", job.DedupeKey(), err)
		}

		dispatched = append(dispatched, res)
	}

	if len(dispatched) > 0 {
		log.Printf("[scheduler] scheduled: video_id=%d, renditions=%v", videoID, dispatched)
	}
	return dispatched, nil
}
