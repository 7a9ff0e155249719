package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

// Executor runs one transcode to completion. The scheduler only observes
// success or failure; the implementation is free to shell out to ffmpeg or
// anything else that writes the HLS artifacts.
type Executor interface {
	Transcode(ctx context.Context, videoID int64, res entities.Resolution) error
}

// Broker is the slice of the queue backend the dispatch path needs.
type Broker interface {
	Ping(ctx context.Context) error
	Append(ctx context.Context, job TranscodeJob) error
}

// Adapter delivers jobs to asynchronous execution, or runs them inline in
// the caller's context when the backend is unreachable, so the system
// degrades instead of silently dropping work.
type Adapter struct {
	broker     Broker
	exec       Executor
	renditions repository.RenditionRepository
}

func NewAdapter(broker Broker, exec Executor, renditions repository.RenditionRepository) *Adapter {
	return &Adapter{broker: broker, exec: exec, renditions: renditions}
}

// Dispatch hands the job to the queue and returns immediately with the
// rendition in `queued`. When the backend is unreachable the job runs inline
// and the rendition reaches a terminal state before Dispatch returns; the
// caller pays latency, not failure.
func (a *Adapter) Dispatch(ctx context.Context, job TranscodeJob) error {
	if err := a.broker.Ping(ctx); err != nil {
		log.Printf("[queue] backend unreachable, executing inline: job=%s, error=%v", job.DedupeKey(), err)
		return a.runInline(ctx, job)
	}

	if err := a.broker.Append(ctx, job); err != nil {
		log.Printf("[queue] append failed, executing inline: job=%s, error=%v", job.DedupeKey(), err)
		return a.runInline(ctx, job)
	}

	if err := a.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionQueued); err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}
	return nil
}

// runInline executes the transcode synchronously. Executor failures mark the
// rendition failed and are reported, not returned: the job is resolved either
// way and retry is an explicit operator action.
func (a *Adapter) runInline(ctx context.Context, job TranscodeJob) error {
	if err := a.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := a.exec.Transcode(ctx, job.VideoID, job.Resolution); err != nil {
		sentry.CaptureException(err)
		log.Printf("[queue] inline transcode failed: job=%s, error=%v", job.DedupeKey(), err)
		if serr := a.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionFailed); serr != nil {
			return fmt.Errorf("mark failed: %w", serr)
		}
		return nil
	}

	if err := a.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionReady); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}
