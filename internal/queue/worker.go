package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

// Worker pulls transcode jobs from the named Redis Stream as part of a
// consumer group and drives the rendition through
// pending -> processing -> ready|failed.
type Worker struct {
	rc         redis.UniversalClient
	cfg        config.QueueConfig
	exec       Executor
	renditions repository.RenditionRepository
}

func NewWorker(rc redis.UniversalClient, cfg config.QueueConfig, exec Executor, renditions repository.RenditionRepository) *Worker {
	return &Worker{
		rc:         rc,
		cfg:        cfg,
		exec:       exec,
		renditions: renditions,
	}
}

func (w *Worker) EnsureGroup(ctx context.Context) error {
	// Without MkStream, Redis would error out when the group is created
	// before any messages exist in the stream.
	err := w.rc.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	// Redis returns BUSYGROUP if the group already exists therefore we check for other errors
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start runs the consumer loop. In burst mode the current backlog is drained
// once and Start returns; otherwise it blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure Redis group: %w", err)
	}

	log.Printf("[transcode-worker] starting consumer group=%s stream=%s workers=%d burst=%v",
		w.cfg.Group, w.cfg.Stream, w.cfg.Workers, w.cfg.Burst,
	)

	// Adopt orphaned pending messages from crashed consumers.
	w.autoClaim(ctx)

	workers := w.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		id := i
		go func() {
			err := w.loop(ctx)
			if err != nil {
				log.Printf("[transcode-worker] worker #%d stopped with error: %v", id, err)
			} else {
				log.Printf("[transcode-worker] worker #%d stopped", id)
			}
			errCh <- err
		}()
	}

	if w.cfg.Burst {
		// Burst mode: every worker exits once the backlog is empty; collect
		// them all so queued jobs are not abandoned mid-drain.
		var firstErr error
		for i := 0; i < workers; i++ {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	select {
	case <-ctx.Done():
		log.Printf("[transcode-worker] context canceled, stopping all workers")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker loop exited with error: %w", err)
		}
		return nil
	}
}

// autoClaim scans the consumer group for messages that were delivered to
// other consumers but never acknowledged (a worker crashed or was killed
// before XACK), takes ownership, and runs them through the normal handling
// path so they are retried and acked instead of sitting in this consumer's
// PEL forever.
func (w *Worker) autoClaim(ctx context.Context) {
	next := "0-0"

	// A message must have been idle for a while before we reclaim it, so we
	// do not steal jobs still being processed by slow workers.
	minIdle := 30 * time.Second
	if w.cfg.BlockTimeout > 0 {
		if t := w.cfg.BlockTimeout * 6; t > minIdle {
			minIdle = t
		}
	}

	for {
		msgs, start, err := w.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil || len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			log.Printf("[transcode-worker] retrying claimed message %s", m.ID)
			_ = w.handle(ctx, m)
		}
		next = start
	}
}

// readBlock returns the XREADGROUP block duration. A zero duration would be
// sent as BLOCK 0, which blocks forever. Burst runs must never block at all:
// a negative value omits the BLOCK argument, so an empty stream answers
// redis.Nil immediately and the drain can finish.
func (w *Worker) readBlock() time.Duration {
	if w.cfg.Burst {
		return -1
	}
	if w.cfg.BlockTimeout > 0 {
		return w.cfg.BlockTimeout
	}
	return 5 * time.Second
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		// XREADGROUP marks delivered messages as pending for this consumer;
		// they stay in the group's PEL until handle() acknowledges them, so
		// a crash before XACK leaves them for autoClaim on the next start.
		streams, err := w.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    w.readBlock(),
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		delivered := 0
		for _, s := range streams {
			for _, m := range s.Messages {
				delivered++
				_ = w.handle(ctx, m)
			}
		}

		if w.cfg.Burst && (err == redis.Nil || delivered == 0) {
			// Backlog drained.
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, m redis.XMessage) error {
	defer w.rc.XAck(ctx, w.cfg.Stream, w.cfg.Group, m.ID)
	return w.consume(ctx, m)
}

// consume decodes and processes one delivered message, fresh or reclaimed.
func (w *Worker) consume(ctx context.Context, m redis.XMessage) error {
	job, err := decodeJob(m.Values)
	if err != nil {
		sentry.CaptureException(err)
		log.Printf("[transcode-worker] dropping malformed message %s: %v", m.ID, err)
		return nil
	}
	return w.process(ctx, job)
}

// process runs the transcode and records the terminal status. Failures mark
// the rendition failed without requeueing; re-dispatch is an explicit
// operator action through the regular scheduling path.
func (w *Worker) process(ctx context.Context, job TranscodeJob) error {
	if err := w.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := w.exec.Transcode(ctx, job.VideoID, job.Resolution); err != nil {
		sentry.CaptureException(err)
		log.Printf("[transcode-worker] transcode failed: job=%s, error=%v", job.DedupeKey(), err)
		if serr := w.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionFailed); serr != nil {
			return fmt.Errorf("mark failed: %w", serr)
		}
		return err
	}

	if err := w.renditions.SetStatus(ctx, job.VideoID, job.Resolution, entities.RenditionReady); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	log.Printf("[transcode-worker] transcode complete: job=%s", job.DedupeKey())
	return nil
}

func decodeJob(values map[string]any) (TranscodeJob, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return TranscodeJob{}, fmt.Errorf("message has no payload field")
	}
	var job TranscodeJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return TranscodeJob{}, fmt.Errorf("decode job payload: %w", err)
	}
	if job.VideoID == 0 || !job.Resolution.Valid() {
		return TranscodeJob{}, fmt.Errorf("invalid job payload: %s", raw)
	}
	return job, nil
}
