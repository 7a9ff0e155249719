package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaschaGerspach/videoflix/internal/config"
)

// Stats is a point-in-time snapshot of the transcode stream, surfaced by the
// debug endpoint.
type Stats struct {
	Stream    string `json:"stream"`
	Group     string `json:"group"`
	Connected bool   `json:"connected"`
	Length    int64  `json:"length"`
	Pending   int64  `json:"pending"`
	Consumers int64  `json:"consumers"`
}

// Inspector reads stream counters without joining the consumer group.
type Inspector struct {
	rc  redis.UniversalClient
	cfg config.QueueConfig
}

func NewInspector(rc redis.UniversalClient, cfg config.QueueConfig) *Inspector {
	return &Inspector{rc: rc, cfg: cfg}
}

// Stats never fails on an unreachable backend: connectivity is part of what
// the endpoint reports.
func (i *Inspector) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Stream: i.cfg.Stream, Group: i.cfg.Group}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := i.rc.Ping(pingCtx).Err(); err != nil {
		return s, nil
	}
	s.Connected = true

	length, err := i.rc.XLen(ctx, i.cfg.Stream).Result()
	if err != nil && err != redis.Nil {
		return s, err
	}
	s.Length = length

	// The group may not exist yet; that is a zero-pending stream, not an
	// error worth surfacing.
	pending, err := i.rc.XPending(ctx, i.cfg.Stream, i.cfg.Group).Result()
	if err == nil {
		s.Pending = pending.Count
		s.Consumers = int64(len(pending.Consumers))
	}
	return s, nil
}
