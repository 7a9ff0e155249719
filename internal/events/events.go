// Package events carries the in-process domain events that decouple ingest
// from scheduling. Delivery is synchronous and in subscription order, so a
// publisher returns only after every subscriber has seen the event.
package events

import (
	"context"
	"log"
	"sync"
)

// SourceCommitted fires after a source file and its probed metadata have
// been durably recorded for a video.
type SourceCommitted struct {
	VideoID    int64
	SourcePath string
	Height     *int
}

type SourceCommittedHandler func(ctx context.Context, ev SourceCommitted)

type Bus struct {
	mu              sync.RWMutex
	sourceCommitted []SourceCommittedHandler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) SubscribeSourceCommitted(h SourceCommittedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sourceCommitted = append(b.sourceCommitted, h)
}

func (b *Bus) PublishSourceCommitted(ctx context.Context, ev SourceCommitted) {
	b.mu.RLock()
	handlers := make([]SourceCommittedHandler, len(b.sourceCommitted))
	copy(handlers, b.sourceCommitted)
	b.mu.RUnlock()

	log.Printf("[events] source committed: video_id=%d, path=%s", ev.VideoID, ev.SourcePath)
	for _, h := range handlers {
		h(ctx, ev)
	}
}
