package redisclient

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// clientBox keeps the stored concrete type constant: atomic.Value rejects a
// store of a different concrete type, and reconnects can legitimately swap
// between *redis.Client and *redis.ClusterClient.
type clientBox struct {
	c redis.UniversalClient
}

// Holder hands out the current redis client and lets the health loop swap it
// atomically on reconnect, so long-lived consumers never hold a dead client.
type Holder struct {
	v atomic.Value // stores clientBox
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(clientBox{c: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	box, _ := h.v.Load().(clientBox)
	return box.c
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	box, _ := h.v.Load().(clientBox)
	h.v.Store(clientBox{c: newc})
	return box.c
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
