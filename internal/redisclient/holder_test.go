package redisclient

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolderSwapsBetweenClientKinds(t *testing.T) {
	// Neither client dials until a command is issued, so construction is
	// safe in tests.
	single := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	cluster := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{"127.0.0.1:0"}})

	h := NewHolder(single)
	assert.Same(t, single, h.Get())

	// A reconnect may land on a different client kind than the one the
	// holder started with.
	old := h.swap(cluster)
	assert.Same(t, single, old)
	assert.Same(t, cluster, h.Get())

	old = h.swap(single)
	assert.Same(t, cluster, old)
	assert.Same(t, single, h.Get())
}

func TestHolderCloseWithNilClient(t *testing.T) {
	h := NewHolder(nil)
	require.Nil(t, h.Get())
	assert.NoError(t, h.Close())
}

func TestHealthIntervalDefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, 30*time.Second, healthInterval(0))
	assert.Equal(t, 30*time.Second, healthInterval(-5))
	assert.Equal(t, 10*time.Second, healthInterval(10))
}
