package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string

	bus.SubscribeSourceCommitted(func(ctx context.Context, ev SourceCommitted) {
		order = append(order, "first")
	})
	bus.SubscribeSourceCommitted(func(ctx context.Context, ev SourceCommitted) {
		order = append(order, "second")
	})

	bus.PublishSourceCommitted(context.Background(), SourceCommitted{VideoID: 1})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishWithoutSubscribersIsANoop(t *testing.T) {
	bus := NewBus()
	bus.PublishSourceCommitted(context.Background(), SourceCommitted{VideoID: 2})
}

func TestPublishPassesEventFields(t *testing.T) {
	bus := NewBus()
	height := 1080

	var got SourceCommitted
	bus.SubscribeSourceCommitted(func(ctx context.Context, ev SourceCommitted) {
		got = ev
	})

	bus.PublishSourceCommitted(context.Background(), SourceCommitted{
		VideoID:    3,
		SourcePath: "/media/uploads/videos/3.mp4",
		Height:     &height,
	})

	assert.Equal(t, int64(3), got.VideoID)
	assert.Equal(t, "/media/uploads/videos/3.mp4", got.SourcePath)
	assert.Equal(t, 1080, *got.Height)
}
