package queue

import (
	"fmt"
	"time"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

// TranscodeJob is what we push to Redis Streams. No media bytes here;
// workers resolve the source by video id.
type TranscodeJob struct {
	VideoID    int64               `json:"video_id"`
	Resolution entities.Resolution `json:"resolution"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// DedupeKey matches the debounce key for the same (video, resolution) pair.
func (j TranscodeJob) DedupeKey() string {
	return fmt.Sprintf("transcode:%d:%s", j.VideoID, j.Resolution)
}
