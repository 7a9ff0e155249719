package entities

import "time"

// Resolution names one HLS rendition rung.
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

// AllResolutions is ordered from lowest to highest rung.
var AllResolutions = []Resolution{Res480p, Res720p, Res1080p}

func (r Resolution) Valid() bool {
	switch r {
	case Res480p, Res720p, Res1080p:
		return true
	}
	return false
}

type RenditionStatus string

const (
	RenditionPending    RenditionStatus = "pending"
	RenditionQueued     RenditionStatus = "queued"
	RenditionProcessing RenditionStatus = "processing"
	RenditionReady      RenditionStatus = "ready"
	RenditionFailed     RenditionStatus = "failed"
)

// Rendition is one resolution-specific HLS output for a video. There is at
// most one row per (video id, resolution); writers go through upserts keyed
// by that pair.
type Rendition struct {
	ID           int64           `json:"id"`
	VideoID      int64           `json:"video_id"`
	Resolution   Resolution      `json:"resolution"`
	Status       RenditionStatus `json:"status"`
	ManifestPath string          `json:"manifest_path"`
	SegmentCount int             `json:"segment_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Segment tracks one transport-stream file of a rendition. Rows are derived
// from storage, so concurrent upserts of the same (rendition id, idx) key
// converge on identical values.
type Segment struct {
	ID          int64  `json:"id"`
	RenditionID int64  `json:"rendition_id"`
	Idx         int    `json:"idx"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum,omitempty"`
	Path        string `json:"path"`
}
