package handler

import "github.com/SaschaGerspach/videoflix/internal/entities"

type UploadVideoParams struct {
	Title   string `validate:"required,max=255"`
	OwnerID int64  `validate:"required"`
}

type uploadResponse struct {
	ID       int64  `json:"id"`
	PublicID string `json:"public_id"`
	Title    string `json:"title"`
	Height   *int   `json:"source_height,omitempty"`
}

type transcodeResponse struct {
	VideoID    int64                 `json:"video_id"`
	Planned    []entities.Resolution `json:"planned"`
	Dispatched []entities.Resolution `json:"dispatched"`
}

type renditionStatus struct {
	Resolution   entities.Resolution      `json:"resolution"`
	Status       entities.RenditionStatus `json:"status"`
	SegmentCount int                      `json:"segment_count"`
}

type statusResponse struct {
	VideoID    int64                 `json:"video_id"`
	Title      string                `json:"title"`
	Height     *int                  `json:"source_height,omitempty"`
	Planned    []entities.Resolution `json:"planned"`
	Renditions []renditionStatus     `json:"renditions"`
}
