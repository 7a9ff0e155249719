package entities

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoDraft     VideoStatus = "draft"
	VideoPublished VideoStatus = "published"
)

type Video struct {
	ID           int64       `json:"id"`
	PublicID     uuid.UUID   `json:"public_id"`
	OwnerID      int64       `json:"owner_id"`
	Title        string      `json:"title"`
	SourcePath   string      `json:"source_path"`
	SourceHeight *int        `json:"source_height,omitempty"`
	Status       VideoStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
