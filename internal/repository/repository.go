// Package repository defines the persistence interfaces for videos,
// renditions, and segments. All reads are explicit; rendition and segment
// writes are upserts keyed by their natural unique keys so concurrent
// writers cannot produce duplicate rows.
package repository

import (
	"context"
	"errors"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

var ErrNotFound = errors.New("not found")

type VideoRepository interface {
	Create(ctx context.Context, v *entities.Video) error
	GetByID(ctx context.Context, id int64) (*entities.Video, error)
	// SetSource commits the source file path and probed height after ingest.
	SetSource(ctx context.Context, id int64, sourcePath string, height *int) error
	List(ctx context.Context) ([]entities.Video, error)
}

type RenditionRepository interface {
	// Upsert inserts or updates the row keyed by (video id, resolution).
	Upsert(ctx context.Context, r *entities.Rendition) error
	Get(ctx context.Context, videoID int64, res entities.Resolution) (*entities.Rendition, error)
	ListByVideo(ctx context.Context, videoID int64) ([]entities.Rendition, error)
	// SetStatus moves the row keyed by (video id, resolution) to the given
	// status, creating it when absent so worker and inline execution never
	// race against row creation.
	SetStatus(ctx context.Context, videoID int64, res entities.Resolution, status entities.RenditionStatus) error
}

type SegmentRepository interface {
	// Upsert inserts or updates the row keyed by (rendition id, idx).
	Upsert(ctx context.Context, s *entities.Segment) error
	ListByRendition(ctx context.Context, renditionID int64) ([]entities.Segment, error)
	DeleteByRendition(ctx context.Context, renditionID int64) error
}
