// Package ingest accepts an uploaded source, commits it to storage and the
// database, and announces it on the event bus. Probing is best effort: a
// source whose height cannot be determined is still ingested.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/events"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/probe"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

type Service struct {
	mediaRoot string
	videos    repository.VideoRepository
	prober    probe.Prober
	bus       *events.Bus
}

func NewService(mediaRoot string, videos repository.VideoRepository, prober probe.Prober, bus *events.Bus) *Service {
	return &Service{
		mediaRoot: mediaRoot,
		videos:    videos,
		prober:    prober,
		bus:       bus,
	}
}

// Ingest creates the video record, streams the upload into the media root,
// probes the source height, and publishes SourceCommitted. The returned
// video carries the probed height when probing succeeded.
func (s *Service) Ingest(ctx context.Context, ownerID int64, title string, r io.Reader) (*entities.Video, error) {
	v := &entities.Video{
		PublicID: uuid.New(),
		OwnerID:  ownerID,
		Title:    title,
		Status:   entities.VideoDraft,
	}
	if err := s.videos.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	path := hls.SourcePath(s.mediaRoot, v.ID)
	if err := s.writeSource(path, r); err != nil {
		return nil, fmt.Errorf("store source for video %d: %w", v.ID, err)
	}

	height := s.probeHeight(ctx, v.ID, path)

	if err := s.videos.SetSource(ctx, v.ID, path, height); err != nil {
		return nil, fmt.Errorf("commit source for video %d: %w", v.ID, err)
	}
	v.SourcePath = path
	v.SourceHeight = height

	s.bus.PublishSourceCommitted(ctx, events.SourceCommitted{
		VideoID:    v.ID,
		SourcePath: path,
		Height:     height,
	})
	return v, nil
}

func (s *Service) writeSource(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// probeHeight returns nil when the source cannot be inspected; planning
// falls back to its permissive default in that case.
func (s *Service) probeHeight(ctx context.Context, videoID int64, path string) *int {
	h, err := s.prober.Height(ctx, path)
	if err != nil {
		log.Printf("[ingest] probe failed, continuing without height: video_id=%d, error=%v", videoID, err)
		return nil
	}
	return &h
}
