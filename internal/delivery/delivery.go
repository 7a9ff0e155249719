// Package delivery serves HLS manifests and segments directly from the media
// root. Storage is the source of truth: requests succeed whenever the file
// exists, and tracking records are repaired opportunistically as a side
// effect of serving.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

// ErrNotFound is returned when the requested file does not exist on disk,
// regardless of what the database claims.
var ErrNotFound = errors.New("media file not found")

type Service struct {
	mediaRoot  string
	videos     repository.VideoRepository
	renditions repository.RenditionRepository
	segments   repository.SegmentRepository
}

func NewService(mediaRoot string, videos repository.VideoRepository, renditions repository.RenditionRepository, segments repository.SegmentRepository) *Service {
	return &Service{
		mediaRoot:  mediaRoot,
		videos:     videos,
		renditions: renditions,
		segments:   segments,
	}
}

// Manifest returns the rendition playlist bytes. A readable non-stub
// manifest triggers a best-effort record heal; a heal failure never fails
// the request.
func (s *Service) Manifest(ctx context.Context, videoID int64, res entities.Resolution) ([]byte, error) {
	if !res.Valid() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(hls.ManifestPath(s.mediaRoot, videoID, res))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if !hls.IsStubManifest(data) {
		if err := s.healRendition(ctx, videoID, res); err != nil {
			log.Printf("[delivery] heal failed: video_id=%d, resolution=%s, error=%v", videoID, res, err)
			sentry.CaptureException(err)
		}
	}
	return data, nil
}

// Segment returns the transport-stream bytes for one segment file. Unknown
// or traversal-shaped names map to ErrNotFound.
func (s *Service) Segment(ctx context.Context, videoID int64, res entities.Resolution, name string) ([]byte, error) {
	if !res.Valid() || !hls.ValidSegmentName(name) {
		return nil, ErrNotFound
	}

	path := hls.SegmentPath(s.mediaRoot, videoID, res, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read segment: %w", err)
	}

	if err := s.healSegment(ctx, videoID, res, name, data); err != nil {
		log.Printf("[delivery] segment heal failed: video_id=%d, resolution=%s, segment=%s, error=%v", videoID, res, name, err)
		sentry.CaptureException(err)
	}
	return data, nil
}

// Master returns the master playlist, regenerating it from the rendition
// manifests on disk when absent.
func (s *Service) Master(ctx context.Context, videoID int64) ([]byte, error) {
	path := hls.MasterPath(s.mediaRoot, videoID)
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master playlist: %w", err)
	}

	if err := hls.WriteMasterPlaylist(s.mediaRoot, videoID); err != nil {
		return nil, fmt.Errorf("rebuild master playlist: %w", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read master playlist: %w", err)
	}
	return data, nil
}

// healRendition makes the tracking record agree with what storage proves.
// Only a readable non-stub manifest proves "servable": without one there is
// nothing to reconcile the status against and the record is left alone.
func (s *Service) healRendition(ctx context.Context, videoID int64, res entities.Resolution) error {
	manifest, err := os.ReadFile(hls.ManifestPath(s.mediaRoot, videoID, res))
	if err != nil || hls.IsStubManifest(manifest) {
		return nil
	}

	segs := hls.ListSegments(s.mediaRoot, videoID, res)
	return s.renditions.Upsert(ctx, &entities.Rendition{
		VideoID:      videoID,
		Resolution:   res,
		Status:       entities.RenditionReady,
		ManifestPath: hls.ManifestPath(s.mediaRoot, videoID, res),
		SegmentCount: len(segs),
	})
}

func (s *Service) healSegment(ctx context.Context, videoID int64, res entities.Resolution, name string, data []byte) error {
	if err := s.healRendition(ctx, videoID, res); err != nil {
		return err
	}
	rn, err := s.renditions.Get(ctx, videoID, res)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Segment exists but nothing proves the rendition is
			// servable and there is no record to attach the row to.
			return nil
		}
		return err
	}

	idx, err := hls.SegmentIndex(name)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	return s.segments.Upsert(ctx, &entities.Segment{
		RenditionID: rn.ID,
		Idx:         idx,
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
		Path:        hls.SegmentPath(s.mediaRoot, videoID, res, name),
	})
}
