// Package maintenance reconciles the media root with the tracking records.
// Storage wins every disagreement: records are rewritten from disk, stale
// ready rows are downgraded, missing renditions are re-enqueued through the
// regular scheduling path, and directories no video owns can be pruned.
package maintenance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/planner"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

// Filter narrows a run to specific videos or resolutions. Empty slices mean
// no restriction.
type Filter struct {
	VideoIDs    []int64
	Resolutions []entities.Resolution
}

func (f Filter) matchVideo(id int64) bool {
	if len(f.VideoIDs) == 0 {
		return true
	}
	for _, v := range f.VideoIDs {
		if v == id {
			return true
		}
	}
	return false
}

func (f Filter) matchResolution(res entities.Resolution) bool {
	if len(f.Resolutions) == 0 {
		return true
	}
	for _, r := range f.Resolutions {
		if r == res {
			return true
		}
	}
	return false
}

// Target identifies one (video, resolution) pair in a report.
type Target struct {
	VideoID    int64               `json:"video_id"`
	Resolution entities.Resolution `json:"resolution"`
}

// Orphan is a directory under the media root that no tracked video owns.
type Orphan struct {
	Path    string `json:"path"`
	VideoID int64  `json:"video_id"`
}

// Report is the outcome of a scan: every planned rendition lands in exactly
// one of OK, Heal, or Stale+Missing.
type Report struct {
	OK      []Target `json:"ok"`
	Heal    []Target `json:"heal"`
	Missing []Target `json:"missing"`
	Stale   []Target `json:"stale"`
	Orphans []Orphan `json:"orphans"`
}

// Summary counts the mutations of a heal or prune run.
type Summary struct {
	Healed   int `json:"healed"`
	Degraded int `json:"degraded"`
	Enqueued int `json:"enqueued"`
	Pruned   int `json:"pruned"`
}

// Scheduler is the subset of the scheduling service a maintenance run needs.
type Scheduler interface {
	Schedule(ctx context.Context, videoID int64, resolutions []entities.Resolution) ([]entities.Resolution, error)
}

// Thumbnailer regenerates a video's poster thumbnail from its source.
type Thumbnailer interface {
	Generate(ctx context.Context, videoID int64) error
}

type Runner struct {
	mediaRoot  string
	videos     repository.VideoRepository
	renditions repository.RenditionRepository
	segments   repository.SegmentRepository
	scheduler  Scheduler
	thumbs     Thumbnailer
}

func NewRunner(mediaRoot string, videos repository.VideoRepository, renditions repository.RenditionRepository, segments repository.SegmentRepository, scheduler Scheduler) *Runner {
	return &Runner{
		mediaRoot:  mediaRoot,
		videos:     videos,
		renditions: renditions,
		segments:   segments,
		scheduler:  scheduler,
	}
}

// WithThumbnails enables thumbnail regeneration for healed videos whose
// thumbnail file is missing.
func (r *Runner) WithThumbnails(t Thumbnailer) *Runner {
	r.thumbs = t
	return r
}

// Scan classifies every planned rendition of every matching video.
//
//	OK:      servable on disk, record agrees it is ready
//	Heal:    servable on disk, record absent or disagreeing
//	Stale:   record claims ready but disk has nothing servable
//	Missing: nothing servable on disk (includes every Stale target)
//
// It also lists orphaned directories under hls/ whose video id is unknown.
func (r *Runner) Scan(ctx context.Context, filter Filter) (*Report, error) {
	videos, err := r.videos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	report := &Report{}
	known := make(map[int64]bool, len(videos))

	for _, v := range videos {
		known[v.ID] = true
		if !filter.matchVideo(v.ID) {
			continue
		}
		for _, res := range planner.Plan(v.SourceHeight) {
			if !filter.matchResolution(res) {
				continue
			}
			target := Target{VideoID: v.ID, Resolution: res}

			if r.servable(v.ID, res) {
				if r.recordAgrees(ctx, v.ID, res) {
					report.OK = append(report.OK, target)
				} else {
					report.Heal = append(report.Heal, target)
				}
				continue
			}

			report.Missing = append(report.Missing, target)
			if rn, err := r.renditions.Get(ctx, v.ID, res); err == nil && rn.Status == entities.RenditionReady {
				report.Stale = append(report.Stale, target)
			}
		}
	}

	orphans, err := r.findOrphans(known, filter)
	if err != nil {
		return nil, err
	}
	report.Orphans = orphans
	return report, nil
}

// Heal rewrites records from storage for every Heal target and downgrades
// every Stale record to pending. Segment rows are rebuilt wholesale so
// deleted segment files disappear from the records too.
func (r *Runner) Heal(ctx context.Context, filter Filter) (*Summary, error) {
	report, err := r.Scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	healedVideos := make(map[int64]bool)
	for _, t := range report.Heal {
		if err := r.healTarget(ctx, t); err != nil {
			return sum, fmt.Errorf("heal %d/%s: %w", t.VideoID, t.Resolution, err)
		}
		sum.Healed++
		healedVideos[t.VideoID] = true
	}
	r.regenerateThumbs(ctx, healedVideos)

	for _, t := range report.Stale {
		if err := r.renditions.Upsert(ctx, &entities.Rendition{
			VideoID:    t.VideoID,
			Resolution: t.Resolution,
			Status:     entities.RenditionPending,
		}); err != nil {
			return sum, fmt.Errorf("degrade %d/%s: %w", t.VideoID, t.Resolution, err)
		}
		sum.Degraded++
	}

	if sum.Healed > 0 || sum.Degraded > 0 {
		log.Printf("[maintenance] heal: healed=%d, degraded=%d", sum.Healed, sum.Degraded)
	}
	return sum, nil
}

// EnqueueMissing schedules every Missing target through the regular
// debounced path, so a burst of maintenance runs cannot double-enqueue.
func (r *Runner) EnqueueMissing(ctx context.Context, filter Filter) (*Summary, error) {
	report, err := r.Scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	byVideo := make(map[int64][]entities.Resolution)
	var order []int64
	for _, t := range report.Missing {
		if _, seen := byVideo[t.VideoID]; !seen {
			order = append(order, t.VideoID)
		}
		byVideo[t.VideoID] = append(byVideo[t.VideoID], t.Resolution)
	}

	sum := &Summary{}
	for _, videoID := range order {
		dispatched, err := r.scheduler.Schedule(ctx, videoID, byVideo[videoID])
		if err != nil {
			return sum, fmt.Errorf("enqueue video %d: %w", videoID, err)
		}
		sum.Enqueued += len(dispatched)
	}

	log.Printf("[maintenance] enqueue-missing: enqueued=%d", sum.Enqueued)
	return sum, nil
}

// PruneOrphans deletes directories no video owns. Without confirm it only
// reports what would be removed.
func (r *Runner) PruneOrphans(ctx context.Context, filter Filter, confirm bool) (*Report, *Summary, error) {
	report, err := r.Scan(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	sum := &Summary{}
	if !confirm {
		log.Printf("[maintenance] prune-orphans dry run: candidates=%d", len(report.Orphans))
		return report, sum, nil
	}

	for _, o := range report.Orphans {
		if err := os.RemoveAll(o.Path); err != nil {
			return report, sum, fmt.Errorf("prune %s: %w", o.Path, err)
		}
		log.Printf("[maintenance] pruned: path=%s", o.Path)
		sum.Pruned++
	}
	return report, sum, nil
}

// servable reports whether the rendition has a non-stub manifest on disk.
func (r *Runner) servable(videoID int64, res entities.Resolution) bool {
	data, err := os.ReadFile(hls.ManifestPath(r.mediaRoot, videoID, res))
	if err != nil {
		return false
	}
	return !hls.IsStubManifest(data)
}

func (r *Runner) recordAgrees(ctx context.Context, videoID int64, res entities.Resolution) bool {
	rn, err := r.renditions.Get(ctx, videoID, res)
	if err != nil {
		return false
	}
	return rn.Status == entities.RenditionReady &&
		rn.SegmentCount == len(hls.ListSegments(r.mediaRoot, videoID, res))
}

func (r *Runner) healTarget(ctx context.Context, t Target) error {
	segs := hls.ListSegments(r.mediaRoot, t.VideoID, t.Resolution)
	if err := r.renditions.Upsert(ctx, &entities.Rendition{
		VideoID:      t.VideoID,
		Resolution:   t.Resolution,
		Status:       entities.RenditionReady,
		ManifestPath: hls.ManifestPath(r.mediaRoot, t.VideoID, t.Resolution),
		SegmentCount: len(segs),
	}); err != nil {
		return err
	}

	rn, err := r.renditions.Get(ctx, t.VideoID, t.Resolution)
	if err != nil {
		return err
	}

	// Rebuild segment rows from scratch so rows for deleted files go away.
	if err := r.segments.DeleteByRendition(ctx, rn.ID); err != nil {
		return err
	}
	for _, name := range segs {
		idx, err := hls.SegmentIndex(name)
		if err != nil {
			continue
		}
		path := hls.SegmentPath(r.mediaRoot, t.VideoID, t.Resolution, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		if err := r.segments.Upsert(ctx, &entities.Segment{
			RenditionID: rn.ID,
			Idx:         idx,
			Size:        int64(len(data)),
			Checksum:    hex.EncodeToString(sum[:]),
			Path:        path,
		}); err != nil {
			return err
		}
	}

	return hls.WriteMasterPlaylist(r.mediaRoot, t.VideoID)
}

// regenerateThumbs is best effort: a video with healed renditions but no
// thumbnail gets one rebuilt from its source when possible.
func (r *Runner) regenerateThumbs(ctx context.Context, videoIDs map[int64]bool) {
	if r.thumbs == nil {
		return
	}
	for videoID := range videoIDs {
		if _, err := os.Stat(hls.ThumbPath(r.mediaRoot, videoID)); err == nil {
			continue
		}
		if _, err := os.Stat(hls.SourcePath(r.mediaRoot, videoID)); err != nil {
			continue
		}
		if err := r.thumbs.Generate(ctx, videoID); err != nil {
			log.Printf("[maintenance] thumbnail regeneration failed: video_id=%d, error=%v", videoID, err)
		}
	}
}

// findOrphans walks hls/ for directories whose name is not the id of any
// known video.
func (r *Runner) findOrphans(known map[int64]bool, filter Filter) ([]Orphan, error) {
	root := hls.Root(r.mediaRoot)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read hls root: %w", err)
	}

	var orphans []Orphan
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			// A directory that is not a video id has no id to match a
			// video filter against; only an unfiltered run may touch it.
			if len(filter.VideoIDs) > 0 {
				continue
			}
			orphans = append(orphans, Orphan{Path: filepath.Join(root, e.Name())})
			continue
		}
		if known[id] || !filter.matchVideo(id) {
			continue
		}
		orphans = append(orphans, Orphan{
			Path:    filepath.Join(root, e.Name()),
			VideoID: id,
		})
	}
	return orphans, nil
}
