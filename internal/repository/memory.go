package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

// MemoryVideos is an in-memory VideoRepository used in tests and local runs
// without a database.
type MemoryVideos struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*entities.Video
}

func NewMemoryVideos() *MemoryVideos {
	return &MemoryVideos{data: make(map[int64]*entities.Video)}
}

func (r *MemoryVideos) Create(ctx context.Context, v *entities.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	v.ID = r.nextID

	// Defensive copy so the caller cannot mutate the stored object.
	cp := *v
	r.data[v.ID] = &cp
	return nil
}

func (r *MemoryVideos) GetByID(ctx context.Context, id int64) (*entities.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryVideos) SetSource(ctx context.Context, id int64, sourcePath string, height *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	v.SourcePath = sourcePath
	v.SourceHeight = height
	v.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryVideos) List(ctx context.Context) ([]entities.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.Video, 0, len(r.data))
	for _, v := range r.data {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type renditionKey struct {
	videoID int64
	res     entities.Resolution
}

// MemoryRenditions is an in-memory RenditionRepository.
type MemoryRenditions struct {
	mu     sync.Mutex
	nextID int64
	data   map[renditionKey]*entities.Rendition
}

func NewMemoryRenditions() *MemoryRenditions {
	return &MemoryRenditions{data: make(map[renditionKey]*entities.Rendition)}
}

func (r *MemoryRenditions) Upsert(ctx context.Context, rn *entities.Rendition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := renditionKey{videoID: rn.VideoID, res: rn.Resolution}
	existing, ok := r.data[key]
	if !ok {
		r.nextID++
		rn.ID = r.nextID
		rn.UpdatedAt = time.Now()
		cp := *rn
		r.data[key] = &cp
		return nil
	}

	existing.Status = rn.Status
	existing.ManifestPath = rn.ManifestPath
	existing.SegmentCount = rn.SegmentCount
	existing.UpdatedAt = time.Now()
	rn.ID = existing.ID
	rn.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MemoryRenditions) Get(ctx context.Context, videoID int64, res entities.Resolution) (*entities.Rendition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rn, ok := r.data[renditionKey{videoID: videoID, res: res}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rn
	return &cp, nil
}

func (r *MemoryRenditions) ListByVideo(ctx context.Context, videoID int64) ([]entities.Rendition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entities.Rendition
	for key, rn := range r.data {
		if key.videoID == videoID {
			out = append(out, *rn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resolution < out[j].Resolution })
	return out, nil
}

func (r *MemoryRenditions) SetStatus(ctx context.Context, videoID int64, res entities.Resolution, status entities.RenditionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := renditionKey{videoID: videoID, res: res}
	existing, ok := r.data[key]
	if !ok {
		r.nextID++
		r.data[key] = &entities.Rendition{
			ID:         r.nextID,
			VideoID:    videoID,
			Resolution: res,
			Status:     status,
			UpdatedAt:  time.Now(),
		}
		return nil
	}
	existing.Status = status
	existing.UpdatedAt = time.Now()
	return nil
}

type segmentKey struct {
	renditionID int64
	idx         int
}

// MemorySegments is an in-memory SegmentRepository.
type MemorySegments struct {
	mu     sync.Mutex
	nextID int64
	data   map[segmentKey]*entities.Segment
}

func NewMemorySegments() *MemorySegments {
	return &MemorySegments{data: make(map[segmentKey]*entities.Segment)}
}

func (r *MemorySegments) Upsert(ctx context.Context, s *entities.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := segmentKey{renditionID: s.RenditionID, idx: s.Idx}
	existing, ok := r.data[key]
	if !ok {
		r.nextID++
		s.ID = r.nextID
		cp := *s
		r.data[key] = &cp
		return nil
	}
	existing.Size = s.Size
	existing.Checksum = s.Checksum
	existing.Path = s.Path
	s.ID = existing.ID
	return nil
}

func (r *MemorySegments) ListByRendition(ctx context.Context, renditionID int64) ([]entities.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entities.Segment
	for key, s := range r.data {
		if key.renditionID == renditionID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	return out, nil
}

func (r *MemorySegments) DeleteByRendition(ctx context.Context, renditionID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.data {
		if key.renditionID == renditionID {
			delete(r.data, key)
		}
	}
	return nil
}
