// Package storage holds the Postgres implementations of the repository
// interfaces. Rendition and segment writes use INSERT ... ON CONFLICT on the
// natural unique keys so concurrent writers converge without locking.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

type VideoRepo struct{ *dbStorage }
type RenditionRepo struct{ *dbStorage }
type SegmentRepo struct{ *dbStorage }

// New creates the shared connection pool and the three repositories on top
// of it.
func New(ctx context.Context, databaseDSN string) (*VideoRepo, *RenditionRepo, *SegmentRepo, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &dbStorage{dbpool: pool}
	return &VideoRepo{s}, &RenditionRepo{s}, &SegmentRepo{s}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

func (r *VideoRepo) Create(ctx context.Context, v *entities.Video) error {
	const q = `
		INSERT INTO videos (public_id, owner_id, title, source_path, source_height, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.dbpool.QueryRow(ctx, q,
		v.PublicID, v.OwnerID, v.Title, v.SourcePath, v.SourceHeight, v.Status,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("video create: %w", err)
	}
	return nil
}

func (r *VideoRepo) GetByID(ctx context.Context, id int64) (*entities.Video, error) {
	const q = `
		SELECT id, public_id, owner_id, title, source_path, source_height, status, created_at, updated_at
		FROM videos
		WHERE id = $1
	`
	var v entities.Video
	err := r.dbpool.QueryRow(ctx, q, id).Scan(
		&v.ID, &v.PublicID, &v.OwnerID, &v.Title, &v.SourcePath, &v.SourceHeight, &v.Status, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("video get by id: %w", err)
	}
	return &v, nil
}

func (r *VideoRepo) SetSource(ctx context.Context, id int64, sourcePath string, height *int) error {
	const q = `
		UPDATE videos
		SET source_path = $2, source_height = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.dbpool.Exec(ctx, q, id, sourcePath, height)
	if err != nil {
		return fmt.Errorf("video set source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *VideoRepo) List(ctx context.Context) ([]entities.Video, error) {
	const q = `
		SELECT id, public_id, owner_id, title, source_path, source_height, status, created_at, updated_at
		FROM videos
		ORDER BY id
	`
	rows, err := r.dbpool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("video list: %w", err)
	}
	defer rows.Close()

	var out []entities.Video
	for rows.Next() {
		var v entities.Video
		if err := rows.Scan(
			&v.ID, &v.PublicID, &v.OwnerID, &v.Title, &v.SourcePath, &v.SourceHeight, &v.Status, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("video list scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *RenditionRepo) Upsert(ctx context.Context, rn *entities.Rendition) error {
	const q = `
		INSERT INTO renditions (video_id, resolution, status, manifest_path, segment_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (video_id, resolution) DO UPDATE
		SET status = EXCLUDED.status,
		    manifest_path = EXCLUDED.manifest_path,
		    segment_count = EXCLUDED.segment_count,
		    updated_at = NOW()
		RETURNING id, updated_at
	`
	err := r.dbpool.QueryRow(ctx, q,
		rn.VideoID, rn.Resolution, rn.Status, rn.ManifestPath, rn.SegmentCount,
	).Scan(&rn.ID, &rn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("rendition upsert: %w", err)
	}
	return nil
}

func (r *RenditionRepo) Get(ctx context.Context, videoID int64, res entities.Resolution) (*entities.Rendition, error) {
	const q = `
		SELECT id, video_id, resolution, status, manifest_path, segment_count, updated_at
		FROM renditions
		WHERE video_id = $1 AND resolution = $2
	`
	var rn entities.Rendition
	err := r.dbpool.QueryRow(ctx, q, videoID, res).Scan(
		&rn.ID, &rn.VideoID, &rn.Resolution, &rn.Status, &rn.ManifestPath, &rn.SegmentCount, &rn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("rendition get: %w", err)
	}
	return &rn, nil
}

func (r *RenditionRepo) ListByVideo(ctx context.Context, videoID int64) ([]entities.Rendition, error) {
	const q = `
		SELECT id, video_id, resolution, status, manifest_path, segment_count, updated_at
		FROM renditions
		WHERE video_id = $1
		ORDER BY resolution
	`
	rows, err := r.dbpool.Query(ctx, q, videoID)
	if err != nil {
		return nil, fmt.Errorf("rendition list: %w", err)
	}
	defer rows.Close()

	var out []entities.Rendition
	for rows.Next() {
		var rn entities.Rendition
		if err := rows.Scan(
			&rn.ID, &rn.VideoID, &rn.Resolution, &rn.Status, &rn.ManifestPath, &rn.SegmentCount, &rn.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("rendition list scan: %w", err)
		}
		out = append(out, rn)
	}
	return out, rows.Err()
}

func (r *RenditionRepo) SetStatus(ctx context.Context, videoID int64, res entities.Resolution, status entities.RenditionStatus) error {
	const q = `
		INSERT INTO renditions (video_id, resolution, status, manifest_path, segment_count, updated_at)
		VALUES ($1, $2, $3, '', 0, NOW())
		ON CONFLICT (video_id, resolution) DO UPDATE
		SET status = EXCLUDED.status,
		    updated_at = NOW()
	`
	if _, err := r.dbpool.Exec(ctx, q, videoID, res, status); err != nil {
		return fmt.Errorf("rendition set status: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Upsert(ctx context.Context, s *entities.Segment) error {
	const q = `
		INSERT INTO segments (rendition_id, idx, size, checksum, path)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rendition_id, idx) DO UPDATE
		SET size = EXCLUDED.size,
		    checksum = EXCLUDED.checksum,
		    path = EXCLUDED.path
		RETURNING id
	`
	err := r.dbpool.QueryRow(ctx, q, s.RenditionID, s.Idx, s.Size, s.Checksum, s.Path).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("segment upsert: %w", err)
	}
	return nil
}

func (r *SegmentRepo) ListByRendition(ctx context.Context, renditionID int64) ([]entities.Segment, error) {
	const q = `
		SELECT id, rendition_id, idx, size, checksum, path
		FROM segments
		WHERE rendition_id = $1
		ORDER BY idx
	`
	rows, err := r.dbpool.Query(ctx, q, renditionID)
	if err != nil {
		return nil, fmt.Errorf("segment list: %w", err)
	}
	defer rows.Close()

	var out []entities.Segment
	for rows.Next() {
		var s entities.Segment
		if err := rows.Scan(&s.ID, &s.RenditionID, &s.Idx, &s.Size, &s.Checksum, &s.Path); err != nil {
			return nil, fmt.Errorf("segment list scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) DeleteByRendition(ctx context.Context, renditionID int64) error {
	if _, err := r.dbpool.Exec(ctx, `DELETE FROM segments WHERE rendition_id = $1`, renditionID); err != nil {
		return fmt.Errorf("segment delete: %w", err)
	}
	return nil
}
