package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/delivery"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/planner"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/repository"
)

type Ingestor interface {
	Ingest(ctx context.Context, ownerID int64, title string, r io.Reader) (*entities.Video, error)
}

type TranscodeScheduler interface {
	Schedule(ctx context.Context, videoID int64, resolutions []entities.Resolution) ([]entities.Resolution, error)
}

type MediaDelivery interface {
	Master(ctx context.Context, videoID int64) ([]byte, error)
	Manifest(ctx context.Context, videoID int64, res entities.Resolution) ([]byte, error)
	Segment(ctx context.Context, videoID int64, res entities.Resolution, name string) ([]byte, error)
}

type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type Handler struct {
	ingestor   Ingestor
	scheduler  TranscodeScheduler
	delivery   MediaDelivery
	videos     repository.VideoRepository
	renditions repository.RenditionRepository
	inspector  QueueInspector
	cfg        *config.Config
	validator  *validator.Validate
}

func New(ingestor Ingestor, scheduler TranscodeScheduler, mediaDelivery MediaDelivery, videos repository.VideoRepository, renditions repository.RenditionRepository, inspector QueueInspector, cfg *config.Config) *Handler {
	return &Handler{
		ingestor:   ingestor,
		scheduler:  scheduler,
		delivery:   mediaDelivery,
		videos:     videos,
		renditions: renditions,
		inspector:  inspector,
		cfg:        cfg,
		validator:  validator.New(),
	}
}

func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	maxMultipartMem := h.cfg.Upload.MaxMultipartMemoryMB
	if err := r.ParseMultipartForm(maxMultipartMem << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, _, err := r.FormFile("video")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing video file: form field key should be "video"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := UploadVideoParams{
		Title:   r.Form.Get("title"),
		OwnerID: parseInt64Default(r.Form.Get("ownerID"), 0),
	}

	if err := h.validator.Struct(params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(validationErrorsToMap(err))
		return
	}

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !strings.HasPrefix(mime.String(), "video/") {
		writeJSONError(w, fmt.Sprintf("unsupported file type: %s", mime.String()), http.StatusBadRequest)
		return
	}

	v, err := h.ingestor.Ingest(r.Context(), params.OwnerID, params.Title, file)
	if err != nil {
		log.Printf("[handler] ingest failed: %v", err)
		writeJSONError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	writeJSON(w, uploadResponse{
		ID:       v.ID,
		PublicID: v.PublicID.String(),
		Title:    v.Title,
		Height:   v.SourceHeight,
	}, http.StatusCreated)
}

// Transcode plans renditions from the stored source height and dispatches
// each through the debounced scheduling path. 202 means accepted for
// processing, with the suppressed resolutions visible as the difference
// between planned and dispatched.
func (h *Handler) Transcode(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	v, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, "video not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if v.SourcePath == "" {
		writeJSONError(w, "video has no source yet", http.StatusConflict)
		return
	}

	planned := planner.Plan(v.SourceHeight)
	dispatched, err := h.scheduler.Schedule(r.Context(), videoID, planned)
	if err != nil {
		log.Printf("[handler] schedule failed: video_id=%d, error=%v", videoID, err)
		writeJSONError(w, "failed to schedule transcodes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, transcodeResponse{
		VideoID:    videoID,
		Planned:    planned,
		Dispatched: dispatched,
	}, http.StatusAccepted)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	v, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, "video not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows, err := h.renditions.ListByVideo(r.Context(), videoID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		VideoID:    v.ID,
		Title:      v.Title,
		Height:     v.SourceHeight,
		Planned:    planner.Plan(v.SourceHeight),
		Renditions: make([]renditionStatus, 0, len(rows)),
	}
	for _, rn := range rows {
		resp.Renditions = append(resp.Renditions, renditionStatus{
			Resolution:   rn.Resolution,
			Status:       rn.Status,
			SegmentCount: rn.SegmentCount,
		})
	}
	writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) Master(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}

	data, err := h.delivery.Master(r.Context(), videoID)
	if err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeMedia(w, r, hls.ManifestContentType, data)
}

func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}
	res := entities.Resolution(chi.URLParam(r, "resolution"))

	data, err := h.delivery.Manifest(r.Context(), videoID, res)
	if err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeMedia(w, r, hls.ManifestContentType, data)
}

func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.videoID(w, r)
	if !ok {
		return
	}
	res := entities.Resolution(chi.URLParam(r, "resolution"))
	name := chi.URLParam(r, "segment")

	data, err := h.delivery.Segment(r.Context(), videoID, res, name)
	if err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeMedia(w, r, hls.SegmentContentType, data)
}

// QueueDebug exposes stream counters outside production.
func (h *Handler) QueueDebug(w http.ResponseWriter, r *http.Request) {
	if h.cfg.IsProduction() {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	stats, err := h.inspector.Stats(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, stats, http.StatusOK)
}

func (h *Handler) videoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "videoID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid video id", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeDeliveryError(w http.ResponseWriter, err error) {
	if errors.Is(err, delivery.ErrNotFound) {
		writeJSONError(w, "media not found", http.StatusNotFound)
		return
	}
	writeJSONError(w, err.Error(), http.StatusInternalServerError)
}
