package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/SaschaGerspach/videoflix/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/videos", h.UploadVideo)
		r.Post("/videos/{videoID}/transcode", h.Transcode)
		r.Get("/videos/{videoID}/status", h.Status)

		// Players request playlists both with and without a trailing
		// slash; registering both avoids a 301 mid-stream.
		r.Get("/videos/{videoID}/hls/index.m3u8", h.Master)
		r.Get("/videos/{videoID}/hls/index.m3u8/", h.Master)
		r.Get("/videos/{videoID}/hls/{resolution}/index.m3u8", h.Manifest)
		r.Get("/videos/{videoID}/hls/{resolution}/index.m3u8/", h.Manifest)
		r.Get("/videos/{videoID}/hls/{resolution}/{segment}", h.Segment)
		r.Get("/videos/{videoID}/hls/{resolution}/{segment}/", h.Segment)

		r.Get("/debug/queue", h.QueueDebug)
	})

	return r
}
