package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/delivery"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/repository"
	"github.com/SaschaGerspach/videoflix/internal/transport/handler"
	"github.com/SaschaGerspach/videoflix/internal/transport/router"
)

type fakeIngestor struct {
	video *entities.Video
	err   error
}

func (f *fakeIngestor) Ingest(ctx context.Context, ownerID int64, title string, r io.Reader) (*entities.Video, error) {
	return f.video, f.err
}

type fakeScheduler struct {
	dispatched []entities.Resolution
	err        error
	calls      int
}

func (f *fakeScheduler) Schedule(ctx context.Context, videoID int64, resolutions []entities.Resolution) ([]entities.Resolution, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.dispatched != nil {
		return f.dispatched, nil
	}
	return resolutions, nil
}

type fakeDelivery struct {
	master   []byte
	manifest []byte
	segment  []byte
}

func (f *fakeDelivery) Master(ctx context.Context, videoID int64) ([]byte, error) {
	if f.master == nil {
		return nil, delivery.ErrNotFound
	}
	return f.master, nil
}

func (f *fakeDelivery) Manifest(ctx context.Context, videoID int64, res entities.Resolution) ([]byte, error) {
	if f.manifest == nil {
		return nil, delivery.ErrNotFound
	}
	return f.manifest, nil
}

func (f *fakeDelivery) Segment(ctx context.Context, videoID int64, res entities.Resolution, name string) ([]byte, error) {
	if f.segment == nil {
		return nil, delivery.ErrNotFound
	}
	return f.segment, nil
}

type fakeInspector struct {
	stats queue.Stats
}

func (f *fakeInspector) Stats(ctx context.Context) (queue.Stats, error) {
	return f.stats, nil
}

type fixture struct {
	videos     *repository.MemoryVideos
	renditions *repository.MemoryRenditions
	scheduler  *fakeScheduler
	delivery   *fakeDelivery
	cfg        *config.Config
	server     *httptest.Server
}

func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		videos:     repository.NewMemoryVideos(),
		renditions: repository.NewMemoryRenditions(),
		scheduler:  &fakeScheduler{},
		delivery:   &fakeDelivery{},
		cfg: &config.Config{
			Environment: "dev",
			Upload:      config.UploadConfig{MaxRequestBodyMB: 64, MaxMultipartMemoryMB: 8},
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	h := handler.New(&fakeIngestor{}, f.scheduler, f.delivery, f.videos, f.renditions, &fakeInspector{}, f.cfg)
	f.server = httptest.NewServer(router.NewRouter(h))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) addVideo(t *testing.T, height *int) int64 {
	t.Helper()
	v := &entities.Video{Title: "clip", SourcePath: "/media/uploads/videos/1.mp4", SourceHeight: height, Status: entities.VideoDraft}
	require.NoError(t, f.videos.Create(context.Background(), v))
	return v.ID
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func intp(v int) *int { return &v }

func TestTranscodeAccepted(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo(t, intp(1080))

	resp, err := http.Post(f.server.URL+"/api/videos/1/transcode", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		VideoID    int64                 `json:"video_id"`
		Planned    []entities.Resolution `json:"planned"`
		Dispatched []entities.Resolution `json:"dispatched"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, id, body.VideoID)
	assert.Equal(t, []entities.Resolution{entities.Res480p, entities.Res720p, entities.Res1080p}, body.Planned)
	assert.Equal(t, body.Planned, body.Dispatched)
	assert.Equal(t, 1, f.scheduler.calls)
}

func TestTranscodeUnknownVideoIs404(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/api/videos/99/transcode", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var apiErr handler.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "video not found", apiErr.Error)
	assert.Equal(t, 0, f.scheduler.calls)
}

func TestStatusListsRenditions(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo(t, intp(720))
	require.NoError(t, f.renditions.Upsert(context.Background(), &entities.Rendition{
		VideoID: id, Resolution: entities.Res480p, Status: entities.RenditionReady, SegmentCount: 12,
	}))

	resp := get(t, f.server.URL+"/api/videos/1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		VideoID    int64                 `json:"video_id"`
		Planned    []entities.Resolution `json:"planned"`
		Renditions []struct {
			Resolution   entities.Resolution      `json:"resolution"`
			Status       entities.RenditionStatus `json:"status"`
			SegmentCount int                      `json:"segment_count"`
		} `json:"renditions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []entities.Resolution{entities.Res480p, entities.Res720p}, body.Planned)
	require.Len(t, body.Renditions, 1)
	assert.Equal(t, entities.RenditionReady, body.Renditions[0].Status)
	assert.Equal(t, 12, body.Renditions[0].SegmentCount)
}

func TestManifestServedWithAndWithoutTrailingSlash(t *testing.T) {
	manifest := []byte("#EXTM3U\n#EXTINF:4.0,\n000.ts\n")
	f := newFixture(t, func(f *fixture) { f.delivery.manifest = manifest })
	f.addVideo(t, intp(720))

	for _, path := range []string{
		"/api/videos/1/hls/720p/index.m3u8",
		"/api/videos/1/hls/720p/index.m3u8/",
	} {
		resp := get(t, f.server.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, hls.ManifestContentType, resp.Header.Get("Content-Type"), path)
		assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"), path)
	}
}

func TestManifestRevalidatesWithETag(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.delivery.manifest = []byte("#EXTM3U\n#EXTINF:4.0,\n000.ts\n") })
	f.addVideo(t, intp(720))

	first := get(t, f.server.URL+"/api/videos/1/hls/720p/index.m3u8")
	etag := first.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/videos/1/hls/720p/index.m3u8", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestSegmentContentType(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.delivery.segment = []byte{0x47, 0x40, 0x00} })
	f.addVideo(t, intp(720))

	resp := get(t, f.server.URL+"/api/videos/1/hls/720p/000.ts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hls.SegmentContentType, resp.Header.Get("Content-Type"))
}

func TestMissingMediaIsStructured404(t *testing.T) {
	f := newFixture(t)
	f.addVideo(t, intp(720))

	resp := get(t, f.server.URL+"/api/videos/1/hls/480p/index.m3u8")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var apiErr handler.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "media not found", apiErr.Error)
}

func TestQueueDebugHiddenInProduction(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.cfg.Environment = "production" })

	resp := get(t, f.server.URL+"/api/debug/queue")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueueDebugNotCached(t *testing.T) {
	f := newFixture(t)

	resp := get(t, f.server.URL+"/api/debug/queue")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestUploadRejectsNonVideoPayload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "not a video"))
	require.NoError(t, mw.WriteField("ownerID", "7"))
	fw, err := mw.CreateFormFile("video", "note.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text, definitely not mpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/videos", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadValidatesParams(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("video", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/videos", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fields map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	assert.Equal(t, "is required", fields["Title"])
	assert.Equal(t, "is required", fields["OwnerID"])
}
