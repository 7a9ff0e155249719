// Package transcoder shells out to ffmpeg to produce the HLS artifacts for
// one rendition. The rest of the system treats it as opaque: the scheduler
// and workers only observe whether Transcode returned an error.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
)

type FFmpeg struct {
	MediaRoot string
	// BinaryPath overrides the ffmpeg binary, mostly for tests and containers.
	BinaryPath string
}

func NewFFmpeg(mediaRoot string) *FFmpeg {
	return &FFmpeg{MediaRoot: mediaRoot, BinaryPath: "ffmpeg"}
}

// Transcode produces <media>/hls/<id>/<res>/index.m3u8 plus numbered .ts
// segments and refreshes the master playlist. A non-zero ffmpeg exit is
// returned as an error; cleanup of partial output is left to the
// maintenance scan.
func (f *FFmpeg) Transcode(ctx context.Context, videoID int64, res entities.Resolution) error {
	profile, ok := hls.Profiles[res]
	if !ok {
		return fmt.Errorf("no transcode profile for resolution %q", res)
	}

	source := hls.SourcePath(f.MediaRoot, videoID)
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source missing for video %d: %w", videoID, err)
	}

	outDir := hls.RenditionDir(f.MediaRoot, videoID, res)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create rendition dir: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=-2:%d", profile.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", profile.VideoBitrate,
		"-maxrate", profile.MaxRate,
		"-bufsize", profile.BufSize,
		"-c:a", "aac",
		"-b:a", profile.AudioBitrate,
		"-ac", "2",
		"-ar", "48000",
		"-hls_time", "4",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "%03d.ts"),
		filepath.Join(outDir, hls.ManifestName),
	}

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Printf("[transcoder] start: video_id=%d, resolution=%s", videoID, res)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %d/%s: %w - %s", videoID, res, err, stderr.String())
	}

	if err := hls.WriteMasterPlaylist(f.MediaRoot, videoID); err != nil {
		// The rendition itself succeeded; the master playlist can be
		// regenerated by the next heal run.
		log.Printf("[transcoder] master playlist refresh failed: video_id=%d, error=%v", videoID, err)
	}

	log.Printf("[transcoder] done: video_id=%d, resolution=%s", videoID, res)
	return nil
}

func (f *FFmpeg) binary() string {
	if f.BinaryPath != "" {
		return f.BinaryPath
	}
	return "ffmpeg"
}
