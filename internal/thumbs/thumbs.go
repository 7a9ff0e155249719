// Package thumbs extracts a poster frame from a source video and stores it
// as a resized webp next to the HLS output.
package thumbs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/SaschaGerspach/videoflix/internal/hls"
)

type Generator struct {
	MediaRoot string
	Width     int
	Height    int
	// BinaryPath overrides the ffmpeg binary.
	BinaryPath string
}

func NewGenerator(mediaRoot string, width, height int) *Generator {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 360
	}
	return &Generator{MediaRoot: mediaRoot, Width: width, Height: height, BinaryPath: "ffmpeg"}
}

// Generate grabs a frame one second in, fits it into the configured box, and
// writes <media>/thumbs/<id>.webp. Failures leave no partial file behind.
func (g *Generator) Generate(ctx context.Context, videoID int64) error {
	frame, err := g.extractFrame(ctx, hls.SourcePath(g.MediaRoot, videoID))
	if err != nil {
		return fmt.Errorf("extract poster frame for video %d: %w", videoID, err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("decode poster frame: %w", err)
	}

	resized := g.fit(img)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, &webp.Options{Quality: 75}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}

	path := hls.ThumbPath(g.MediaRoot, videoID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("thumbs dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}

	log.Printf("[thumbs] generated: video_id=%d, path=%s", videoID, path)
	return nil
}

func (g *Generator) fit(img image.Image) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w <= g.Width && h <= g.Height {
		return img
	}
	return imaging.Fit(img, g.Width, g.Height, imaging.Lanczos)
}

// extractFrame writes one jpeg frame to stdout so no intermediate file is
// needed.
func (g *Generator) extractFrame(ctx context.Context, source string) ([]byte, error) {
	bin := g.BinaryPath
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-ss", "1",
		"-i", source,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w - %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame for %s", source)
	}
	return stdout.Bytes(), nil
}
