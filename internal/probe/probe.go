// Package probe extracts stream metadata from uploaded sources via ffprobe.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober reports the height of the first video stream. Implementations
// return an error when the file cannot be inspected; callers decide how to
// degrade.
type Prober interface {
	Height(ctx context.Context, path string) (int, error)
}

type FFprobe struct {
	BinaryPath string
}

func NewFFprobe() *FFprobe {
	return &FFprobe{BinaryPath: "ffprobe"}
}

func (p *FFprobe) Height(ctx context.Context, path string) (int, error) {
	bin := p.BinaryPath
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=height",
		"-of", "csv=p=0",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	raw := strings.TrimSpace(stdout.String())
	if raw == "" {
		return 0, fmt.Errorf("ffprobe returned no video stream for %s", path)
	}
	// Some containers emit a trailing comma in csv output.
	raw = strings.TrimSuffix(raw, ",")

	height, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ffprobe height %q: %w", raw, err)
	}
	if height <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive height %d", height)
	}
	return height, nil
}
