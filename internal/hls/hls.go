// Package hls owns the on-disk layout of sources and renditions under the
// media root, plus the master playlist that ties the renditions together.
// Storage, not the database, is the source of truth for what is servable.
package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

const (
	ManifestName        = "index.m3u8"
	ManifestContentType = "application/vnd.apple.mpegurl"
	SegmentContentType  = "video/MP2T"
)

// Profile carries the encode targets and the bandwidth advertised in the
// master playlist for one rendition rung.
type Profile struct {
	Width        int
	Height       int
	Bandwidth    int
	VideoBitrate string
	MaxRate      string
	BufSize      string
	AudioBitrate string
}

var Profiles = map[entities.Resolution]Profile{
	entities.Res480p: {
		Width:        854,
		Height:       480,
		Bandwidth:    2_100_000,
		VideoBitrate: "1500k",
		MaxRate:      "2100k",
		BufSize:      "3000k",
		AudioBitrate: "128k",
	},
	entities.Res720p: {
		Width:        1280,
		Height:       720,
		Bandwidth:    4_000_000,
		VideoBitrate: "2800k",
		MaxRate:      "4000k",
		BufSize:      "6000k",
		AudioBitrate: "128k",
	},
	entities.Res1080p: {
		Width:        1920,
		Height:       1080,
		Bandwidth:    8_000_000,
		VideoBitrate: "5000k",
		MaxRate:      "8000k",
		BufSize:      "12000k",
		AudioBitrate: "192k",
	},
}

var segmentNameRe = regexp.MustCompile(`^[A-Za-z_-]*([0-9]+)\.ts$`)

func SourcePath(mediaRoot string, videoID int64) string {
	return filepath.Join(mediaRoot, "uploads", "videos", fmt.Sprintf("%d.mp4", videoID))
}

// Root is the directory holding one subdirectory per video id.
func Root(mediaRoot string) string {
	return filepath.Join(mediaRoot, "hls")
}

func Dir(mediaRoot string, videoID int64) string {
	return filepath.Join(Root(mediaRoot), strconv.FormatInt(videoID, 10))
}

func RenditionDir(mediaRoot string, videoID int64, res entities.Resolution) string {
	return filepath.Join(Dir(mediaRoot, videoID), string(res))
}

func ManifestPath(mediaRoot string, videoID int64, res entities.Resolution) string {
	return filepath.Join(RenditionDir(mediaRoot, videoID, res), ManifestName)
}

func MasterPath(mediaRoot string, videoID int64) string {
	return filepath.Join(Dir(mediaRoot, videoID), ManifestName)
}

func ThumbPath(mediaRoot string, videoID int64) string {
	return filepath.Join(mediaRoot, "thumbs", fmt.Sprintf("%d.webp", videoID))
}

// SegmentPath joins the rendition directory and a segment file name that has
// already passed ValidSegmentName; callers must not hand through raw request
// input.
func SegmentPath(mediaRoot string, videoID int64, res entities.Resolution, name string) string {
	return filepath.Join(RenditionDir(mediaRoot, videoID, res), name)
}

// ValidSegmentName reports whether name looks like a transport-stream
// segment file. Anything with path separators or without a numeric part is
// rejected, which also blocks traversal attempts.
func ValidSegmentName(name string) bool {
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return segmentNameRe.MatchString(name)
}

// SegmentIndex extracts the numeric index from a segment file name such as
// "000.ts" or "segment_004.ts".
func SegmentIndex(name string) (int, error) {
	m := segmentNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("invalid segment name %q", name)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid segment index in %q: %w", name, err)
	}
	return idx, nil
}

// IsStubManifest reports whether manifest bytes exist but reference no
// segments. Files of eight bytes or fewer (just "#EXTM3U") or without any
// #EXTINF directive count as stubs.
func IsStubManifest(manifest []byte) bool {
	if len(manifest) <= 8 {
		return true
	}
	for _, line := range strings.Split(string(manifest), "\n") {
		if strings.Contains(strings.ToLower(line), "#extinf") {
			return false
		}
	}
	return true
}

// ListSegments returns the sorted .ts files inside a rendition directory.
// Filesystem errors are reported as an empty listing; a missing directory is
// simply a rendition with no segments.
func ListSegments(mediaRoot string, videoID int64, res entities.Resolution) []string {
	entries, err := os.ReadDir(RenditionDir(mediaRoot, videoID, res))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// WriteMasterPlaylist regenerates the master playlist referencing every
// rendition whose manifest exists on disk, highest bandwidth first. When no
// rendition manifest exists, no file is written.
func WriteMasterPlaylist(mediaRoot string, videoID int64) error {
	type entry struct {
		res       entities.Resolution
		bandwidth int
	}

	var entries []entry
	for _, res := range entities.AllResolutions {
		if _, err := os.Stat(ManifestPath(mediaRoot, videoID, res)); err == nil {
			entries = append(entries, entry{res: res, bandwidth: Profiles[res].Bandwidth})
		}
	}
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].bandwidth > entries[j].bandwidth })

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, e := range entries {
		p := Profiles[e.res]
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", e.bandwidth, p.Width, p.Height)
		fmt.Fprintf(&b, "%s/%s\n", e.res, ManifestName)
	}

	path := MasterPath(mediaRoot, videoID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("master playlist dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("master playlist write: %w", err)
	}
	return nil
}
