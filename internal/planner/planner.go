// Package planner maps a probed source height to the set of renditions a
// video should get. It is a pure function with no I/O so the policy can be
// inspected and tested apart from scheduling.
package planner

import "github.com/SaschaGerspach/videoflix/internal/entities"

// Plan returns the target rendition set for a source of the given height.
// A nil height means the probe failed; the inherited policy is to fall back
// to {480p, 720p} rather than fail the upload.
func Plan(height *int) []entities.Resolution {
	if height == nil {
		return []entities.Resolution{entities.Res480p, entities.Res720p}
	}
	switch {
	case *height >= 1080:
		return []entities.Resolution{entities.Res480p, entities.Res720p, entities.Res1080p}
	case *height >= 720:
		return []entities.Resolution{entities.Res480p, entities.Res720p}
	default:
		return []entities.Resolution{entities.Res480p}
	}
}
