// Package vision provides the face-detection and embedding-generation
// capability boundary. The concrete algorithm lives behind the Detector and
// Embedder interfaces so it is swappable without touching the capture loop,
// matcher, or store.
package vision

import (
	"image"

	"github.com/your-org/faceid/internal/fault"
)

// Detection is one candidate face region in frame coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 (pixel coordinates)
	Confidence float32
}

// Detector finds face regions in a frame. Zero detections is a valid
// result; a malformed frame is a detection fault. Stateless across calls
// from the engine's point of view.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
}

// Embedder turns a cropped face region into a fixed-length vector. The
// function is deterministic; a degenerate region is a recognition fault.
type Embedder interface {
	Embed(region image.Image) ([]float32, error)
	Dim() int
}

// ValidateFrame rejects frames the detector cannot operate on.
func ValidateFrame(img image.Image) error {
	if img == nil {
		return fault.New(fault.Detection, "nil frame")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fault.Newf(fault.Detection, "frame has zero dimensions (%dx%d)", b.Dx(), b.Dy())
	}
	return nil
}

// ValidateRegion rejects regions too small to embed.
func ValidateRegion(region image.Image, minSize int) error {
	if region == nil {
		return fault.New(fault.Recognition, "nil face region")
	}
	b := region.Bounds()
	if b.Dx() < minSize || b.Dy() < minSize {
		return fault.Newf(fault.Recognition, "face region %dx%d below minimum %d", b.Dx(), b.Dy(), minSize)
	}
	return nil
}
