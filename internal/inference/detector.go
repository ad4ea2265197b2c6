// Package inference turns image bytes into raw detections and applies the
// operator's detection settings to the normalized result.
package inference

import (
	"context"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// Detector is the provider abstraction that runs object detection on an image.
type Detector interface {
	Detect(ctx context.Context, upload models.Upload) ([]models.RawDetection, error)
	// Name is stamped on every detection the provider produces.
	Name() string
}
