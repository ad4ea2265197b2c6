package media

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// CaptureQuality is the JPEG quality used for saved frames.
const CaptureQuality = 90

// Frame is a decoded still image.
type Frame struct {
	Image  image.Image
	Width  int
	Height int
}

// DecodeFrame decodes image bytes, applying EXIF orientation.
func DecodeFrame(data []byte) (*Frame, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &AcquisitionError{Path: "frame", Err: fmt.Errorf("decode: %w", err)}
	}
	b := img.Bounds()
	return &Frame{Image: img, Width: b.Dx(), Height: b.Dy()}, nil
}

// EncodeCapture encodes img as a JPEG upload named after the capture time.
func EncodeCapture(img image.Image, now time.Time) (models.Upload, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(CaptureQuality)); err != nil {
		return models.Upload{}, fmt.Errorf("encode capture: %w", err)
	}
	return models.Upload{
		Name:     CaptureName(now),
		MimeType: "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}

// CaptureName is capture-<unix millis>.jpg.
func CaptureName(now time.Time) string {
	return fmt.Sprintf("capture-%d.jpg", now.UnixMilli())
}
