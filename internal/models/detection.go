package models

import "time"

// DefaultDetectorName is stamped on detections produced by the predict endpoint.
const DefaultDetectorName = "yolo"

// BoundingBox is an axis-aligned box in absolute pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one recognized object instance as stored on an ImageRecord.
type Detection struct {
	Label       string      `json:"object"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bbox"`
	DetectedAt  time.Time   `json:"detectedAt,omitzero"`
	Source      string      `json:"detector,omitempty"`
}

// RelativeBox is a box expressed as fractions of the frame size, in [0,1].
type RelativeBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PreviewDetection is a transient live-preview detection. It is a separate type
// from Detection so relative and pixel boxes can never share a record.
type PreviewDetection struct {
	Label      string      `json:"object"`
	Confidence float64     `json:"confidence"`
	Box        RelativeBox `json:"bbox"`
}

// RawDetection is a single entry as returned by the inference endpoint. Fields
// are left untyped so malformed entries can be detected and dropped.
type RawDetection struct {
	ClassName  interface{} `json:"class_name"`
	Confidence interface{} `json:"confidence"`
	Box        interface{} `json:"box"`
}

// Enrich stamps every detection with the inference time and detector name.
func Enrich(dets []Detection, at time.Time, source string) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		d.DetectedAt = at
		d.Source = source
		out[i] = d
	}
	return out
}

// ProvisionalAvgConfidence is the client-side mean used for display before the
// backend returns its authoritative value.
func ProvisionalAvgConfidence(dets []Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range dets {
		sum += d.Confidence
	}
	return sum / float64(len(dets))
}
