package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// NormalizationError describes an inference entry that was dropped.
type NormalizationError struct {
	Index  int
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("inference entry %d dropped: %s", e.Index, e.Reason)
}

// NormalizeDetections converts raw inference output into canonical detections.
// Corner boxes [x1,y1,x2,y2] become {x1, y1, x2-x1, y2-y1}. Malformed entries are
// dropped and reported, so the result may be shorter than the input.
func NormalizeDetections(raw []RawDetection) ([]Detection, []error) {
	out := make([]Detection, 0, len(raw))
	var dropped []error

	for i, r := range raw {
		label, confidence, box, err := parseRaw(i, r)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		out = append(out, Detection{
			Label:      label,
			Confidence: confidence,
			BoundingBox: BoundingBox{
				X:      box[0],
				Y:      box[1],
				Width:  box[2] - box[0],
				Height: box[3] - box[1],
			},
		})
	}

	return out, dropped
}

// NormalizeRelative converts raw inference output into preview detections with
// boxes scaled to the frame dimensions.
func NormalizeRelative(raw []RawDetection, frameWidth, frameHeight int) ([]PreviewDetection, []error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, []error{&NormalizationError{Index: -1, Reason: "frame has no dimensions"}}
	}

	w := float64(frameWidth)
	h := float64(frameHeight)
	out := make([]PreviewDetection, 0, len(raw))
	var dropped []error

	for i, r := range raw {
		label, confidence, box, err := parseRaw(i, r)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		out = append(out, PreviewDetection{
			Label:      label,
			Confidence: confidence,
			Box: RelativeBox{
				X:      box[0] / w,
				Y:      box[1] / h,
				Width:  (box[2] - box[0]) / w,
				Height: (box[3] - box[1]) / h,
			},
		})
	}

	return out, dropped
}

func parseRaw(index int, r RawDetection) (string, float64, [4]float64, error) {
	var box [4]float64

	label, ok := r.ClassName.(string)
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return "", 0, box, &NormalizationError{Index: index, Reason: "missing class name"}
	}

	confidence, ok := toFloat(r.Confidence)
	if !ok {
		return "", 0, box, &NormalizationError{Index: index, Reason: "confidence is not numeric"}
	}
	if confidence < 0 || confidence > 1 {
		return "", 0, box, &NormalizationError{Index: index, Reason: "confidence out of range"}
	}

	coords, ok := toSlice(r.Box)
	if !ok || len(coords) != 4 {
		return "", 0, box, &NormalizationError{Index: index, Reason: "box must have 4 coordinates"}
	}
	for j, c := range coords {
		v, ok := toFloat(c)
		if !ok {
			return "", 0, box, &NormalizationError{Index: index, Reason: "box coordinate is not numeric"}
		}
		box[j] = v
	}

	return label, confidence, box, nil
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []float64:
		out := make([]interface{}, len(s))
		for i, f := range s {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
