package inference

import (
	"sort"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// Policy filters normalized detections by the operator's settings.
type Policy struct {
	Threshold  float64
	MaxObjects int
	disabled   map[string]bool
}

// NewPolicy builds a policy from settings. Labels switched off in settings are
// dropped; labels outside the taxonomy are kept.
func NewPolicy(s models.Settings) Policy {
	disabled := make(map[string]bool)
	for _, o := range s.Objects {
		if !o.Enabled {
			disabled[o.Label] = true
		}
	}
	return Policy{
		Threshold:  s.DetectionThreshold,
		MaxObjects: s.MaxObjects,
		disabled:   disabled,
	}
}

// Apply returns the detections that pass the threshold and label filter. When
// more than MaxObjects remain, the most confident are kept in their original
// order. MaxObjects of 0 means unlimited.
func (p Policy) Apply(dets []models.Detection) []models.Detection {
	kept := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < p.Threshold {
			continue
		}
		if p.disabled[d.Label] {
			continue
		}
		kept = append(kept, d)
	}

	if p.MaxObjects <= 0 || len(kept) <= p.MaxObjects {
		return kept
	}

	idx := make([]int, len(kept))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return kept[idx[a]].Confidence > kept[idx[b]].Confidence
	})
	top := idx[:p.MaxObjects]
	sort.Ints(top)

	out := make([]models.Detection, 0, p.MaxObjects)
	for _, i := range top {
		out = append(out, kept[i])
	}
	return out
}
