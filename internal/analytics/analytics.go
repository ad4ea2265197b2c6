// Package analytics derives statistics from a snapshot of image records. Every
// function is pure: it recomputes from scratch and does not depend on the
// order of the input slice.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// Palette is cycled over equipment labels by first-seen order.
var Palette = []string{"#6366F1", "#8B5CF6", "#EC4899", "#F59E0B", "#10B981", "#3B82F6", "#EF4444", "#F472B6"}

// MonthBucket is one calendar month of detection volume.
type MonthBucket struct {
	Key        string  `json:"key"`
	Label      string  `json:"month"`
	Detections int     `json:"detections"`
	Accuracy   float64 `json:"accuracy"`
}

// EquipmentSlice is one label in the equipment distribution.
type EquipmentSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// HourBucket is one hour of the day.
type HourBucket struct {
	Time       string `json:"time"`
	Detections int    `json:"detections"`
}

// TotalDetections sums the detection count of every record.
func TotalDetections(records []models.ImageRecord) int {
	total := 0
	for _, r := range records {
		total += len(r.Detections)
	}
	return total
}

// AvgAccuracy returns a percentage rounded to 0.1. The dashboard's average is
// preferred; otherwise the mean of per-record averages above zero is used.
func AvgAccuracy(records []models.ImageRecord, dashboard *models.DashboardSnapshot) float64 {
	raw := 0.0
	if dashboard != nil && isNumber(dashboard.AvgConfidence) {
		raw = *dashboard.AvgConfidence
	} else {
		sum := 0.0
		n := 0
		for _, r := range records {
			if isNumber(r.AvgConfidence) && *r.AvgConfidence > 0 {
				sum += *r.AvgConfidence
				n++
			}
		}
		if n > 0 {
			raw = sum / float64(n)
		}
	}
	return math.Round(raw*1000) / 10
}

// SafetyScore is the headline score shown next to accuracy.
func SafetyScore(avgAccuracy float64) float64 {
	return math.Round(avgAccuracy*10) / 10
}

// ResponseTime formats the dashboard response time, or a placeholder when the
// backend did not report one.
func ResponseTime(dashboard *models.DashboardSnapshot) string {
	if dashboard == nil || !isNumber(dashboard.ResponseTime) {
		return Placeholder
	}
	return fmt.Sprintf("%gms", *dashboard.ResponseTime)
}

// Placeholder is shown for values the backend did not provide.
const Placeholder = "—"

// MonthlyVolume returns exactly n buckets for the n calendar months ending at
// now's month, oldest first. Records outside the window are dropped.
func MonthlyVolume(records []models.ImageRecord, n int, now time.Time) []MonthBucket {
	if n <= 0 {
		return []MonthBucket{}
	}

	type acc struct {
		detections int
		sum        float64
		count      int
	}

	loc := now.Location()
	buckets := make([]MonthBucket, n)
	index := make(map[string]int, n)
	sums := make([]acc, n)

	for i := 0; i < n; i++ {
		d := time.Date(now.Year(), now.Month()-time.Month(n-1-i), 1, 0, 0, 0, 0, loc)
		key := monthKey(d)
		buckets[i] = MonthBucket{Key: key, Label: d.Format("Jan")}
		index[key] = i
	}

	for _, r := range records {
		if r.CreatedAt.IsZero() {
			continue
		}
		i, ok := index[monthKey(r.CreatedAt.In(loc))]
		if !ok {
			continue
		}
		sums[i].detections += len(r.Detections)
		if isNumber(r.AvgConfidence) {
			sums[i].sum += *r.AvgConfidence
			sums[i].count++
		}
	}

	for i := range buckets {
		buckets[i].Detections = sums[i].detections
		if sums[i].count > 0 {
			buckets[i].Accuracy = math.Round(sums[i].sum/float64(sums[i].count)*100) / 100
		}
	}
	return buckets
}

// EquipmentDistribution counts detections per label. Colors are assigned by
// first-seen order over the records sorted newest first (ties by ID), so the
// result does not depend on the input order.
func EquipmentDistribution(records []models.ImageRecord) []EquipmentSlice {
	ordered := canonicalOrder(records)

	counts := make(map[string]int)
	var labels []string
	for _, r := range ordered {
		for _, d := range r.Detections {
			if _, seen := counts[d.Label]; !seen {
				labels = append(labels, d.Label)
			}
			counts[d.Label]++
		}
	}

	out := make([]EquipmentSlice, len(labels))
	for i, label := range labels {
		out[i] = EquipmentSlice{
			Name:  label,
			Value: counts[label],
			Color: Palette[i%len(Palette)],
		}
	}
	return out
}

// HourlyActivity returns 24 hour-of-day buckets in loc. A detection is placed
// by its own timestamp, else its record's; one with neither is skipped here.
func HourlyActivity(records []models.ImageRecord, loc *time.Location) []HourBucket {
	if loc == nil {
		loc = time.Local
	}

	hours := make([]HourBucket, 24)
	for h := range hours {
		hours[h].Time = fmt.Sprintf("%02d:00", h)
	}

	for _, r := range records {
		for _, d := range r.Detections {
			t := d.DetectedAt
			if t.IsZero() {
				t = r.CreatedAt
			}
			if t.IsZero() {
				continue
			}
			hours[t.In(loc).Hour()].Detections++
		}
	}
	return hours
}

func canonicalOrder(records []models.ImageRecord) []models.ImageRecord {
	ordered := make([]models.ImageRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.DisplayName() != b.DisplayName() {
			return a.DisplayName() < b.DisplayName()
		}
		return detectionKey(a) < detectionKey(b)
	})
	return ordered
}

// detectionKey makes the ordering total for records that share every other
// key. Records with equal keys contribute identically to every aggregate.
func detectionKey(r models.ImageRecord) string {
	var b strings.Builder
	for _, d := range r.Detections {
		fmt.Fprintf(&b, "%s\x00%g\x00", d.Label, d.Confidence)
	}
	return b.String()
}

func monthKey(t time.Time) string {
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}

func isNumber(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
