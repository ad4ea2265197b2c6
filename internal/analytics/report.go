package analytics

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// DefaultMonths is the width of the monthly volume chart.
const DefaultMonths = 6

// Report bundles every derived statistic for one snapshot.
type Report struct {
	TotalDetections int              `json:"totalDetections"`
	AvgAccuracy     float64          `json:"avgAccuracy"`
	SafetyScore     float64          `json:"safetyScore"`
	ResponseTime    string           `json:"responseTime"`
	Monthly         []MonthBucket    `json:"monthly"`
	Equipment       []EquipmentSlice `json:"equipment"`
	Hourly          []HourBucket     `json:"hourly"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// BuildReport computes a full report. months <= 0 falls back to DefaultMonths.
func BuildReport(records []models.ImageRecord, dashboard *models.DashboardSnapshot, months int, now time.Time) Report {
	if months <= 0 {
		months = DefaultMonths
	}
	accuracy := AvgAccuracy(records, dashboard)
	return Report{
		TotalDetections: TotalDetections(records),
		AvgAccuracy:     accuracy,
		SafetyScore:     SafetyScore(accuracy),
		ResponseTime:    ResponseTime(dashboard),
		Monthly:         MonthlyVolume(records, months, now),
		Equipment:       EquipmentDistribution(records),
		Hourly:          HourlyActivity(records, now.Location()),
		GeneratedAt:     now,
	}
}

// Formatter renders report numbers for a locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter creates a formatter for tag, e.g. language.English.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Count renders an integer with grouping separators.
func (f *Formatter) Count(n int) string {
	return f.printer.Sprintf("%d", n)
}

// Percent renders a percentage with one decimal.
func (f *Formatter) Percent(v float64) string {
	return f.printer.Sprintf("%.1f%%", v)
}
