package views

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/johnrirwin/orbitsafe/internal/cache"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// ExportHeader is the first row of a history export.
var ExportHeader = []string{"id", "filename", "createdAt", "mimeType", "size", "objectsCount", "avgConfidence", "detectionsJSON"}

// IsExportArtifact reports whether r is a CSV export that was uploaded back
// rather than an image.
func IsExportArtifact(r models.ImageRecord) bool {
	mime := strings.ToLower(r.MimeType)
	fname := strings.ToLower(r.Filename)
	oname := strings.ToLower(r.OriginalName)

	if strings.Contains(mime, "csv") {
		return true
	}
	if strings.Contains(fname, ".csv") || strings.Contains(oname, ".csv") {
		return true
	}
	return strings.HasPrefix(fname, "detection_history") || strings.HasPrefix(oname, "detection_history")
}

// History lists past submissions, excluding export artifacts.
type History struct {
	records *RecordCache
}

// NewHistory creates the history view.
func NewHistory(lister Lister, events Source, store cache.Cache, logger *logging.Logger) *History {
	return &History{
		records: NewRecordCache(RecordCacheConfig{
			Name:   "history",
			Lister: lister,
			Source: events,
			Store:  store,
			Filter: func(r models.ImageRecord) bool { return !IsExportArtifact(r) },
			Logger: logger,
		}),
	}
}

func (h *History) Mount(ctx context.Context) error { return h.records.Mount(ctx) }

func (h *History) Unmount() { h.records.Unmount() }

// Records exposes the underlying copy.
func (h *History) Records() *RecordCache { return h.records }

// ExportCSV writes the current list, one row per record.
func (h *History) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range h.records.Snapshot() {
		dets := r.Detections
		if dets == nil {
			dets = []models.Detection{}
		}
		encoded, err := json.Marshal(dets)
		if err != nil {
			return fmt.Errorf("encode detections for %s: %w", r.ID, err)
		}

		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		avg := 0.0
		if r.AvgConfidence != nil && !math.IsNaN(*r.AvgConfidence) {
			avg = *r.AvgConfidence
		}

		row := []string{
			r.ID,
			r.DisplayName(),
			created,
			r.MimeType,
			strconv.FormatInt(r.SizeBytes, 10),
			strconv.Itoa(len(dets)),
			strconv.Itoa(int(math.Round(avg * 100))),
			string(encoded),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFilename names an export taken at now, e.g.
// detection_history_2026-10-16T12-00-00.csv.
func ExportFilename(now time.Time) string {
	stamp := strings.ReplaceAll(now.UTC().Format("2006-01-02T15:04:05"), ":", "-")
	return "detection_history_" + stamp + ".csv"
}
