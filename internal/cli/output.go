package cli

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", math.Round(v*1000)/10)
}

func avgOf(r models.ImageRecord) string {
	if r.AvgConfidence == nil {
		return "-"
	}
	return percent(*r.AvgConfidence)
}

func shortID(id string) string {
	if id == "" {
		return "(none)"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
