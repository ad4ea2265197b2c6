// Package risk scores an image by how much of the enabled safety equipment
// was found in it.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// ErrMissingImageID is returned when an evaluation names no image.
var ErrMissingImageID = errors.New("image id is required")

// Category thresholds on the 0-100 score.
const (
	mediumFrom = 34
	highFrom   = 67
)

// Source provides the record and the settings an evaluation needs.
type Source interface {
	Get(ctx context.Context, id string) (*models.ImageRecord, error)
	Settings(ctx context.Context) (*models.Settings, error)
}

// Evaluator runs risk assessments against stored records.
type Evaluator struct {
	source Source
	logger *logging.Logger
}

// NewEvaluator creates a new risk evaluator.
func NewEvaluator(source Source, logger *logging.Logger) *Evaluator {
	return &Evaluator{source: source, logger: logger}
}

// Evaluate loads the image and current settings and scores them.
func (e *Evaluator) Evaluate(ctx context.Context, imageID string) (*models.RiskResult, error) {
	if strings.TrimSpace(imageID) == "" {
		return nil, ErrMissingImageID
	}

	record, err := e.source.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	settings, err := e.source.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	result := Assess(*record, *settings)
	e.logger.Info("Risk evaluated", logging.WithFields(map[string]interface{}{
		"imageId":  imageID,
		"category": string(result.Category),
		"score":    result.Score,
	}))
	return &result, nil
}

// Assess compares the enabled equipment against what was detected at or
// above the threshold.
func Assess(record models.ImageRecord, settings models.Settings) models.RiskResult {
	var expected []string
	for _, o := range settings.Objects {
		if o.Enabled {
			expected = append(expected, o.Label)
		}
	}
	if len(expected) == 0 {
		return models.RiskResult{
			Category:    models.RiskLow,
			Score:       0,
			Explanation: "No safety equipment is enabled for detection, so nothing can be missing.",
			Actions:     []models.RiskAction{},
		}
	}

	found := make(map[string]bool)
	weak := make(map[string]bool)
	for _, d := range record.Detections {
		if d.Confidence >= settings.DetectionThreshold {
			found[d.Label] = true
		} else {
			weak[d.Label] = true
		}
	}

	var missing []string
	for _, label := range expected {
		if !found[label] {
			missing = append(missing, label)
		}
	}

	score := math.Round(100 * float64(len(missing)) / float64(len(expected)))
	result := models.RiskResult{
		Category: category(score),
		Score:    score,
		Actions:  []models.RiskAction{},
	}

	if len(missing) == 0 {
		result.Explanation = fmt.Sprintf("All %d enabled safety items were detected in %s.", len(expected), record.DisplayName())
		return result
	}

	names := make([]string, len(missing))
	for i, label := range missing {
		names[i] = humanize(label)
	}
	result.Explanation = fmt.Sprintf("%d of %d enabled safety items were not detected in %s: %s.",
		len(missing), len(expected), record.DisplayName(), strings.Join(names, ", "))

	if result.Category == models.RiskHigh {
		result.Actions = append(result.Actions, models.RiskAction{
			Title:       "Schedule a safety inspection",
			Description: "Most required equipment is absent from this area. Inspect it before the next shift.",
		})
	}
	for _, label := range missing {
		action := models.RiskAction{
			Title:       "Check " + humanize(label),
			Description: fmt.Sprintf("No %s was detected at %.0f%% confidence or higher. Install it or make it visible to the camera.", humanize(label), settings.DetectionThreshold*100),
		}
		if weak[label] {
			action.Description = fmt.Sprintf("A possible %s was detected below the %.0f%% threshold. Retake the image with a clearer view.", humanize(label), settings.DetectionThreshold*100)
		}
		result.Actions = append(result.Actions, action)
	}
	return result
}

func category(score float64) models.RiskCategory {
	switch {
	case score >= highFrom:
		return models.RiskHigh
	case score >= mediumFrom:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// humanize turns "FireExtinguisher" into "fire extinguisher".
func humanize(label string) string {
	var b strings.Builder
	for i, r := range label {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
