package models

// RiskCategory buckets a risk score.
type RiskCategory string

const (
	RiskLow    RiskCategory = "low"
	RiskMedium RiskCategory = "medium"
	RiskHigh   RiskCategory = "high"
)

// RiskAction is one suggested remediation.
type RiskAction struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RiskResult is the outcome of a risk evaluation for one image.
type RiskResult struct {
	Category    RiskCategory `json:"category"`
	Score       float64      `json:"score"`
	Explanation string       `json:"explanation"`
	Actions     []RiskAction `json:"actions"`
}

// RiskRequest is the body of POST /api/risk/evaluate.
type RiskRequest struct {
	ImageID string `json:"imageId"`
}

// RiskResponse wraps the evaluation result on the wire.
type RiskResponse struct {
	Result RiskResult `json:"result"`
}
