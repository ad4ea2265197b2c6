package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/johnrirwin/orbitsafe/internal/models"
	"github.com/johnrirwin/orbitsafe/internal/transport"
)

// HTTPPredictor posts images to a standalone predict endpoint.
type HTTPPredictor struct {
	http *resty.Client
	name string
}

// NewHTTPPredictor creates a predictor for the service at baseURL.
func NewHTTPPredictor(baseURL string, timeout time.Duration) *HTTPPredictor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPPredictor{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout),
		name: models.DefaultDetectorName,
	}
}

func (p *HTTPPredictor) Name() string { return p.name }

// Detect sends the image as multipart field "file" to POST /predict.
func (p *HTTPPredictor) Detect(ctx context.Context, upload models.Upload) ([]models.RawDetection, error) {
	const op = "predict"

	if len(upload.Data) == 0 {
		return nil, &transport.Error{Op: op, Err: fmt.Errorf("image bytes are required")}
	}

	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetMultipartField("file", upload.Name, mimeType, bytes.NewReader(upload.Data)).
		Post("/predict")
	if err != nil {
		return nil, &transport.Error{Op: op, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &transport.Error{Op: op, Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	raw, err := decodePrediction(resp.Body())
	if err != nil {
		return nil, &transport.Error{Op: op, Status: resp.StatusCode(), Err: err}
	}
	return raw, nil
}

// decodePrediction accepts a bare array or an object wrapping it under
// "detections".
func decodePrediction(body []byte) ([]models.RawDetection, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.RawDetection{}, nil
	}

	if trimmed[0] == '[' {
		var raw []models.RawDetection
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
		return raw, nil
	}

	var wrapped struct {
		Detections []models.RawDetection `json:"detections"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	if wrapped.Detections == nil {
		return []models.RawDetection{}, nil
	}
	return wrapped.Detections, nil
}
