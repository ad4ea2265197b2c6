// Package transport is the client side of the record backend's REST contract.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

const maxErrorBody = 512

// TokenSource mints a bearer token for each request.
type TokenSource interface {
	Token() (string, error)
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
}

// Client talks to the record backend.
type Client struct {
	http   *resty.Client
	tokens TokenSource
	logger *logging.Logger
}

// New creates a backend client.
func New(cfg Config, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: http, tokens: cfg.Tokens, logger: logger}
}

func (c *Client) request(ctx context.Context, op string) (*resty.Request, error) {
	req := c.http.R().SetContext(ctx)
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, &Error{Op: op, Err: fmt.Errorf("mint token: %w", err)}
		}
		req.SetAuthToken(token)
	}
	return req, nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Warn("Backend request failed", logging.WithFields(map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		}))
		return &Error{Op: op, Err: err}
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		c.logger.Warn("Backend returned error status", logging.WithFields(map[string]interface{}{
			"op":     op,
			"status": resp.StatusCode(),
		}))
		return &Error{Op: op, Status: resp.StatusCode(), Body: body}
	}
	c.logger.Debug("Backend request completed", logging.WithFields(map[string]interface{}{
		"op":       op,
		"status":   resp.StatusCode(),
		"duration": resp.Time().String(),
	}))
	return nil
}

// Upload sends a file as multipart field "file". Capture saves carry their
// detections in a "detections" form field.
func (c *Client) Upload(ctx context.Context, upload models.Upload) (*models.ImageRecord, error) {
	const op = "upload"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.SetMultipartField("file", upload.Name, mimeType, bytes.NewReader(upload.Data))

	if len(upload.Detections) > 0 {
		encoded, err := json.Marshal(upload.Detections)
		if err != nil {
			return nil, &Error{Op: op, Err: fmt.Errorf("encode detections: %w", err)}
		}
		req.SetFormData(map[string]string{"detections": string(encoded)})
	}

	var record models.ImageRecord
	resp, err := req.SetResult(&record).Post("/api/upload")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetImage fetches one record.
func (c *Client) GetImage(ctx context.Context, id string) (*models.ImageRecord, error) {
	const op = "get image"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var record models.ImageRecord
	resp, err := req.SetPathParam("id", id).SetResult(&record).Get("/api/images/{id}")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecords returns every record, newest first.
func (c *Client) ListRecords(ctx context.Context) ([]models.ImageRecord, error) {
	const op = "list images"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var records []models.ImageRecord
	resp, err := req.SetResult(&records).Get("/api/images")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.ImageRecord{}
	}
	return records, nil
}

type detectionsBody struct {
	Detections []models.Detection `json:"detections"`
}

// PersistDetections replaces the record's detections wholesale.
func (c *Client) PersistDetections(ctx context.Context, id string, dets []models.Detection) (*models.ImageRecord, error) {
	const op = "persist detections"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	if dets == nil {
		dets = []models.Detection{}
	}

	var record models.ImageRecord
	resp, err := req.
		SetPathParam("id", id).
		SetBody(detectionsBody{Detections: dets}).
		SetResult(&record).
		Put("/api/images/{id}")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// Dashboard fetches the server rollup.
func (c *Client) Dashboard(ctx context.Context) (*models.DashboardSnapshot, error) {
	const op = "dashboard"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var snap models.DashboardSnapshot
	resp, err := req.SetResult(&snap).Get("/api/dashboard")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetSettings fetches the global settings.
func (c *Client) GetSettings(ctx context.Context) (*models.Settings, error) {
	const op = "get settings"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var s models.Settings
	resp, err := req.SetResult(&s).Get("/api/settings")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutSettings stores the global settings.
func (c *Client) PutSettings(ctx context.Context, s models.Settings) (*models.Settings, error) {
	const op = "put settings"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out models.Settings
	resp, err := req.SetBody(s).SetResult(&out).Put("/api/settings")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateRisk asks the backend to assess one image.
func (c *Client) EvaluateRisk(ctx context.Context, imageID string) (*models.RiskResult, error) {
	const op = "evaluate risk"

	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out models.RiskResponse
	resp, err := req.
		SetBody(models.RiskRequest{ImageID: imageID}).
		SetResult(&out).
		Post("/api/risk/evaluate")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out.Result, nil
}
