// Package notify sends operator notifications through the EmailJS REST API.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
	"github.com/johnrirwin/orbitsafe/internal/ratelimit"
	"github.com/johnrirwin/orbitsafe/internal/transport"
)

const (
	DefaultEndpoint = "https://api.emailjs.com"

	// MaxAttachmentBytes caps attachments uploaded before sending.
	MaxAttachmentBytes = 10 * 1024 * 1024

	DefaultTitle       = "Notification: OrbitSafe Object Detection Alert"
	NoAttachmentNotice = "No attachment uploaded."

	// DefaultMinInterval is the EmailJS limit of one request per second.
	DefaultMinInterval = time.Second
)

var (
	ErrMissingRecipient = errors.New("name and email are required")
	ErrAttachmentTooBig = errors.New("attachment exceeds 10 MB")
	ErrNotConfigured    = errors.New("email service is not configured")
	ErrAttachmentNoURL  = errors.New("attachment upload returned no url")
)

// Config holds the EmailJS credentials.
type Config struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
	Timeout    time.Duration

	// MinInterval spaces out sends to the same endpoint.
	MinInterval time.Duration
}

// Uploader stores an attachment and returns its record.
type Uploader interface {
	Upload(ctx context.Context, upload models.Upload) (*models.ImageRecord, error)
}

// Message is one notification.
type Message struct {
	Name       string
	Email      string
	Text       string
	Attachment *models.Upload
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// Client sends notifications.
type Client struct {
	http     *resty.Client
	cfg      Config
	endpoint string
	limiter  *ratelimit.Limiter
	uploader Uploader
	logger   *logging.Logger
	now      func() time.Time
}

// New creates a notification client. uploader may be nil when attachments are
// not needed.
func New(cfg Config, uploader Uploader, logger *logging.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	endpoint = strings.TrimRight(endpoint, "/")
	return &Client{
		http:     resty.New().SetBaseURL(endpoint).SetTimeout(timeout),
		cfg:      cfg,
		endpoint: endpoint,
		limiter:  ratelimit.New(interval),
		uploader: uploader,
		logger:   logger,
		now:      time.Now,
	}
}

// DefaultMessage is used when the operator leaves the text empty.
func DefaultMessage(name string) string {
	return fmt.Sprintf("Dear %s,\n\nThis mail is from the OrbitSafe team regarding your Object Detection Alert Settings.\n"+
		"Please check your configured settings and uploaded objects.\n\nBest Regards,\nOrbitSafe Technical Team", name)
}

// Send validates msg, uploads the attachment if any and sends the email.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.cfg.ServiceID == "" || c.cfg.TemplateID == "" {
		return ErrNotConfigured
	}
	name := strings.TrimSpace(msg.Name)
	email := strings.TrimSpace(msg.Email)
	if name == "" || email == "" {
		return ErrMissingRecipient
	}

	attachment := NoAttachmentNotice
	if msg.Attachment != nil {
		if len(msg.Attachment.Data) > MaxAttachmentBytes {
			return ErrAttachmentTooBig
		}
		if c.uploader == nil {
			return fmt.Errorf("upload attachment: %w", ErrNotConfigured)
		}
		rec, err := c.uploader.Upload(ctx, *msg.Attachment)
		if err != nil {
			return fmt.Errorf("upload attachment: %w", err)
		}
		if rec.URL == "" {
			return ErrAttachmentNoURL
		}
		attachment = rec.URL
	}

	text := msg.Text
	if strings.TrimSpace(text) == "" {
		text = DefaultMessage(name)
	}

	body := sendRequest{
		ServiceID:  c.cfg.ServiceID,
		TemplateID: c.cfg.TemplateID,
		UserID:     c.cfg.PublicKey,
		TemplateParams: map[string]string{
			"title":      DefaultTitle,
			"name":       name,
			"email":      email,
			"message":    text,
			"time":       c.now().Format(time.RFC1123),
			"attachment": attachment,
		},
	}

	if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/api/v1.0/email/send")
	if err != nil {
		return &transport.Error{Op: "send email", Err: err}
	}
	if resp.IsError() {
		return &transport.Error{Op: "send email", Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	c.logger.Info("Notification sent", logging.WithFields(map[string]interface{}{
		"email":      email,
		"attachment": attachment != NoAttachmentNotice,
	}))
	return nil
}
