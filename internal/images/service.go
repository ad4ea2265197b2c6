package images

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/media"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

var (
	// ErrEmptyUpload is returned when an upload carries no bytes.
	ErrEmptyUpload = errors.New("upload is empty")
	// ErrUnsupportedType is returned when the sniffed content type is not an image.
	ErrUnsupportedType = errors.New("unsupported image type")
)

// latencyWindow bounds how many handler timings feed the dashboard mean.
const latencyWindow = 200

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// CreateRequest is a single upload.
type CreateRequest struct {
	Name       string
	Data       []byte
	Detections []models.Detection
}

// Service owns the record lifecycle on the backend side.
type Service struct {
	storage Storage
	logger  *logging.Logger
	now     func() time.Time

	mu        sync.Mutex
	latencies []time.Duration
	next      int
}

// NewService creates a new record service.
func NewService(storage Storage, logger *logging.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Create sniffs, names and stores a new upload.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.ImageRecord, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyUpload
	}
	contentType, ok := media.DetectImageContentType(req.Data)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	id := uuid.NewString()
	dets := req.Detections
	if dets == nil {
		dets = []models.Detection{}
	}

	record := models.ImageRecord{
		ID:            id,
		Filename:      id + extensions[contentType],
		OriginalName:  path.Base(strings.ReplaceAll(req.Name, "\\", "/")),
		MimeType:      contentType,
		SizeBytes:     int64(len(req.Data)),
		URL:           "/api/images/" + id + "/raw",
		CreatedAt:     s.now().UTC(),
		Detections:    dets,
		AvgConfidence: averageConfidence(dets),
	}
	if req.Name == "" {
		record.OriginalName = record.Filename
	}

	if err := s.storage.Create(ctx, record, Blob{ContentType: contentType, Data: req.Data}); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	s.logger.Info("Image stored", logging.WithFields(map[string]interface{}{
		"id":         id,
		"mimeType":   contentType,
		"size":       record.SizeBytes,
		"detections": len(dets),
	}))
	return &record, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	return s.storage.Get(ctx, id)
}

// List returns every record, newest first.
func (s *Service) List(ctx context.Context) ([]models.ImageRecord, error) {
	return s.storage.List(ctx)
}

// ReplaceDetections overwrites a record's detections and recomputes its average.
func (s *Service) ReplaceDetections(ctx context.Context, id string, dets []models.Detection) (*models.ImageRecord, error) {
	if dets == nil {
		dets = []models.Detection{}
	}
	record, err := s.storage.UpdateDetections(ctx, id, dets, averageConfidence(dets))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Detections replaced", logging.WithFields(map[string]interface{}{
		"id":         id,
		"detections": len(dets),
	}))
	return record, nil
}

// Blob returns the raw image payload.
func (s *Service) Blob(ctx context.Context, id string) (*Blob, error) {
	return s.storage.Blob(ctx, id)
}

// Dashboard computes the server-side rollup.
func (s *Service) Dashboard(ctx context.Context) (*models.DashboardSnapshot, error) {
	records, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	totalDetections := 0
	sum := 0.0
	n := 0
	for _, r := range records {
		totalDetections += len(r.Detections)
		if r.AvgConfidence != nil {
			sum += *r.AvgConfidence
			n++
		}
	}
	totalImages := len(records)

	snap := &models.DashboardSnapshot{
		TotalImages:     &totalImages,
		TotalDetections: &totalDetections,
		ResponseTime:    s.meanLatency(),
	}
	if n > 0 {
		snap.AvgConfidence = models.Float64(sum / float64(n))
	}
	return snap, nil
}

// Settings returns the saved settings, or defaults, with per-label counts of
// every stored detection.
func (s *Service) Settings(ctx context.Context) (*models.Settings, error) {
	saved, err := s.storage.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings := models.DefaultSettings()
	if saved != nil {
		settings = *saved
	}

	records, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range records {
		for _, d := range r.Detections {
			counts[d.Label]++
		}
	}
	settings.ObjectCounts = counts
	return &settings, nil
}

// SaveSettings validates and stores settings.
func (s *Service) SaveSettings(ctx context.Context, settings models.Settings) (*models.Settings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.ObjectCounts = nil
	if err := s.storage.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return s.Settings(ctx)
}

// ObserveLatency records one handler duration for the dashboard response time.
func (s *Service) ObserveLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, d)
		return
	}
	s.latencies[s.next] = d
	s.next = (s.next + 1) % latencyWindow
}

func (s *Service) meanLatency() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return nil
	}
	var total time.Duration
	for _, d := range s.latencies {
		total += d
	}
	ms := float64(total) / float64(len(s.latencies)) / float64(time.Millisecond)
	return models.Float64(math.Round(ms*10) / 10)
}

func averageConfidence(dets []models.Detection) *float64 {
	if len(dets) == 0 {
		return nil
	}
	return models.Float64(models.ProvisionalAvgConfidence(dets))
}
