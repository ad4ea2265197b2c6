package images

import (
	"context"
	"sort"
	"sync"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

type storedImage struct {
	record models.ImageRecord
	blob   Blob
}

// MemoryStorage keeps records and blobs in process memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	images   map[string]storedImage
	settings *models.Settings
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		images: make(map[string]storedImage),
	}
}

// Create stores a new record with its payload.
func (s *MemoryStorage) Create(ctx context.Context, record models.ImageRecord, blob Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.images[record.ID] = storedImage{
		record: record.Clone(),
		blob: Blob{
			ContentType: blob.ContentType,
			Data:        append([]byte(nil), blob.Data...),
		},
	}
	return nil
}

// Get fetches one record.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := img.record.Clone()
	return &rec, nil
}

// List returns every record, newest first.
func (s *MemoryStorage) List(ctx context.Context) ([]models.ImageRecord, error) {
	s.mu.RLock()
	out := make([]models.ImageRecord, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img.record.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateDetections replaces a record's detections and average.
func (s *MemoryStorage) UpdateDetections(ctx context.Context, id string, dets []models.Detection, avg *float64) (*models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	img.record.Detections = append([]models.Detection{}, dets...)
	img.record.AvgConfidence = nil
	if avg != nil {
		img.record.AvgConfidence = models.Float64(*avg)
	}
	s.images[id] = img

	rec := img.record.Clone()
	return &rec, nil
}

// Blob returns a copy of the stored payload.
func (s *MemoryStorage) Blob(ctx context.Context, id string) (*Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Blob{
		ContentType: img.blob.ContentType,
		Data:        append([]byte(nil), img.blob.Data...),
	}, nil
}

// LoadSettings returns the saved settings, or nil.
func (s *MemoryStorage) LoadSettings(ctx context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, nil
	}
	cp := s.settings.Clone()
	return &cp, nil
}

// SaveSettings replaces the saved settings.
func (s *MemoryStorage) SaveSettings(ctx context.Context, settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := settings.Clone()
	s.settings = &cp
	return nil
}
