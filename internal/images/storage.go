package images

import (
	"context"
	"errors"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// ErrNotFound is returned when a record id is unknown to the storage backend.
var ErrNotFound = errors.New("image not found")

// Blob is the stored image payload.
type Blob struct {
	ContentType string
	Data        []byte
}

// Storage abstracts record persistence so the in-memory store can be swapped
// for PostgreSQL.
type Storage interface {
	Create(ctx context.Context, record models.ImageRecord, blob Blob) error
	Get(ctx context.Context, id string) (*models.ImageRecord, error)
	List(ctx context.Context) ([]models.ImageRecord, error)
	UpdateDetections(ctx context.Context, id string, dets []models.Detection, avg *float64) (*models.ImageRecord, error)
	Blob(ctx context.Context, id string) (*Blob, error)

	// LoadSettings returns nil without error when nothing was saved yet.
	LoadSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
}
