package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// RecordStore persists detection records in PostgreSQL.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new record store.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordColumns = `id, filename, original_name, mime_type, size_bytes, url, detections, avg_confidence, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	var detectionsJSON []byte
	var avg sql.NullFloat64

	if err := row.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.OriginalName,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.URL,
		&detectionsJSON,
		&avg,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Detections = []models.Detection{}
	if len(detectionsJSON) > 0 {
		if err := json.Unmarshal(detectionsJSON, &rec.Detections); err != nil {
			return nil, fmt.Errorf("unmarshal detections: %w", err)
		}
	}
	if avg.Valid {
		rec.AvgConfidence = models.Float64(avg.Float64)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func nullAvg(avg *float64) sql.NullFloat64 {
	if avg == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *avg, Valid: true}
}

// Create inserts a new record with its image bytes.
func (s *RecordStore) Create(ctx context.Context, rec models.ImageRecord, blob images.Blob) error {
	dets := rec.Detections
	if dets == nil {
		dets = []models.Detection{}
	}
	detectionsJSON, err := json.Marshal(dets)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	query := `
		INSERT INTO images (
			id, filename, original_name, mime_type, size_bytes, url,
			detections, avg_confidence, image_bytes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Filename,
		rec.OriginalName,
		blob.ContentType,
		rec.SizeBytes,
		rec.URL,
		detectionsJSON,
		nullAvg(rec.AvgConfidence),
		blob.Data,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// Get fetches one record.
func (s *RecordStore) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM images WHERE id::text = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, images.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return rec, nil
}

// List returns every record, newest first.
func (s *RecordStore) List(ctx context.Context) ([]models.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM images ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	records := []models.ImageRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateDetections replaces a record's detections and average.
func (s *RecordStore) UpdateDetections(ctx context.Context, id string, dets []models.Detection, avg *float64) (*models.ImageRecord, error) {
	if dets == nil {
		dets = []models.Detection{}
	}
	detectionsJSON, err := json.Marshal(dets)
	if err != nil {
		return nil, fmt.Errorf("marshal detections: %w", err)
	}

	query := `
		UPDATE images
		SET detections = $2, avg_confidence = $3, updated_at = NOW()
		WHERE id::text = $1
		RETURNING ` + recordColumns

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id, detectionsJSON, nullAvg(avg)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, images.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update detections: %w", err)
	}
	return rec, nil
}

// Blob returns the stored image bytes.
func (s *RecordStore) Blob(ctx context.Context, id string) (*images.Blob, error) {
	var blob images.Blob
	err := s.db.QueryRowContext(ctx,
		`SELECT mime_type, image_bytes FROM images WHERE id::text = $1`, id,
	).Scan(&blob.ContentType, &blob.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, images.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image bytes: %w", err)
	}
	return &blob, nil
}

// LoadSettings returns the saved settings, or nil when none were saved.
func (s *RecordStore) LoadSettings(ctx context.Context) (*models.Settings, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM settings WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var settings models.Settings
	if err := json.Unmarshal(body, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings upserts the single settings row.
func (s *RecordStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, body, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, body)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
