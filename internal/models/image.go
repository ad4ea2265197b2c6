package models

import (
	"encoding/json"
	"time"
)

// ImageRecord is the unit of persistence and synchronization. Records are value
// snapshots: a change is always a newer snapshot carrying the same ID.
type ImageRecord struct {
	ID            string      `json:"id,omitempty"`
	Filename      string      `json:"filename,omitempty"`
	OriginalName  string      `json:"originalName,omitempty"`
	MimeType      string      `json:"mimeType,omitempty"`
	SizeBytes     int64       `json:"size,omitempty"`
	URL           string      `json:"url,omitempty"`
	CreatedAt     time.Time   `json:"createdAt,omitzero"`
	Detections    []Detection `json:"detections"`
	AvgConfidence *float64    `json:"avgConfidence,omitempty"`
}

// IsProvisional reports whether the backend has not assigned an ID yet.
func (r ImageRecord) IsProvisional() bool {
	return r.ID == ""
}

// DisplayName prefers the name the operator uploaded.
func (r ImageRecord) DisplayName() string {
	if r.OriginalName != "" {
		return r.OriginalName
	}
	return r.Filename
}

// Clone returns a deep copy so subscribers never share slices or pointers.
func (r ImageRecord) Clone() ImageRecord {
	out := r
	if r.Detections != nil {
		out.Detections = make([]Detection, len(r.Detections))
		copy(out.Detections, r.Detections)
	}
	if r.AvgConfidence != nil {
		v := *r.AvgConfidence
		out.AvgConfidence = &v
	}
	return out
}

// UnmarshalJSON accepts both "id" and the document-store style "_id".
func (r *ImageRecord) UnmarshalJSON(data []byte) error {
	type plain ImageRecord
	aux := struct {
		*plain
		LegacyID string `json:"_id"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.LegacyID
	}
	return nil
}

// CloneRecords deep-copies a record slice.
func CloneRecords(records []ImageRecord) []ImageRecord {
	if records == nil {
		return nil
	}
	out := make([]ImageRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Float64 returns a pointer to v, for optional numeric fields.
func Float64(v float64) *float64 {
	return &v
}

// Upload is an acquired file ready to be sent to the backend.
type Upload struct {
	Name       string
	MimeType   string
	Data       []byte
	Detections []Detection
}

// DashboardSnapshot is the optional server-computed rollup.
type DashboardSnapshot struct {
	AvgConfidence   *float64 `json:"avgConfidence,omitempty"`
	ResponseTime    *float64 `json:"responseTime,omitempty"`
	TotalImages     *int     `json:"totalImages,omitempty"`
	TotalDetections *int     `json:"totalDetections,omitempty"`
}
