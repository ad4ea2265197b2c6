package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestImageRecord_UnmarshalLegacyID(t *testing.T) {
	var rec ImageRecord
	payload := `{"_id":"abc","filename":"a.jpg","createdAt":"2026-03-01T10:00:00Z","detections":[{"object":"FireAlarm","confidence":0.5,"bbox":{"x":1,"y":2,"width":3,"height":4}}],"avgConfidence":0.5}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if rec.ID != "abc" {
		t.Errorf("ID = %q, want abc", rec.ID)
	}
	if rec.AvgConfidence == nil || *rec.AvgConfidence != 0.5 {
		t.Errorf("AvgConfidence = %v, want 0.5", rec.AvgConfidence)
	}
	if !rec.CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if len(rec.Detections) != 1 || rec.Detections[0].BoundingBox.Height != 4 {
		t.Errorf("detections = %+v", rec.Detections)
	}
}

func TestImageRecord_IDWinsOverLegacyID(t *testing.T) {
	var rec ImageRecord
	if err := json.Unmarshal([]byte(`{"id":"new","_id":"old"}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ID != "new" {
		t.Errorf("ID = %q, want new", rec.ID)
	}
}

func TestImageRecord_MissingAvgConfidenceStaysNil(t *testing.T) {
	var rec ImageRecord
	if err := json.Unmarshal([]byte(`{"id":"a","avgConfidence":"n/a"}`), &rec); err == nil {
		t.Fatalf("expected error for non-numeric avgConfidence")
	}

	rec = ImageRecord{}
	if err := json.Unmarshal([]byte(`{"id":"a"}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.AvgConfidence != nil {
		t.Errorf("AvgConfidence = %v, want nil", *rec.AvgConfidence)
	}
	if rec.IsProvisional() {
		t.Errorf("record with id reported provisional")
	}
}

func TestImageRecord_CloneIsDeep(t *testing.T) {
	orig := ImageRecord{
		ID:            "a",
		Detections:    []Detection{{Label: "FireAlarm", Confidence: 0.5}},
		AvgConfidence: Float64(0.5),
	}
	cp := orig.Clone()
	cp.Detections[0].Label = "changed"
	*cp.AvgConfidence = 0.9

	if orig.Detections[0].Label != "FireAlarm" {
		t.Errorf("clone shares detections slice")
	}
	if *orig.AvgConfidence != 0.5 {
		t.Errorf("clone shares avgConfidence pointer")
	}
}

func TestSettingsValidateAndMerge(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	s.DetectionThreshold = 1.2
	if err := s.Validate(); err == nil {
		t.Errorf("expected threshold error")
	}
	s.DetectionThreshold = 0.5
	s.MaxObjects = -1
	if err := s.Validate(); err == nil {
		t.Errorf("expected max objects error")
	}

	s = DefaultSettings()
	s.Objects[0].Count = 4
	s.ObjectCounts = map[string]int{"FireAlarm": 7, "OxygenTank": 0}
	s.MergeObjectCounts()

	for _, o := range s.Objects {
		switch o.Label {
		case "FireAlarm":
			if o.Count != 7 {
				t.Errorf("FireAlarm count = %d, want 7", o.Count)
			}
		case "OxygenTank":
			if o.Count != 4 {
				t.Errorf("OxygenTank count = %d, want previous 4", o.Count)
			}
		}
	}
	if s.ObjectCounts != nil {
		t.Errorf("ObjectCounts should be cleared after merge")
	}
}
