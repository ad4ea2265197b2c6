package models

import (
	"errors"
	"fmt"
)

// ObjectToggle enables or disables one equipment label.
type ObjectToggle struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Count   int    `json:"count"`
}

// Settings are the global detection parameters.
type Settings struct {
	DetectionThreshold float64        `json:"detectionThreshold"`
	MaxObjects         int            `json:"maxObjects"`
	NotifyEmail        string         `json:"notifyEmail"`
	Objects            []ObjectToggle `json:"objects"`
	ObjectCounts       map[string]int `json:"objectCounts,omitempty"`
}

var (
	ErrThresholdRange  = errors.New("detection threshold must be within [0,1]")
	ErrMaxObjectsRange = errors.New("max objects must not be negative")
)

// DefaultObjects is the equipment taxonomy every installation starts with.
func DefaultObjects() []ObjectToggle {
	return []ObjectToggle{
		{ID: "oxygen", Label: "OxygenTank", Enabled: true},
		{ID: "nitrogen", Label: "NitrogenTank", Enabled: true},
		{ID: "firstaid", Label: "FirstAidBox", Enabled: true},
		{ID: "firealarm", Label: "FireAlarm", Enabled: true},
		{ID: "safetyswitch", Label: "SafetySwitchPanel", Enabled: true},
		{ID: "emergencyphone", Label: "EmergencyPhone", Enabled: true},
		{ID: "extinguisher", Label: "FireExtinguisher", Enabled: true},
	}
}

// DefaultSettings returns the factory settings.
func DefaultSettings() Settings {
	return Settings{
		DetectionThreshold: 0.5,
		MaxObjects:         10,
		Objects:            DefaultObjects(),
	}
}

// Validate checks the documented ranges.
func (s Settings) Validate() error {
	if s.DetectionThreshold < 0 || s.DetectionThreshold > 1 {
		return fmt.Errorf("%w: got %v", ErrThresholdRange, s.DetectionThreshold)
	}
	if s.MaxObjects < 0 {
		return fmt.Errorf("%w: got %d", ErrMaxObjectsRange, s.MaxObjects)
	}
	return nil
}

// MergeObjectCounts copies server-side per-label counts onto the toggles and
// clears the map. Labels without a server count keep their previous count.
func (s *Settings) MergeObjectCounts() {
	if len(s.ObjectCounts) == 0 {
		s.ObjectCounts = nil
		return
	}
	for i := range s.Objects {
		if n, ok := s.ObjectCounts[s.Objects[i].Label]; ok && n != 0 {
			s.Objects[i].Count = n
		}
	}
	s.ObjectCounts = nil
}

// EnabledLabels returns the set of labels currently switched on.
func (s Settings) EnabledLabels() map[string]bool {
	out := make(map[string]bool, len(s.Objects))
	for _, o := range s.Objects {
		if o.Enabled {
			out[o.Label] = true
		}
	}
	return out
}

// Clone deep-copies the settings.
func (s Settings) Clone() Settings {
	out := s
	out.Objects = append([]ObjectToggle(nil), s.Objects...)
	if s.ObjectCounts != nil {
		out.ObjectCounts = make(map[string]int, len(s.ObjectCounts))
		for k, v := range s.ObjectCounts {
			out.ObjectCounts[k] = v
		}
	}
	return out
}
