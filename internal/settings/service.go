// Package settings loads and saves the global detection settings, keeping a
// local copy for when the backend is unreachable.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/johnrirwin/orbitsafe/internal/inference"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// Remote is the backend settings endpoint.
type Remote interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	PutSettings(ctx context.Context, s models.Settings) (*models.Settings, error)
}

// LocalStore is the offline copy.
type LocalStore interface {
	Load(ctx context.Context) (*models.Settings, bool, error)
	Save(ctx context.Context, s models.Settings) error
}

// Service resolves settings from the backend, the local copy or defaults.
type Service struct {
	remote Remote
	local  LocalStore
	logger *logging.Logger

	mu      sync.RWMutex
	current *models.Settings
}

// NewService creates a settings service. local may be nil.
func NewService(remote Remote, local LocalStore, logger *logging.Logger) *Service {
	return &Service{remote: remote, local: local, logger: logger}
}

// Load fetches settings from the backend and refreshes the local copy. When
// the backend fails the local copy (or defaults) is returned together with the
// backend error, so the result is always usable.
func (s *Service) Load(ctx context.Context) (models.Settings, error) {
	remote, err := s.remote.GetSettings(ctx)
	if err == nil && remote != nil {
		loaded := remote.Clone()
		loaded.MergeObjectCounts()
		if len(loaded.Objects) == 0 {
			loaded.Objects = models.DefaultObjects()
		}
		s.saveLocal(ctx, loaded)
		s.setCurrent(loaded)
		return loaded.Clone(), nil
	}
	if err == nil {
		err = fmt.Errorf("empty settings response")
	}

	s.logger.Warn("Settings fetch failed, using local copy", logging.WithField("error", err.Error()))
	fallback := s.loadLocal(ctx)
	s.setCurrent(fallback)
	return fallback.Clone(), fmt.Errorf("load settings: %w", err)
}

// Save validates and stores settings. The local copy is written even when the
// backend rejects or misses the update.
func (s *Service) Save(ctx context.Context, settings models.Settings) (models.Settings, error) {
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	settings = settings.Clone()
	settings.ObjectCounts = nil

	saved, err := s.remote.PutSettings(ctx, settings)
	if err == nil && saved != nil && len(saved.Objects) > 0 {
		merged := saved.Clone()
		merged.MergeObjectCounts()
		settings = merged
	}

	s.saveLocal(ctx, settings)
	s.setCurrent(settings)
	if err != nil {
		return settings.Clone(), fmt.Errorf("save settings: %w", err)
	}
	return settings.Clone(), nil
}

// Reset restores defaults locally. The backend is not contacted.
func (s *Service) Reset(ctx context.Context) models.Settings {
	defaults := models.DefaultSettings()
	s.saveLocal(ctx, defaults)
	s.setCurrent(defaults)
	return defaults.Clone()
}

// Current returns the settings last loaded or saved, loading them on first use.
func (s *Service) Current(ctx context.Context) models.Settings {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil {
		return cur.Clone()
	}
	loaded, _ := s.Load(ctx)
	return loaded
}

// Policy is the detection policy implied by the current settings.
func (s *Service) Policy(ctx context.Context) inference.Policy {
	return inference.NewPolicy(s.Current(ctx))
}

func (s *Service) setCurrent(settings models.Settings) {
	c := settings.Clone()
	s.mu.Lock()
	s.current = &c
	s.mu.Unlock()
}

func (s *Service) loadLocal(ctx context.Context) models.Settings {
	if s.local == nil {
		return models.DefaultSettings()
	}
	cached, ok, err := s.local.Load(ctx)
	if err != nil {
		s.logger.Warn("Local settings unreadable, using defaults", logging.WithField("error", err.Error()))
		return models.DefaultSettings()
	}
	if !ok {
		return models.DefaultSettings()
	}
	return *cached
}

func (s *Service) saveLocal(ctx context.Context, settings models.Settings) {
	if s.local == nil {
		return
	}
	if err := s.local.Save(ctx, settings); err != nil {
		s.logger.Warn("Failed to write local settings", logging.WithField("error", err.Error()))
	}
}
