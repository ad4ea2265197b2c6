package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johnrirwin/orbitsafe/internal/analytics"
	"github.com/johnrirwin/orbitsafe/internal/cache"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// DashboardCacheKey stores the last successfully fetched dashboard.
const DashboardCacheKey = "dashboard:last-known-good"

// DashboardSource fetches the server rollup.
type DashboardSource interface {
	Dashboard(ctx context.Context) (*models.DashboardSnapshot, error)
}

// Analytics is the statistics view: a record copy plus the dashboard snapshot.
type Analytics struct {
	records *RecordCache
	source  DashboardSource
	store   cache.Cache
	logger  *logging.Logger

	mu        sync.RWMutex
	dashboard *models.DashboardSnapshot
}

// NewAnalytics creates the analytics view.
func NewAnalytics(lister Lister, events Source, dashboards DashboardSource, store cache.Cache, logger *logging.Logger) *Analytics {
	return &Analytics{
		records: NewRecordCache(RecordCacheConfig{
			Name:   "analytics",
			Lister: lister,
			Source: events,
			Store:  store,
			Logger: logger,
		}),
		source: dashboards,
		store:  store,
		logger: logger,
	}
}

// Mount seeds the records and the dashboard. Both are attempted; the returned
// error joins whichever failed.
func (a *Analytics) Mount(ctx context.Context) error {
	recErr := a.records.Mount(ctx)
	dashErr := a.RefreshDashboard(ctx)
	return errors.Join(recErr, dashErr)
}

// Unmount stops following record events.
func (a *Analytics) Unmount() {
	a.records.Unmount()
}

// Records exposes the underlying copy.
func (a *Analytics) Records() *RecordCache {
	return a.records
}

// RefreshDashboard refetches the dashboard, falling back to the last known
// good snapshot.
func (a *Analytics) RefreshDashboard(ctx context.Context) error {
	if a.source == nil {
		return nil
	}

	snap, err := a.source.Dashboard(ctx)
	if err != nil {
		a.logger.Warn("Dashboard fetch failed, using last known good", logging.WithField("error", err.Error()))
		if a.store != nil {
			var cached models.DashboardSnapshot
			if ok, cacheErr := cache.GetJSON(ctx, a.store, DashboardCacheKey, &cached); ok && cacheErr == nil {
				a.setDashboard(&cached)
			}
		}
		return fmt.Errorf("fetch dashboard: %w", err)
	}

	a.setDashboard(snap)
	if a.store != nil {
		if err := cache.SetJSON(ctx, a.store, DashboardCacheKey, snap); err != nil {
			a.logger.Warn("Failed to store dashboard snapshot", logging.WithField("error", err.Error()))
		}
	}
	return nil
}

// Dashboard returns the current snapshot, or nil.
func (a *Analytics) Dashboard() *models.DashboardSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.dashboard == nil {
		return nil
	}
	out := *a.dashboard
	return &out
}

// Report recomputes every statistic from the current snapshot.
func (a *Analytics) Report(now time.Time, months int) analytics.Report {
	return analytics.BuildReport(a.records.Snapshot(), a.Dashboard(), months, now)
}

func (a *Analytics) setDashboard(s *models.DashboardSnapshot) {
	a.mu.Lock()
	a.dashboard = s
	a.mu.Unlock()
}
