package views

import (
	"context"
	"sync"

	"github.com/johnrirwin/orbitsafe/internal/bus"
	"github.com/johnrirwin/orbitsafe/internal/cache"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// RiskEvaluator asks the backend to assess one image.
type RiskEvaluator interface {
	EvaluateRisk(ctx context.Context, imageID string) (*models.RiskResult, error)
}

// Advisor is the risk view: a record copy plus one selected record that
// follows newly created records.
type Advisor struct {
	records   *RecordCache
	evaluator RiskEvaluator
	logger    *logging.Logger

	mu       sync.Mutex
	selected *models.ImageRecord
	result   *models.RiskResult
}

// NewAdvisor creates the advisor view.
func NewAdvisor(lister Lister, events Source, evaluator RiskEvaluator, store cache.Cache, logger *logging.Logger) *Advisor {
	a := &Advisor{
		records: NewRecordCache(RecordCacheConfig{
			Name:   "advisor",
			Lister: lister,
			Source: events,
			Store:  store,
			Logger: logger,
		}),
		evaluator: evaluator,
		logger:    logger,
	}
	a.records.OnEvent(a.follow)
	return a
}

// Mount seeds the list and selects the newest record when nothing is selected.
func (a *Advisor) Mount(ctx context.Context) error {
	err := a.records.Mount(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		if snap := a.records.Snapshot(); len(snap) > 0 {
			a.selected = &snap[0]
		}
	}
	return err
}

func (a *Advisor) Unmount() { a.records.Unmount() }

// Records exposes the underlying copy.
func (a *Advisor) Records() *RecordCache { return a.records }

// Select picks a record by id and clears the previous result.
func (a *Advisor) Select(id string) error {
	rec, ok := a.records.Get(id)
	if !ok {
		return ErrUnknownRecord
	}
	a.mu.Lock()
	a.selected = &rec
	a.result = nil
	a.mu.Unlock()
	return nil
}

// Selected returns the selected record.
func (a *Advisor) Selected() (models.ImageRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		return models.ImageRecord{}, false
	}
	return a.selected.Clone(), true
}

// Result returns the last successful evaluation for the selection.
func (a *Advisor) Result() *models.RiskResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Evaluate runs a risk evaluation for the selected record.
func (a *Advisor) Evaluate(ctx context.Context) (*models.RiskResult, error) {
	sel, ok := a.Selected()
	if !ok || sel.IsProvisional() {
		return nil, ErrNoSelection
	}

	res, err := a.evaluator.EvaluateRisk(ctx, sel.ID)
	if err != nil {
		a.logger.Warn("Risk evaluation failed", logging.WithFields(map[string]interface{}{
			"image": sel.ID,
			"error": err.Error(),
		}))
		return nil, &EvaluationError{ImageID: sel.ID, Err: err}
	}

	a.mu.Lock()
	if a.selected != nil && a.selected.ID == sel.ID {
		a.result = res
	}
	a.mu.Unlock()
	return res, nil
}

func (a *Advisor) follow(e bus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e.Kind {
	case bus.EventCreated:
		rec := e.Record.Clone()
		a.selected = &rec
		a.result = nil
	case bus.EventUpdated:
		if a.selected != nil && !e.Record.IsProvisional() && a.selected.ID == e.Record.ID {
			rec := e.Record.Clone()
			a.selected = &rec
		}
	}
}
