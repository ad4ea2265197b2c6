// Package views keeps per-view copies of the record list current with bus
// events and derives what each view presents from its own copy.
package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/johnrirwin/orbitsafe/internal/bus"
	"github.com/johnrirwin/orbitsafe/internal/cache"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// RecordsCacheKey stores the last successfully fetched record list.
const RecordsCacheKey = "records:last-known-good"

// Lister fetches the full record list, newest first.
type Lister interface {
	ListRecords(ctx context.Context) ([]models.ImageRecord, error)
}

// Source delivers record events.
type Source interface {
	Subscribe(h bus.Handler) *bus.Subscription
}

// Filter reports whether a record belongs in a view.
type Filter func(models.ImageRecord) bool

// RecordCacheConfig wires a RecordCache. Store and Filter are optional.
type RecordCacheConfig struct {
	Name   string
	Lister Lister
	Source Source
	Store  cache.Cache
	Filter Filter
	Logger *logging.Logger
}

// RecordCache is one view's private, ordered copy of the record list.
type RecordCache struct {
	name   string
	lister Lister
	source Source
	store  cache.Cache
	filter Filter
	logger *logging.Logger

	mu      sync.Mutex
	records []models.ImageRecord
	sub     *bus.Subscription
	mounted bool
	seeding bool
	pending []bus.Event
	hooks   []func(bus.Event)
}

// NewRecordCache creates an unmounted cache.
func NewRecordCache(cfg RecordCacheConfig) *RecordCache {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	return &RecordCache{
		name:    cfg.Name,
		lister:  cfg.Lister,
		source:  cfg.Source,
		store:   cfg.Store,
		filter:  cfg.Filter,
		logger:  logger,
		records: []models.ImageRecord{},
	}
}

// OnEvent registers fn to run after each event has been applied. It must be
// called before Mount.
func (c *RecordCache) OnEvent(fn func(bus.Event)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Mount subscribes to the bus and seeds the copy with one full list fetch.
// Events that arrive during the fetch are applied after the seed. When the
// fetch fails the last-known-good list is used and the error is returned.
func (c *RecordCache) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.seeding = true
	c.pending = nil
	c.mu.Unlock()

	sub := c.source.Subscribe(c.handle)

	seed, err := c.lister.ListRecords(ctx)
	if err != nil {
		c.logger.Warn("Record list fetch failed, using last known good", logging.WithFields(map[string]interface{}{
			"view":  c.name,
			"error": err.Error(),
		}))
		seed = c.loadFallback(ctx)
		err = fmt.Errorf("seed %s view: %w", c.name, err)
	} else {
		c.saveFallback(ctx, seed)
	}

	c.mu.Lock()
	if !c.mounted {
		// Unmounted while the seed was in flight.
		c.mu.Unlock()
		sub.Unsubscribe()
		return err
	}
	c.sub = sub
	c.records = c.records[:0]
	for _, r := range seed {
		if c.accepts(r) {
			c.records = append(c.records, r.Clone())
		}
	}
	queued := c.pending
	c.pending = nil
	for _, e := range queued {
		c.apply(e)
	}
	c.seeding = false
	hooks := append([]func(bus.Event){}, c.hooks...)
	c.mu.Unlock()

	for _, e := range queued {
		for _, h := range hooks {
			h(e)
		}
	}

	c.logger.Debug("View mounted", logging.WithFields(map[string]interface{}{
		"view":    c.name,
		"records": c.Len(),
	}))
	return err
}

// Unmount stops listening. Events published afterwards are ignored.
func (c *RecordCache) Unmount() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mounted = false
	c.seeding = false
	c.pending = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Mounted reports whether the cache is listening.
func (c *RecordCache) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// Snapshot returns a deep copy of the current list.
func (c *RecordCache) Snapshot() []models.ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneRecords(c.records)
}

// Get returns the record with id.
func (c *RecordCache) Get(id string) (models.ImageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.records[i].Clone(), true
	}
	return models.ImageRecord{}, false
}

// Len returns the number of records held.
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *RecordCache) handle(e bus.Event) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	if c.seeding {
		c.pending = append(c.pending, e)
		c.mu.Unlock()
		return
	}
	c.apply(e)
	hooks := append([]func(bus.Event){}, c.hooks...)
	c.mu.Unlock()

	for _, h := range hooks {
		h(e)
	}
}

// apply reconciles one event by id. Caller holds c.mu.
func (c *RecordCache) apply(e bus.Event) {
	rec := e.Record.Clone()

	if !c.accepts(rec) {
		if !rec.IsProvisional() {
			if i := c.indexOf(rec.ID); i >= 0 {
				c.records = append(c.records[:i], c.records[i+1:]...)
			}
		}
		return
	}

	switch e.Kind {
	case bus.EventCreated:
		if !rec.IsProvisional() {
			if i := c.indexOf(rec.ID); i >= 0 {
				c.records[i] = rec
				return
			}
		}
		c.records = append([]models.ImageRecord{rec}, c.records...)
	case bus.EventUpdated:
		if rec.IsProvisional() {
			return
		}
		if i := c.indexOf(rec.ID); i >= 0 {
			c.records[i] = rec
			return
		}
		c.records = append(c.records, rec)
	}
}

func (c *RecordCache) accepts(r models.ImageRecord) bool {
	return c.filter == nil || c.filter(r)
}

func (c *RecordCache) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.records {
		if c.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *RecordCache) loadFallback(ctx context.Context) []models.ImageRecord {
	if c.store == nil {
		return nil
	}
	var records []models.ImageRecord
	ok, err := cache.GetJSON(ctx, c.store, RecordsCacheKey, &records)
	if err != nil {
		c.logger.Warn("Discarding unreadable record snapshot", logging.WithField("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}
	return records
}

func (c *RecordCache) saveFallback(ctx context.Context, records []models.ImageRecord) {
	if c.store == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.store, RecordsCacheKey, records); err != nil {
		c.logger.Warn("Failed to store record snapshot", logging.WithField("error", err.Error()))
	}
}
