package app

import (
	"context"
	"fmt"

	"github.com/johnrirwin/orbitsafe/internal/auth"
	"github.com/johnrirwin/orbitsafe/internal/bus"
	"github.com/johnrirwin/orbitsafe/internal/cache"
	"github.com/johnrirwin/orbitsafe/internal/config"
	"github.com/johnrirwin/orbitsafe/internal/inference"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/notify"
	"github.com/johnrirwin/orbitsafe/internal/settings"
	"github.com/johnrirwin/orbitsafe/internal/submission"
	"github.com/johnrirwin/orbitsafe/internal/transport"
	"github.com/johnrirwin/orbitsafe/internal/views"
)

// Client holds everything one orbitsafe client process shares: the bus, the
// views subscribed to it and the services the orchestrators call.
type Client struct {
	Config    *config.ClientConfig
	Logger    *logging.Logger
	Bus       *bus.Bus
	Transport *transport.Client
	Detector  inference.Detector
	Cache     cache.Cache
	Settings  *settings.Service
	History   *views.History
	Analytics *views.Analytics
	Advisor   *views.Advisor
	Notifier  *notify.Client
	Locks     *submission.KeyedLocks

	settingsStore *settings.SQLiteStore
}

// NewClient wires a client from configuration. Views are created unmounted.
func NewClient(ctx context.Context, cfg *config.ClientConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.New(logging.ParseLevel(cfg.Logging.Level))
	}
	c := &Client{
		Config: cfg,
		Logger: logger,
		Bus:    bus.New(logger),
		Locks:  submission.NewKeyedLocks(),
	}

	var tokens transport.TokenSource
	if authSvc := auth.NewService(cfg.Auth, logger); authSvc.Enabled() {
		tokens = authSvc
	}
	c.Transport = transport.New(transport.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Tokens:  tokens,
	}, logger)

	detector, err := c.initDetector(ctx)
	if err != nil {
		return nil, err
	}
	c.Detector = detector

	c.Cache = c.initCache()
	c.Settings = c.initSettings()

	c.History = views.NewHistory(c.Transport, c.Bus, c.Cache, logger)
	c.Analytics = views.NewAnalytics(c.Transport, c.Bus, c.Transport, c.Cache, logger)
	c.Advisor = views.NewAdvisor(c.Transport, c.Bus, c.Transport, c.Cache, logger)

	c.Notifier = notify.New(notify.Config{
		Endpoint:   cfg.Email.Endpoint,
		ServiceID:  cfg.Email.ServiceID,
		TemplateID: cfg.Email.TemplateID,
		PublicKey:  cfg.Email.PublicKey,
		Timeout:    cfg.API.Timeout,
	}, c.Transport, logger)

	return c, nil
}

// Orchestrator returns a new orchestrator sharing the client's bus and
// per-record locks.
func (c *Client) Orchestrator(hook submission.TransitionHook) *submission.Orchestrator {
	return submission.New(submission.Config{
		Backend:      c.Transport,
		Detector:     c.Detector,
		Publisher:    c.Bus,
		Policy:       c.Settings,
		Locks:        c.Locks,
		OnTransition: hook,
		Logger:       c.Logger,
	})
}

// Close unmounts the views and releases local resources.
func (c *Client) Close() error {
	c.History.Unmount()
	c.Analytics.Unmount()
	c.Advisor.Unmount()
	c.Bus.Close()

	var firstErr error
	if c.settingsStore != nil {
		if err := c.settingsStore.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.Cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Client) initDetector(ctx context.Context) (inference.Detector, error) {
	switch c.Config.Detector.Kind {
	case "rekognition":
		d, err := inference.NewRekognitionDetector(ctx, c.Config.Detector.AWSRegion, inference.DefaultLabelMap)
		if err != nil {
			return nil, fmt.Errorf("init rekognition detector: %w", err)
		}
		c.Logger.Info("Using Rekognition detector", logging.WithField("region", c.Config.Detector.AWSRegion))
		return d, nil
	case "", "http":
		c.Logger.Debug("Using HTTP predictor", logging.WithField("url", c.Config.Detector.PredictURL))
		return inference.NewHTTPPredictor(c.Config.Detector.PredictURL, c.Config.Detector.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown detector %q", c.Config.Detector.Kind)
	}
}

func (c *Client) initCache() cache.Cache {
	switch c.Config.Cache.Backend {
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:   c.Config.Cache.RedisAddr,
			Prefix: cache.DefaultRedisPrefix,
		}, c.Config.Cache.TTL)
		if err != nil {
			c.Logger.Warn("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			return cache.NewMemory(c.Config.Cache.TTL)
		}
		c.Logger.Debug("Using Redis snapshot cache", logging.WithField("addr", c.Config.Cache.RedisAddr))
		return redisCache
	default:
		return cache.NewMemory(c.Config.Cache.TTL)
	}
}

func (c *Client) initSettings() *settings.Service {
	if c.Config.Settings.DBPath == "" {
		return settings.NewService(c.Transport, nil, c.Logger)
	}
	store, err := settings.NewSQLiteStore(c.Config.Settings.DBPath)
	if err != nil {
		c.Logger.Warn("Local settings copy unavailable", logging.WithFields(map[string]interface{}{
			"path":  c.Config.Settings.DBPath,
			"error": err.Error(),
		}))
		return settings.NewService(c.Transport, nil, c.Logger)
	}
	c.settingsStore = store
	return settings.NewService(c.Transport, store, c.Logger)
}
