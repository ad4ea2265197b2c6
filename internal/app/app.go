package app

import (
	"context"
	"strings"

	"github.com/johnrirwin/orbitsafe/internal/auth"
	"github.com/johnrirwin/orbitsafe/internal/config"
	"github.com/johnrirwin/orbitsafe/internal/database"
	"github.com/johnrirwin/orbitsafe/internal/httpapi"
	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/risk"
)

// App holds the reference backend dependencies
type App struct {
	Config         *config.Config
	Logger         *logging.Logger
	ImageSvc       *images.Service
	RiskEvaluator  *risk.Evaluator
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	HTTPServer     *httpapi.Server
	db             *database.DB
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Logger = logging.New(logging.ParseLevel(cfg.Logging.Level))

	storage := app.initStorage()
	app.ImageSvc = images.NewService(storage, app.Logger)
	app.RiskEvaluator = risk.NewEvaluator(app.ImageSvc, app.Logger)

	app.AuthService = auth.NewService(cfg.Auth, app.Logger)
	if app.AuthService.Enabled() {
		app.AuthMiddleware = auth.NewMiddleware(app.AuthService)
		app.Logger.Info("Bearer token validation enabled", logging.WithField("required", cfg.Auth.Required))
	} else if cfg.Auth.Required {
		app.Logger.Warn("AUTH_REQUIRED is set but AUTH_JWT_SECRET is empty, requests are not authenticated")
	}

	app.HTTPServer = httpapi.New(app.ImageSvc, app.RiskEvaluator, app.AuthMiddleware, httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AuthRequired:   cfg.Auth.Required,
	}, app.Logger)

	return app, nil
}

// Run starts the HTTP server
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	return a.HTTPServer.Start(a.Config.Server.HTTPAddr)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

func (a *App) initStorage() images.Storage {
	if strings.ToLower(a.Config.Storage.Backend) != "postgres" {
		a.Logger.Info("Using in-memory record storage")
		return images.NewMemoryStorage()
	}

	dbConfig := database.DefaultConfig()
	dbConfig.Host = a.Config.Database.Host
	dbConfig.Port = a.Config.Database.Port
	dbConfig.User = a.Config.Database.User
	dbConfig.Password = a.Config.Database.Password
	dbConfig.Database = a.Config.Database.Database
	dbConfig.SSLMode = a.Config.Database.SSLMode

	db, err := database.New(dbConfig)
	if err != nil {
		a.Logger.Warn("Failed to connect to PostgreSQL, using in-memory record storage", logging.WithField("error", err.Error()))
		return images.NewMemoryStorage()
	}

	a.Logger.Info("Connected to PostgreSQL")
	if err := db.Migrate(context.Background()); err != nil {
		a.Logger.Warn("Failed to run migrations, using in-memory record storage", logging.WithField("error", err.Error()))
		db.Close()
		return images.NewMemoryStorage()
	}

	a.db = db
	return database.NewRecordStore(db)
}
