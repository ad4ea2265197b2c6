package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/johnrirwin/orbitsafe/internal/auth"
	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/risk"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	AuthRequired   bool
}

type Server struct {
	imageSvc       *images.Service
	evaluator      *risk.Evaluator
	authMiddleware *auth.Middleware
	opts           Options
	logger         *logging.Logger
	server         *http.Server
}

func New(imageSvc *images.Service, evaluator *risk.Evaluator, authMiddleware *auth.Middleware, opts Options, logger *logging.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		imageSvc:       imageSvc,
		evaluator:      evaluator,
		authMiddleware: authMiddleware,
		opts:           opts,
		logger:         logger,
	}
}

// Handler builds the routed handler. CORS wraps the router so preflight
// requests are answered even for routes that do not accept OPTIONS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if s.authMiddleware != nil {
		api.Use(s.authMiddleware.Handler(s.opts.AuthRequired))
	}
	api.Use(s.timingMiddleware)

	imageAPI := NewImageAPI(s.imageSvc, s.opts.MaxUploadBytes, s.logger)
	imageAPI.RegisterRoutes(api)

	settingsAPI := NewSettingsAPI(s.imageSvc, s.evaluator, s.logger)
	settingsAPI.RegisterRoutes(api)

	return s.corsMiddleware(r)
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// timingMiddleware feeds handler latency into the dashboard response time.
func (s *Server) timingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)

		s.imageSvc.ObserveLatency(elapsed)
		s.logger.Debug("Request handled", logging.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": elapsed.String(),
		}))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
