package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
	"github.com/johnrirwin/orbitsafe/internal/risk"
)

// SettingsAPI handles settings and risk evaluation endpoints.
type SettingsAPI struct {
	imageSvc  *images.Service
	evaluator *risk.Evaluator
	logger    *logging.Logger
}

// NewSettingsAPI creates a new settings API handler.
func NewSettingsAPI(imageSvc *images.Service, evaluator *risk.Evaluator, logger *logging.Logger) *SettingsAPI {
	return &SettingsAPI{
		imageSvc:  imageSvc,
		evaluator: evaluator,
		logger:    logger,
	}
}

// RegisterRoutes registers settings and risk routes.
func (api *SettingsAPI) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/settings", api.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", api.handlePutSettings).Methods(http.MethodPut)
	r.HandleFunc("/risk/evaluate", api.handleEvaluate).Methods(http.MethodPost)
}

func (api *SettingsAPI) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := api.imageSvc.Settings(r.Context())
	if err != nil {
		api.logger.Error("Failed to load settings", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (api *SettingsAPI) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	saved, err := api.imageSvc.SaveSettings(r.Context(), settings)
	switch {
	case errors.Is(err, models.ErrThresholdRange), errors.Is(err, models.ErrMaxObjectsRange):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case err != nil:
		api.logger.Error("Failed to save settings", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (api *SettingsAPI) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req models.RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	result, err := api.evaluator.Evaluate(r.Context(), req.ImageID)
	switch {
	case errors.Is(err, risk.ErrMissingImageID):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case errors.Is(err, images.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	case err != nil:
		api.logger.Error("Risk evaluation failed", logging.WithFields(map[string]interface{}{
			"imageId": req.ImageID,
			"error":   err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "internal_error", "risk evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, models.RiskResponse{Result: *result})
}
