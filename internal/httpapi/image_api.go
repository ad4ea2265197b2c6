package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

// ImageAPI handles upload, listing and detection persistence endpoints.
type ImageAPI struct {
	imageSvc  *images.Service
	maxUpload int64
	logger    *logging.Logger
}

// NewImageAPI creates a new image API handler.
func NewImageAPI(imageSvc *images.Service, maxUpload int64, logger *logging.Logger) *ImageAPI {
	return &ImageAPI{
		imageSvc:  imageSvc,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// RegisterRoutes registers image routes.
func (api *ImageAPI) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/upload", api.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/images", api.handleList).Methods(http.MethodGet)
	r.HandleFunc("/images/{id}", api.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/images/{id}", api.handleReplaceDetections).Methods(http.MethodPut)
	r.HandleFunc("/images/{id}/raw", api.handleRaw).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", api.handleDashboard).Methods(http.MethodGet)
}

func (api *ImageAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, api.maxUpload)
	if err := r.ParseMultipartForm(api.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid upload payload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read upload")
		return
	}

	var dets []models.Detection
	if raw := strings.TrimSpace(r.FormValue("detections")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &dets); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "detections must be a JSON array")
			return
		}
	}

	record, err := api.imageSvc.Create(r.Context(), images.CreateRequest{
		Name:       header.Filename,
		Data:       data,
		Detections: dets,
	})
	switch {
	case errors.Is(err, images.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case errors.Is(err, images.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", err.Error())
		return
	case err != nil:
		api.logger.Error("Failed to store upload", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store upload")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (api *ImageAPI) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := api.imageSvc.List(r.Context())
	if err != nil {
		api.logger.Error("Failed to list images", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list images")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (api *ImageAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := api.imageSvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type detectionsRequest struct {
	Detections []models.Detection `json:"detections"`
}

func (api *ImageAPI) handleReplaceDetections(w http.ResponseWriter, r *http.Request) {
	var req detectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	record, err := api.imageSvc.ReplaceDetections(r.Context(), mux.Vars(r)["id"], req.Detections)
	if err != nil {
		api.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (api *ImageAPI) handleRaw(w http.ResponseWriter, r *http.Request) {
	blob, err := api.imageSvc.Blob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}

func (api *ImageAPI) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := api.imageSvc.Dashboard(r.Context())
	if err != nil {
		api.logger.Error("Failed to build dashboard", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (api *ImageAPI) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, images.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	api.logger.Error("Image lookup failed", logging.WithField("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal_error", "image lookup failed")
}
