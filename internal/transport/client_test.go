package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/johnrirwin/orbitsafe/internal/models"
	"github.com/johnrirwin/orbitsafe/internal/testutil"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token() (string, error) { return s.token, s.err }

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, Tokens: tokens}, testutil.NullLogger())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUpload(t *testing.T) {
	var gotName, gotType, gotDetections string
	var gotData []byte

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		gotData, _ = io.ReadAll(file)
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotDetections = r.FormValue("detections")

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":        "img-1",
			"filename":  "stored.png",
			"url":       "/api/images/img-1/raw",
			"createdAt": "2026-10-16T12:00:00Z",
		})
	}, nil)

	rec, err := client.Upload(context.Background(), models.Upload{
		Name:     "photo.png",
		MimeType: "image/png",
		Data:     []byte("pngdata"),
		Detections: []models.Detection{
			{Label: "FireAlarm", Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if rec.ID != "img-1" || rec.URL != "/api/images/img-1/raw" {
		t.Errorf("Upload() record = %+v", rec)
	}
	if !rec.CreatedAt.Equal(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if gotName != "photo.png" || gotType != "image/png" || string(gotData) != "pngdata" {
		t.Errorf("server saw %q %q %q", gotName, gotType, gotData)
	}

	var dets []models.Detection
	if err := json.Unmarshal([]byte(gotDetections), &dets); err != nil || len(dets) != 1 || dets[0].Label != "FireAlarm" {
		t.Errorf("detections field = %q (%v)", gotDetections, err)
	}
}

func TestUpload_NoDetectionsField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["detections"]; ok {
			t.Error("detections field should be omitted")
		}
		writeJSON(w, http.StatusOK, map[string]string{"_id": "legacy"})
	}, nil)

	rec, err := client.Upload(context.Background(), models.Upload{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if rec.ID != "legacy" {
		t.Errorf("ID = %q, want legacy", rec.ID)
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		call   func(*Client) error
	}{
		{"upload", http.StatusInternalServerError, func(c *Client) error {
			_, err := c.Upload(context.Background(), models.Upload{Name: "a.png", Data: []byte{1}})
			return err
		}},
		{"get", http.StatusNotFound, func(c *Client) error {
			_, err := c.GetImage(context.Background(), "x")
			return err
		}},
		{"list", http.StatusBadGateway, func(c *Client) error {
			_, err := c.ListRecords(context.Background())
			return err
		}},
		{"persist", http.StatusConflict, func(c *Client) error {
			_, err := c.PersistDetections(context.Background(), "x", nil)
			return err
		}},
		{"risk", http.StatusServiceUnavailable, func(c *Client) error {
			_, err := c.EvaluateRisk(context.Background(), "x")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}, nil)

			err := tt.call(client)
			if !errors.Is(err, ErrTransport) {
				t.Fatalf("error = %v, want ErrTransport", err)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode = %d, want %d", StatusCode(err), tt.status)
			}
			var te *Error
			if !errors.As(err, &te) || te.Body != "boom" {
				t.Errorf("Error body = %+v", te)
			}
		})
	}
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Config{BaseURL: url, Timeout: time.Second}, testutil.NullLogger())
	_, err := client.ListRecords(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("StatusCode = %d, want 0", StatusCode(err))
	}
}

func TestPersistDetections(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/images/a" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Detections []models.Detection `json:"detections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		writeJSON(w, http.StatusOK, models.ImageRecord{
			ID:            "a",
			Detections:    body.Detections,
			AvgConfidence: models.Float64(0.8),
		})
	}, nil)

	rec, err := client.PersistDetections(context.Background(), "a", []models.Detection{{Label: "FireExtinguisher", Confidence: 0.8}})
	if err != nil {
		t.Fatalf("PersistDetections() error = %v", err)
	}
	if len(rec.Detections) != 1 || *rec.AvgConfidence != 0.8 {
		t.Errorf("record = %+v", rec)
	}
}

func TestListRecordsAndDashboard(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/images":
			writeJSON(w, http.StatusOK, []models.ImageRecord{{ID: "b"}, {ID: "a"}})
		case "/api/dashboard":
			writeJSON(w, http.StatusOK, map[string]float64{"avgConfidence": 0.992})
		default:
			http.NotFound(w, r)
		}
	}, nil)

	records, err := client.ListRecords(context.Background())
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != "b" {
		t.Errorf("records = %+v", records)
	}

	snap, err := client.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if snap.AvgConfidence == nil || *snap.AvgConfidence != 0.992 || snap.ResponseTime != nil {
		t.Errorf("dashboard = %+v", snap)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	var stored models.Settings
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&stored)
			writeJSON(w, http.StatusOK, stored)
		default:
			writeJSON(w, http.StatusOK, stored)
		}
	}, nil)

	s := models.DefaultSettings()
	s.DetectionThreshold = 0.7
	if _, err := client.PutSettings(context.Background(), s); err != nil {
		t.Fatalf("PutSettings() error = %v", err)
	}
	got, err := client.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if got.DetectionThreshold != 0.7 || len(got.Objects) != 7 {
		t.Errorf("settings = %+v", got)
	}
}

func TestEvaluateRisk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.RiskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ImageID != "img-9" {
			t.Errorf("imageId = %q", req.ImageID)
		}
		writeJSON(w, http.StatusOK, models.RiskResponse{Result: models.RiskResult{
			Category: models.RiskHigh,
			Score:    80,
			Actions:  []models.RiskAction{{Title: "Inspect"}},
		}})
	}, nil)

	res, err := client.EvaluateRisk(context.Background(), "img-9")
	if err != nil {
		t.Fatalf("EvaluateRisk() error = %v", err)
	}
	if res.Category != models.RiskHigh || len(res.Actions) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, []models.ImageRecord{})
	}, staticTokens{token: "tok"})

	if _, err := client.ListRecords(context.Background()); err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
}

func TestTokenFailure(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, staticTokens{err: errors.New("no key")})

	_, err := client.ListRecords(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if called {
		t.Error("request should not be sent without a token")
	}
}
