package cli

import (
	"bytes"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/johnrirwin/orbitsafe/internal/analytics"
	"github.com/johnrirwin/orbitsafe/internal/httpapi"
	"github.com/johnrirwin/orbitsafe/internal/images"
	"github.com/johnrirwin/orbitsafe/internal/risk"
	"github.com/johnrirwin/orbitsafe/internal/testutil"
)

type cliEnv struct {
	apiURL     string
	predictURL string
	dir        string

	uploaded         atomic.Bool
	lists            atomic.Int32
	listsAfterUpload atomic.Int32
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("AUTH_JWT_SECRET", "")

	logger := testutil.NullLogger()
	imageSvc := images.NewService(images.NewMemoryStorage(), logger)
	env := &cliEnv{dir: t.TempDir()}
	api := httpapi.New(imageSvc, risk.NewEvaluator(imageSvc, logger), nil, httpapi.Options{}, logger).Handler()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/upload":
			env.uploaded.Store(true)
		case r.Method == http.MethodGet && r.URL.Path == "/api/images":
			env.lists.Add(1)
			if env.uploaded.Load() {
				env.listsAfterUpload.Add(1)
			}
		}
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(backend.Close)

	predictor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections": [
			{"class_name": "FireExtinguisher", "confidence": 0.91, "box": [4, 4, 20, 28]},
			{"class_name": "FireAlarm", "confidence": 0.75, "box": [30, 2, 40, 12]}
		]}`))
	}))
	t.Cleanup(predictor.Close)

	env.apiURL = backend.URL
	env.predictURL = predictor.URL
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{
		"--env-file", filepath.Join(e.dir, "missing.env"),
		"--api-url", e.apiURL,
		"--predict-url", e.predictURL,
		"--detector", "http",
		"--log-level", "error",
		"--settings-db", filepath.Join(e.dir, "settings.db"),
	}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := imaging.Save(imaging.New(48, 32, color.White), path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitAndHistory(t *testing.T) {
	env := newCLIEnv(t)
	a := env.writeImage(t, "aisle.png")
	b := env.writeImage(t, "dock.jpg")

	out, _, err := env.run(t, "submit", a, b)
	if err != nil {
		t.Fatalf("submit error = %v\n%s", err, out)
	}
	if strings.Count(out, "done") != 2 {
		t.Errorf("submit output:\n%s", out)
	}

	out, _, err = env.run(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "aisle.png") || !strings.Contains(out, "dock.jpg") {
		t.Errorf("history output:\n%s", out)
	}

	exportDir := filepath.Join(env.dir, "exports")
	if err := os.Mkdir(exportDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.run(t, "history", "--csv", exportDir); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(exportDir, "detection_history_*.csv"))
	if len(matches) != 1 {
		t.Fatalf("exports = %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n"); lines != 2 {
		t.Errorf("csv has %d data rows, want 2", lines)
	}
}

func TestSubmitUpdatesMountedViews(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run(t, "submit", env.writeImage(t, "seed.png")); err != nil {
		t.Fatal(err)
	}
	env.uploaded.Store(false)
	env.lists.Store(0)
	env.listsAfterUpload.Store(0)

	out, _, err := env.run(t, "submit", env.writeImage(t, "aisle.png"), env.writeImage(t, "dock.png"))
	if err != nil {
		t.Fatalf("submit error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "History: 3 records (+2)") || !strings.Contains(out, "Total detections: 6") {
		t.Errorf("submit summary:\n%s", out)
	}
	if n := env.lists.Load(); n != 2 {
		t.Errorf("record list fetched %d times, want once per mounted view", n)
	}
	if n := env.listsAfterUpload.Load(); n != 0 {
		t.Errorf("record list refetched %d times after uploading", n)
	}
}

func TestSubmitReportsFailures(t *testing.T) {
	env := newCLIEnv(t)
	good := env.writeImage(t, "ok.png")
	bad := filepath.Join(env.dir, "notes.txt")
	if err := os.WriteFile(bad, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := env.run(t, "submit", "-p", "1", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 submissions failed") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "rejected") {
		t.Errorf("output:\n%s", out)
	}
}

func TestAnalyticsJSON(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run(t, "submit", env.writeImage(t, "a.png")); err != nil {
		t.Fatal(err)
	}

	out, _, err := env.run(t, "analytics", "--json", "--months", "3")
	if err != nil {
		t.Fatal(err)
	}
	var report analytics.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.TotalDetections != 2 || len(report.Monthly) != 3 || len(report.Equipment) != 2 {
		t.Errorf("report = %+v", report)
	}

	out, _, err = env.run(t, "analytics")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Total detections:  2") {
		t.Errorf("analytics output:\n%s", out)
	}
}

func TestRiskAndSettings(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "risk")
	if err == nil {
		t.Errorf("risk with no images should fail, got:\n%s", out)
	}

	if _, _, err := env.run(t, "submit", env.writeImage(t, "hall.png")); err != nil {
		t.Fatal(err)
	}
	out, _, err = env.run(t, "risk")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Risk: high") {
		t.Errorf("risk output:\n%s", out)
	}

	if _, _, err := env.run(t, "settings", "set", "--threshold", "0.8", "--disable", "oxygen,nitrogen,firstaid,safetyswitch,emergencyphone"); err != nil {
		t.Fatal(err)
	}
	out, _, err = env.run(t, "settings", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Detection threshold: 0.8") {
		t.Errorf("settings output:\n%s", out)
	}

	out, _, err = env.run(t, "risk")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Risk: medium (50)") {
		t.Errorf("risk output after settings change:\n%s", out)
	}

	if _, _, err := env.run(t, "settings", "set", "--enable", "Teleporter"); err == nil {
		t.Error("unknown equipment accepted")
	}
}

func TestCapture(t *testing.T) {
	env := newCLIEnv(t)
	frame := env.writeImage(t, "frame.png")

	out, _, err := env.run(t, "capture", frame)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Frame 48x32, 2 detections") {
		t.Errorf("capture output:\n%s", out)
	}

	out, _, err = env.run(t, "capture", "--save", frame)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "with 2 detections") {
		t.Errorf("capture --save output:\n%s", out)
	}

	out, _, err = env.run(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "capture-") {
		t.Errorf("history output:\n%s", out)
	}
}

func TestNotifyUsesSettingsEmail(t *testing.T) {
	env := newCLIEnv(t)

	var got struct {
		TemplateParams map[string]string `json:"template_params"`
	}
	emailjs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("OK"))
	}))
	t.Cleanup(emailjs.Close)

	t.Setenv("EMAILJS_ENDPOINT", emailjs.URL)
	t.Setenv("EMAILJS_SERVICE_ID", "svc")
	t.Setenv("EMAILJS_TEMPLATE_ID", "tpl")
	t.Setenv("EMAILJS_PUBLIC_KEY", "pub")

	if _, _, err := env.run(t, "settings", "set", "--email", "ops@example.com"); err != nil {
		t.Fatal(err)
	}

	out, _, err := env.run(t, "notify", "--name", "Ops", "--attach", env.writeImage(t, "alert.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Notification sent to ops@example.com") {
		t.Errorf("notify output:\n%s", out)
	}
	if got.TemplateParams["email"] != "ops@example.com" || !strings.HasPrefix(got.TemplateParams["attachment"], "/api/images/") {
		t.Errorf("template params = %v", got.TemplateParams)
	}
}
