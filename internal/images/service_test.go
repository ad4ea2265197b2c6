package images

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/johnrirwin/orbitsafe/internal/models"
	"github.com/johnrirwin/orbitsafe/internal/testutil"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(4, 3, color.White), imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *MemoryStorage) {
	t.Helper()
	store := NewMemoryStorage()
	svc := NewService(store, testutil.NullLogger())
	return svc, store
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	rec, err := svc.Create(ctx, CreateRequest{
		Name: "C:\\shots\\rack.png",
		Data: pngBytes(t),
		Detections: []models.Detection{
			{Label: "FireAlarm", Confidence: 0.8},
			{Label: "OxygenTank", Confidence: 0.6},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if rec.ID == "" || !strings.HasSuffix(rec.Filename, ".png") {
		t.Errorf("record = %+v", rec)
	}
	if rec.OriginalName != "rack.png" {
		t.Errorf("OriginalName = %q", rec.OriginalName)
	}
	if rec.MimeType != "image/png" {
		t.Errorf("MimeType = %q", rec.MimeType)
	}
	if rec.URL != "/api/images/"+rec.ID+"/raw" {
		t.Errorf("URL = %q", rec.URL)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if rec.AvgConfidence == nil || *rec.AvgConfidence < 0.699 || *rec.AvgConfidence > 0.701 {
		t.Errorf("AvgConfidence = %v", rec.AvgConfidence)
	}

	blob, err := svc.Blob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Blob() error = %v", err)
	}
	if blob.ContentType != "image/png" || len(blob.Data) == 0 {
		t.Errorf("blob = %s %d bytes", blob.ContentType, len(blob.Data))
	}
}

func TestCreate_Rejects(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyUpload},
		{"text", []byte("hello, not an image"), ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateRequest{Name: "x", Data: tt.data})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreate_NoDetections(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.Create(context.Background(), CreateRequest{Data: pngBytes(t)})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Detections == nil || len(rec.Detections) != 0 {
		t.Errorf("Detections = %#v, want empty non-nil", rec.Detections)
	}
	if rec.AvgConfidence != nil {
		t.Errorf("AvgConfidence = %v, want nil", *rec.AvgConfidence)
	}
	if rec.OriginalName != rec.Filename {
		t.Errorf("OriginalName = %q, want filename", rec.OriginalName)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		rec, err := svc.Create(ctx, CreateRequest{Name: "f.png", Data: pngBytes(t)})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestReplaceDetections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, CreateRequest{Name: "f.png", Data: pngBytes(t)})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.ReplaceDetections(ctx, rec.ID, []models.Detection{{Label: "FireExtinguisher", Confidence: 0.9}})
	if err != nil {
		t.Fatalf("ReplaceDetections() error = %v", err)
	}
	if len(updated.Detections) != 1 || updated.AvgConfidence == nil || *updated.AvgConfidence != 0.9 {
		t.Errorf("updated = %+v", updated)
	}

	cleared, err := svc.ReplaceDetections(ctx, rec.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cleared.Detections) != 0 || cleared.AvgConfidence != nil {
		t.Errorf("cleared = %+v", cleared)
	}

	if _, err := svc.ReplaceDetections(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	snap, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if *snap.TotalImages != 0 || snap.AvgConfidence != nil || snap.ResponseTime != nil {
		t.Errorf("empty snapshot = %+v", snap)
	}

	for _, conf := range []float64{0.5, 0.9} {
		if _, err := svc.Create(ctx, CreateRequest{
			Name:       "f.png",
			Data:       pngBytes(t),
			Detections: []models.Detection{{Label: "FireAlarm", Confidence: conf}},
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Create(ctx, CreateRequest{Name: "none.png", Data: pngBytes(t)}); err != nil {
		t.Fatal(err)
	}
	svc.ObserveLatency(10 * time.Millisecond)
	svc.ObserveLatency(25 * time.Millisecond)

	snap, err = svc.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if *snap.TotalImages != 3 || *snap.TotalDetections != 2 {
		t.Errorf("totals = %d/%d", *snap.TotalImages, *snap.TotalDetections)
	}
	if snap.AvgConfidence == nil || *snap.AvgConfidence < 0.699 || *snap.AvgConfidence > 0.701 {
		t.Errorf("AvgConfidence = %v", snap.AvgConfidence)
	}
	if snap.ResponseTime == nil || *snap.ResponseTime != 17.5 {
		t.Errorf("ResponseTime = %v", snap.ResponseTime)
	}
}

func TestObserveLatency_Window(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < latencyWindow; i++ {
		svc.ObserveLatency(100 * time.Millisecond)
	}
	for i := 0; i < latencyWindow; i++ {
		svc.ObserveLatency(time.Millisecond)
	}
	if got := svc.meanLatency(); got == nil || *got != 1 {
		t.Errorf("meanLatency = %v, want 1", got)
	}
}

func TestSettings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	got, err := svc.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.DetectionThreshold != 0.5 || len(got.Objects) != len(models.DefaultObjects()) {
		t.Errorf("defaults = %+v", got)
	}

	if _, err := svc.Create(ctx, CreateRequest{
		Name: "f.png",
		Data: pngBytes(t),
		Detections: []models.Detection{
			{Label: "FireAlarm", Confidence: 0.9},
			{Label: "FireAlarm", Confidence: 0.7},
		},
	}); err != nil {
		t.Fatal(err)
	}

	next := models.DefaultSettings()
	next.DetectionThreshold = 0.7
	next.ObjectCounts = map[string]int{"ignored": 5}
	saved, err := svc.SaveSettings(ctx, next)
	if err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	if saved.DetectionThreshold != 0.7 {
		t.Errorf("threshold = %v", saved.DetectionThreshold)
	}
	if saved.ObjectCounts["FireAlarm"] != 2 || saved.ObjectCounts["ignored"] != 0 {
		t.Errorf("ObjectCounts = %v", saved.ObjectCounts)
	}

	bad := models.DefaultSettings()
	bad.DetectionThreshold = 1.5
	if _, err := svc.SaveSettings(ctx, bad); !errors.Is(err, models.ErrThresholdRange) {
		t.Errorf("err = %v, want ErrThresholdRange", err)
	}
}
