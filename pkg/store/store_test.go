package store

import (
	"bytes"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"bingwall/pkg/render"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T, layout Layout, quality int) *Store {
	t.Helper()
	cat, err := OpenCatalog(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("Failed to open catalogue: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	s, err := New(t.TempDir(), layout, cat, quality, testLog())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(64, 36, color.NRGBA{R: 40, G: 90, B: 160, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestSaveAndList(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	dates := []string{"2025-01-16", "2025-01-15", "2025-01-17"}
	for _, d := range dates {
		if _, err := s.Save(data, d, "en-US", Meta{Title: "title " + d}); err != nil {
			t.Fatalf("Failed to save %s: %v", d, err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("Failed to list images: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	want := []string{"2025-01-15", "2025-01-16", "2025-01-17"}
	for i, rec := range records {
		if rec.Date != want[i] {
			t.Errorf("Expected record %d date %s, got %s", i, want[i], rec.Date)
		}
		if rec.Title != "title "+rec.Date {
			t.Errorf("Expected catalogue title for %s, got %q", rec.Date, rec.Title)
		}
		if _, err := os.Stat(rec.LocalPath); err != nil {
			t.Errorf("Expected stored file for %s: %v", rec.Date, err)
		}
	}
}

func TestSaveOverwritesSameDay(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	if _, err := s.Save(data, "2025-03-01", "en-US", Meta{Title: "first"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if _, err := s.Save(data, "2025-03-01", "en-US", Meta{Title: "second"}); err != nil {
		t.Fatalf("Failed to re-save: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("Failed to list images: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after overwrite, got %d", len(records))
	}
	if records[0].Title != "second" {
		t.Errorf("Expected updated title %q, got %q", "second", records[0].Title)
	}
}

func TestEvictExcessKeepsNewest(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	// The oldest image sits in its own month so pruning can be observed.
	dates := []string{"2024-12-31", "2025-01-16", "2025-01-17", "2025-01-18"}
	for _, d := range dates {
		if _, err := s.Save(data, d, "en-US", Meta{}); err != nil {
			t.Fatalf("Failed to save %s: %v", d, err)
		}
	}

	evicted, err := s.EvictExcess(3)
	if err != nil {
		t.Fatalf("Failed to evict: %v", err)
	}
	if len(evicted) != 1 {
		t.Fatalf("Expected 1 eviction, got %d", len(evicted))
	}
	if evicted[0].Date != "2024-12-31" {
		t.Errorf("Expected oldest image evicted, got %s", evicted[0].Date)
	}
	if _, err := os.Stat(evicted[0].LocalPath); !os.IsNotExist(err) {
		t.Errorf("Expected evicted file to be deleted, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "2024")); !os.IsNotExist(err) {
		t.Errorf("Expected empty year directory to be pruned, stat err: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("Failed to list images: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records after eviction, got %d", len(records))
	}
	for i, want := range []string{"2025-01-16", "2025-01-17", "2025-01-18"} {
		if records[i].Date != want {
			t.Errorf("Expected record %d date %s, got %s", i, want, records[i].Date)
		}
	}
}

func TestEvictExcessSecondCallRemovesNothing(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	for _, d := range []string{"2025-02-01", "2025-02-02", "2025-02-03"} {
		if _, err := s.Save(data, d, "en-US", Meta{}); err != nil {
			t.Fatalf("Failed to save %s: %v", d, err)
		}
	}

	first, err := s.EvictExcess(2)
	if err != nil {
		t.Fatalf("Failed to evict: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("Expected 1 eviction, got %d", len(first))
	}

	second, err := s.EvictExcess(2)
	if err != nil {
		t.Fatalf("Failed to evict again: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("Expected no evictions on second call, got %d", len(second))
	}
}

func TestEvictExcessDisabled(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	for _, d := range []string{"2025-02-01", "2025-02-02"} {
		if _, err := s.Save(data, d, "en-US", Meta{}); err != nil {
			t.Fatalf("Failed to save %s: %v", d, err)
		}
	}

	evicted, err := s.EvictExcess(0)
	if err != nil {
		t.Fatalf("Failed to evict: %v", err)
	}
	if len(evicted) != 0 {
		t.Errorf("Expected eviction disabled for max 0, got %d removals", len(evicted))
	}
}

func TestEvictExcessSameDateKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	data := jpegBytes(t)

	if _, err := s.Save(data, "2025-04-01", "en-US", Meta{}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if _, err := s.Save(data, "2025-04-01", "ja-JP", Meta{}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	evicted, err := s.EvictExcess(1)
	if err != nil {
		t.Fatalf("Failed to evict: %v", err)
	}
	if len(evicted) != 1 {
		t.Fatalf("Expected 1 eviction, got %d", len(evicted))
	}
	if evicted[0].Region != "en-US" {
		t.Errorf("Expected first inserted region evicted, got %s", evicted[0].Region)
	}
}

func TestRenderVariantReusesCachedFile(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	rec, err := s.Save(jpegBytes(t), "2025-05-01", "en-US", Meta{Title: "Hills"})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	spec := render.Spec{Width: 32, Height: 18, Quality: 85}
	path, err := s.RenderVariant(rec, PurposeDesktop, spec)
	if err != nil {
		t.Fatalf("Failed to render variant: %v", err)
	}

	// Overwrite the cached file: an unchanged spec must not re-render it.
	sentinel := []byte("cached")
	if err := os.WriteFile(path, sentinel, 0644); err != nil {
		t.Fatalf("Failed to overwrite variant: %v", err)
	}
	again, err := s.RenderVariant(rec, PurposeDesktop, spec)
	if err != nil {
		t.Fatalf("Failed to render variant again: %v", err)
	}
	if again != path {
		t.Errorf("Expected cached path %s, got %s", path, again)
	}
	got, err := os.ReadFile(again)
	if err != nil {
		t.Fatalf("Failed to read variant: %v", err)
	}
	if !bytes.Equal(got, sentinel) {
		t.Error("Expected cached variant to be left untouched")
	}

	// Changing the spec invalidates the cache.
	spec.Width = 64
	spec.Height = 36
	refreshed, err := s.RenderVariant(rec, PurposeDesktop, spec)
	if err != nil {
		t.Fatalf("Failed to re-render variant: %v", err)
	}
	got, err = os.ReadFile(refreshed)
	if err != nil {
		t.Fatalf("Failed to read variant: %v", err)
	}
	if bytes.Equal(got, sentinel) {
		t.Error("Expected spec change to re-render the variant")
	}
}

func TestStageFTVClearsPreviousStaging(t *testing.T) {
	s := newTestStore(t, LayoutByMonthDay, 89)
	rec, err := s.Save(jpegBytes(t), "2025-05-02", "us", Meta{})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	staging := filepath.Join(s.Root(), ftvStagingDir)
	if err := os.MkdirAll(staging, 0755); err != nil {
		t.Fatalf("Failed to create staging dir: %v", err)
	}
	stale := filepath.Join(staging, "2025-05-01_us.jpg")
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatalf("Failed to write stale file: %v", err)
	}

	staged, err := s.StageFTV([]ImageRecord{rec}, render.Spec{Width: 32, Height: 18, Quality: 85})
	if err != nil {
		t.Fatalf("Failed to stage: %v", err)
	}
	if len(staged) != 1 {
		t.Fatalf("Expected 1 staged file, got %d", len(staged))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected stale staged file to be removed, stat err: %v", err)
	}
	if _, err := os.Stat(staged[0]); err != nil {
		t.Errorf("Expected staged file to exist: %v", err)
	}
}

func TestListSkipsStagingAndVariants(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)
	rec, err := s.Save(jpegBytes(t), "2025-06-01", "en-US", Meta{})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if _, err := s.RenderVariant(rec, PurposeFTV, render.Spec{Width: 32, Height: 18, Quality: 85}); err != nil {
		t.Fatalf("Failed to render variant: %v", err)
	}
	if _, err := s.StageFTV([]ImageRecord{rec}, render.Spec{Width: 32, Height: 18, Quality: 85}); err != nil {
		t.Fatalf("Failed to stage: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("Failed to list images: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected staged copies and variants to be ignored, got %d records", len(records))
	}
}

func TestHasAndImagePath(t *testing.T) {
	s := newTestStore(t, LayoutByDate, 89)

	if s.Has("2025-07-01", "en-US") {
		t.Error("Expected Has false before save")
	}
	if _, err := s.Save(jpegBytes(t), "2025-07-01", "en-US", Meta{}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if !s.Has("2025-07-01", "en-US") {
		t.Error("Expected Has true after save")
	}

	path, err := s.ImagePath("2025-07-01", "en-US")
	if err != nil {
		t.Fatalf("Failed to build image path: %v", err)
	}
	want := filepath.Join(s.Root(), "2025", "07", "2025-07-01_en-US.jpg")
	if path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}
}
