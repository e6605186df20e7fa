package store

import (
	"path/filepath"
	"testing"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := OpenCatalog(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("Failed to open catalogue: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestUpsertPagesTrimsOldest(t *testing.T) {
	cat := newTestCatalog(t)

	pages := []Page{
		{ID: 101, Country: "us", Date: "2025-01-01", PageURL: "https://peapix.com/bing/101"},
		{ID: 102, Country: "us", Date: "2025-01-02", PageURL: "https://peapix.com/bing/102"},
		{ID: 103, Country: "us", Date: "2025-01-03", PageURL: "https://peapix.com/bing/103"},
		{ID: 104, Country: "us", Date: "2025-01-04", PageURL: "https://peapix.com/bing/104"},
		{ID: 105, Country: "us", Date: "2025-01-05", PageURL: "https://peapix.com/bing/105"},
	}
	if err := cat.UpsertPages(pages, 3); err != nil {
		t.Fatalf("Failed to upsert pages: %v", err)
	}

	kept, err := cat.ExistingPages()
	if err != nil {
		t.Fatalf("Failed to read pages: %v", err)
	}
	if len(kept) != 3 {
		t.Fatalf("Expected 3 pages after trim, got %d", len(kept))
	}
	for _, id := range []int64{103, 104, 105} {
		if _, ok := kept[id]; !ok {
			t.Errorf("Expected page %d to survive trim", id)
		}
	}
	if _, ok := kept[101]; ok {
		t.Error("Expected oldest page to be trimmed")
	}
}

func TestUpsertPagesReplacesExisting(t *testing.T) {
	cat := newTestCatalog(t)

	if err := cat.UpsertPages([]Page{{ID: 7, Country: "us", Date: "", PageURL: "u"}}, 0); err != nil {
		t.Fatalf("Failed to upsert page: %v", err)
	}
	if err := cat.UpsertPages([]Page{{ID: 7, Country: "us", Date: "2025-02-01", PageURL: "u"}}, 0); err != nil {
		t.Fatalf("Failed to upsert page: %v", err)
	}

	pages, err := cat.ExistingPages()
	if err != nil {
		t.Fatalf("Failed to read pages: %v", err)
	}
	if got := pages[7].Date; got != "2025-02-01" {
		t.Errorf("Expected replaced date %q, got %q", "2025-02-01", got)
	}
}

func TestImageRowLifecycle(t *testing.T) {
	cat := newTestCatalog(t)

	rec := ImageRecord{
		Date:      "2025-01-15",
		Region:    "en-US",
		Title:     "Aurora over fjord",
		Copyright: "© Somebody",
		SourceURL: "http://www.bing.com/x_1920x1080.jpg",
		LocalPath: "/imgs/2025/01/2025-01-15_en-US.jpg",
	}
	if err := cat.SaveImage(rec); err != nil {
		t.Fatalf("Failed to save image row: %v", err)
	}
	if err := cat.SetVariant(rec.Date, rec.Region, PurposeDesktop, "/imgs/variants/desktop/a.jpg", "abc"); err != nil {
		t.Fatalf("Failed to set variant: %v", err)
	}

	got, ok, err := cat.GetImage(rec.Date, rec.Region)
	if err != nil {
		t.Fatalf("Failed to get image row: %v", err)
	}
	if !ok {
		t.Fatal("Expected image row to exist")
	}
	if got.Title != rec.Title || got.Copyright != rec.Copyright {
		t.Errorf("Expected metadata round trip, got %+v", got)
	}

	paths, err := cat.DeleteImage(rec.Date, rec.Region)
	if err != nil {
		t.Fatalf("Failed to delete image row: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/imgs/variants/desktop/a.jpg" {
		t.Errorf("Expected variant path returned on delete, got %v", paths)
	}

	if _, ok, err := cat.GetImage(rec.Date, rec.Region); err != nil || ok {
		t.Errorf("Expected image row gone, ok=%v err=%v", ok, err)
	}
	if left, err := cat.VariantPaths(rec.Date, rec.Region); err != nil || len(left) != 0 {
		t.Errorf("Expected variant rows gone, got %v err=%v", left, err)
	}
}

func TestVariantFingerprintUpdate(t *testing.T) {
	cat := newTestCatalog(t)

	if err := cat.SetVariant("2025-01-15", "us", PurposeFTV, "/v/a.jpg", "hash-1"); err != nil {
		t.Fatalf("Failed to set variant: %v", err)
	}
	if err := cat.SetVariant("2025-01-15", "us", PurposeFTV, "/v/a.jpg", "hash-2"); err != nil {
		t.Fatalf("Failed to update variant: %v", err)
	}

	path, hash, ok, err := cat.Variant("2025-01-15", "us", PurposeFTV)
	if err != nil {
		t.Fatalf("Failed to get variant: %v", err)
	}
	if !ok {
		t.Fatal("Expected variant row to exist")
	}
	if path != "/v/a.jpg" || hash != "hash-2" {
		t.Errorf("Expected updated variant, got path=%q hash=%q", path, hash)
	}

	if _, _, ok, err := cat.Variant("2025-01-15", "us", PurposeDesktop); err != nil || ok {
		t.Errorf("Expected no desktop variant, ok=%v err=%v", ok, err)
	}
}

func TestOpenCatalogTwiceKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	cat, err := OpenCatalog(path)
	if err != nil {
		t.Fatalf("Failed to open catalogue: %v", err)
	}
	if err := cat.SaveImage(ImageRecord{Date: "2025-01-15", Region: "us", LocalPath: "/p"}); err != nil {
		t.Fatalf("Failed to save image row: %v", err)
	}
	cat.Close()

	cat, err = OpenCatalog(path)
	if err != nil {
		t.Fatalf("Failed to reopen catalogue: %v", err)
	}
	defer cat.Close()

	_, ok, err := cat.GetImage("2025-01-15", "us")
	if err != nil {
		t.Fatalf("Failed to get image row: %v", err)
	}
	if !ok {
		t.Error("Expected image row to survive reopen")
	}
}
