package deliver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/store"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// newTestUSB builds a USB deliverer whose helper is a no-op, with the
// exchange image and mount directory already in place.
func newTestUSB(t *testing.T) *USB {
	t.Helper()
	root := t.TempDir()
	u := NewUSB(root, testLog())
	u.helper = "true"
	if err := os.WriteFile(u.imagePath, []byte("disk image"), 0644); err != nil {
		t.Fatalf("Failed to create exchange image: %v", err)
	}
	if err := os.MkdirAll(u.mountPoint, 0755); err != nil {
		t.Fatalf("Failed to create mount point: %v", err)
	}
	return u
}

func TestUSBDeliverCopiesAndClearsStale(t *testing.T) {
	u := newTestUSB(t)

	stale := filepath.Join(u.mountPoint, "2025-01-15_en-US"+store.FileExt)
	if err := os.WriteFile(stale, []byte("yesterday"), 0644); err != nil {
		t.Fatalf("Failed to seed stale file: %v", err)
	}

	src := filepath.Join(t.TempDir(), "2025-01-16_en-US"+store.FileExt)
	if err := os.WriteFile(src, []byte("today's image bytes"), 0644); err != nil {
		t.Fatalf("Failed to write staged file: %v", err)
	}

	if err := u.Deliver(context.Background(), []string{src}); err != nil {
		t.Fatalf("Failed to deliver: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale exchange file to be removed")
	}
	copied, err := os.ReadFile(filepath.Join(u.mountPoint, filepath.Base(src)))
	if err != nil {
		t.Fatalf("Failed to read delivered file: %v", err)
	}
	if string(copied) != "today's image bytes" {
		t.Errorf("Expected delivered bytes to match source, got %q", copied)
	}
}

func TestUSBDeliverMissingImage(t *testing.T) {
	u := NewUSB(t.TempDir(), testLog())
	u.helper = "true"

	err := u.Deliver(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error when exchange image is missing")
	}
}

func TestUSBDeliverHelperFailure(t *testing.T) {
	u := newTestUSB(t)
	u.helper = "false"

	if err := u.Deliver(context.Background(), nil); err == nil {
		t.Fatal("Expected error when mount helper fails")
	}
}

func TestVerifyCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	same := filepath.Join(dir, "same.jpg")
	short := filepath.Join(dir, "short.jpg")
	corrupt := filepath.Join(dir, "corrupt.jpg")

	for path, content := range map[string]string{
		src:     "image payload",
		same:    "image payload",
		short:   "image",
		corrupt: "image paXload",
	} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	if err := verifyCopy(src, same); err != nil {
		t.Errorf("Expected identical copy to verify, got %v", err)
	}
	if err := verifyCopy(src, short); err == nil {
		t.Error("Expected size mismatch to fail verification")
	}
	if err := verifyCopy(src, corrupt); err == nil {
		t.Error("Expected checksum mismatch to fail verification")
	}
}
