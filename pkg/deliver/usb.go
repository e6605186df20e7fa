package deliver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/store"
)

// defaultHelper is the privileged mount helper binary, looked up on PATH.
const defaultHelper = "usbmount"

// USB copies staged variants into the exchange image's mount point and
// cycles the mount afterwards so the mass-storage gadget re-exposes the
// new contents.
type USB struct {
	imagePath  string
	mountPoint string
	helper     string
	log        *logrus.Entry
}

// NewUSB places the exchange image and its mount point under the image
// root, next to the collection they feed from.
func NewUSB(imageRoot string, log *logrus.Entry) *USB {
	return &USB{
		imagePath:  filepath.Join(imageRoot, store.ExchangeImageName),
		mountPoint: filepath.Join(imageRoot, store.ExchangeDirName),
		helper:     defaultHelper,
		log:        log,
	}
}

// Deliver mounts the exchange image, replaces its contents with the given
// files, verifies every copy by size and checksum, and remounts.
func (u *USB) Deliver(ctx context.Context, files []string) error {
	if _, err := os.Stat(u.imagePath); err != nil {
		return fmt.Errorf("exchange image missing, run 'usbmount create %s' first: %w", u.imagePath, err)
	}

	if err := u.runHelper(ctx, "mount", u.imagePath, u.mountPoint); err != nil {
		return err
	}

	if err := u.clearExchange(); err != nil {
		return err
	}

	for _, src := range files {
		name := filepath.Base(src)
		dst := filepath.Join(u.mountPoint, name)
		if err := store.CopyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy %s into exchange: %w", name, err)
		}
		if err := verifyCopy(src, dst); err != nil {
			return err
		}
	}

	return u.runHelper(ctx, "remount", u.imagePath)
}

// clearExchange removes previously delivered images so the TV only sees
// today's set.
func (u *USB) clearExchange() error {
	entries, err := os.ReadDir(u.mountPoint)
	if err != nil {
		return fmt.Errorf("failed to read exchange directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), store.FileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(u.mountPoint, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale %s from exchange: %w", e.Name(), err)
		}
	}
	return nil
}

func (u *USB) runHelper(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, u.helper, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %s %s: %w: %s", u.helper, args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}

// verifyCopy confirms dst is a faithful copy of src by size and SHA-256.
func verifyCopy(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	if srcInfo.Size() != dstInfo.Size() {
		return fmt.Errorf("copy of %s is %d bytes, expected %d", filepath.Base(src), dstInfo.Size(), srcInfo.Size())
	}

	srcSum, err := fileSHA256(src)
	if err != nil {
		return err
	}
	dstSum, err := fileSHA256(dst)
	if err != nil {
		return err
	}
	if srcSum != dstSum {
		return fmt.Errorf("copy of %s failed checksum verification", filepath.Base(src))
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
