package frametv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
)

// Manager updates all configured Frame TVs with the day's staged images.
type Manager struct {
	targets    map[string]config.Target
	recordPath string
	log        *logrus.Entry
}

func NewManager(targets map[string]config.Target, recordPath string, log *logrus.Entry) *Manager {
	return &Manager{targets: targets, recordPath: recordPath, log: log}
}

// ChangeDailyImages replaces the previous uploads on every TV with the
// given files. One unreachable TV does not stop the others; the update
// counts as delivered when at least one TV took the new images.
func (m *Manager) ChangeDailyImages(ctx context.Context, files []string) (int, error) {
	if len(m.targets) == 0 {
		return 0, errors.New("no frame TVs configured")
	}

	names := make([]string, 0, len(m.targets))
	for name := range m.targets {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := 0
	var lastErr error
	for _, name := range names {
		if err := m.updateTV(ctx, name, m.targets[name], files); err != nil {
			m.log.WithError(err).WithField("tv", name).Error("failed to update frame TV")
			lastErr = err
			continue
		}
		updated++
	}
	if updated == 0 {
		return 0, fmt.Errorf("no frame TV took the new images: %w", lastErr)
	}
	return updated, nil
}

func (m *Manager) updateTV(ctx context.Context, name string, target config.Target, files []string) error {
	log := m.log.WithField("tv", name)

	if target.MACAddr != "" {
		if err := Wake(target.MACAddr); err != nil {
			log.WithError(err).Warn("failed to send wake-on-lan packet")
		}
	}

	client := NewClient(name, target, m.log)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if ok, err := client.SupportsArt(); err != nil {
		return fmt.Errorf("failed to verify art mode support: %w", err)
	} else if !ok {
		return fmt.Errorf("%s does not support art mode", name)
	}

	prior, err := UploadedFiles(m.recordPath, name)
	if err != nil {
		log.WithError(err).Warn("failed to read upload record")
	}
	if len(prior) > 0 {
		deleted, err := client.DeleteUploaded(prior)
		if err != nil {
			log.WithError(err).Warn("failed to delete old uploads")
		}
		prior = subtract(prior, deleted)
	}

	var uploaded []string
	for _, file := range files {
		base := filepath.Base(file)
		data, err := OptimizeForUpload(file)
		if err != nil {
			log.WithError(err).WithField("file", base).Warn("failed to prepare image for upload")
			continue
		}
		if _, err := client.Upload(base, data); err != nil {
			log.WithError(err).WithField("file", base).Warn("failed to upload image")
			continue
		}
		uploaded = append(uploaded, base)
	}

	// Stragglers the TV refused to delete stay on the record so the next
	// cycle retries them.
	if err := RecordUploadedFiles(m.recordPath, name, append(prior, uploaded...)); err != nil {
		log.WithError(err).Warn("failed to write upload record")
	}
	if len(uploaded) == 0 {
		return fmt.Errorf("no images uploaded to %s", name)
	}
	log.WithFields(logrus.Fields{"uploaded": len(uploaded), "total": len(files)}).Info("updated frame TV")
	return nil
}

func subtract(from, remove []string) []string {
	gone := make(map[string]bool, len(remove))
	for _, r := range remove {
		gone[r] = true
	}
	var left []string
	for _, f := range from {
		if !gone[f] {
			left = append(left, f)
		}
	}
	return left
}
