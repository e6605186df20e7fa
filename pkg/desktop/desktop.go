// Package desktop keeps the current desktop wallpaper in sync with the
// day's stored image.
package desktop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
	"bingwall/pkg/render"
	"bingwall/pkg/store"
)

// backgroundPrefix marks the single active wallpaper copy in the image
// root, so stale copies from earlier days can be found and removed.
const backgroundPrefix = "background_img"

// Updater renders the day's image at the desktop geometry and points the
// OS at it.
type Updater struct {
	store    *store.Store
	region   string
	spec     render.Spec
	setter   Setter
	applySet bool
	log      *logrus.Entry
}

func NewUpdater(cfg *config.Config, st *store.Store, setter Setter, log *logrus.Entry) *Updater {
	return &Updater{
		store:  st,
		region: cfg.Region,
		spec: render.Spec{
			Width:   cfg.DesktopImg.Width,
			Height:  cfg.DesktopImg.Height,
			Quality: cfg.DesktopImg.JpgQuality,
			Overlay: true,
		},
		setter:   setter,
		applySet: cfg.SetDesktopImage,
		log:      log,
	}
}

// UpdateCurrent swaps the active wallpaper to the image stored for the
// given date. The rendered copy lands in the image root under the
// background prefix; older prefixed copies are deleted afterwards.
func (u *Updater) UpdateCurrent(date string) error {
	rec, ok, err := u.store.Get(date, u.region)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored image for %s_%s", date, u.region)
	}

	variant, err := u.store.RenderVariant(rec, store.PurposeDesktop, u.spec)
	if err != nil {
		return err
	}

	dstName := backgroundPrefix + "_" + store.FileName(date, u.region)
	dst := filepath.Join(u.store.Root(), dstName)
	if err := store.CopyFile(variant, dst); err != nil {
		return fmt.Errorf("failed to place background image: %w", err)
	}
	u.removeStaleBackgrounds(dstName)

	// set_desktop_image=false keeps the rendered copy current without
	// touching the OS background, for hosts where something else owns it.
	if !u.applySet {
		u.log.WithField("path", dst).Info("placed background image, OS setter disabled")
		return nil
	}
	if err := u.setter.Set(dst); err != nil {
		return fmt.Errorf("failed to set desktop background: %w", err)
	}
	u.log.WithField("path", dst).Info("updated desktop background")
	return nil
}

func (u *Updater) removeStaleBackgrounds(keep string) {
	entries, err := os.ReadDir(u.store.Root())
	if err != nil {
		u.log.WithError(err).Warn("failed to scan for stale backgrounds")
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep || !strings.HasPrefix(name, backgroundPrefix+"_") {
			continue
		}
		if err := os.Remove(filepath.Join(u.store.Root(), name)); err != nil {
			u.log.WithError(err).WithField("file", name).Warn("failed to delete stale background")
		}
	}
}
