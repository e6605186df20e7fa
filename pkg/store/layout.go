package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Layout selects the directory structure under the image root. Desktop use
// groups by year and month (YYYY/mm); Frame TV use groups by month and day
// (mm/dd) so a TV slideshow can cycle through "this day across years".
type Layout int

const (
	LayoutByDate Layout = iota // YYYY/mm
	LayoutByMonthDay           // mm/dd
)

// LayoutFor returns the layout matching the ftv.enabled toggle.
func LayoutFor(ftvEnabled bool) Layout {
	if ftvEnabled {
		return LayoutByMonthDay
	}
	return LayoutByDate
}

func (l Layout) String() string {
	if l == LayoutByMonthDay {
		return "mm/dd"
	}
	return "YYYY/mm"
}

// Dir returns the directory for a given image date under root.
func (l Layout) Dir(root, date string) (string, error) {
	t, err := time.Parse(DateFormat, date)
	if err != nil {
		return "", fmt.Errorf("failed to parse image date %q: %w", date, err)
	}
	if l == LayoutByMonthDay {
		return filepath.Join(root, fmt.Sprintf("%02d", t.Month()), fmt.Sprintf("%02d", t.Day())), nil
	}
	return filepath.Join(root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", t.Month())), nil
}

// ConvertLayout moves every stored image found under root from the other
// layout into want, then removes the abandoned directory trees. Files whose
// names do not parse are left where they are. Returns the number of files
// moved.
func ConvertLayout(root string, want Layout, log *logrus.Entry) (int, error) {
	from := LayoutByDate
	if want == LayoutByDate {
		from = LayoutByMonthDay
	}

	tops, err := topLevelDirs(root, from)
	if err != nil {
		return 0, err
	}
	if len(tops) == 0 {
		return 0, nil
	}
	log.WithFields(logrus.Fields{"from": from.String(), "to": want.String()}).Info("converting image directory layout")

	moved := 0
	for _, top := range tops {
		if err := filepath.Walk(filepath.Join(root, top), func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			date, _, ok := ParseFileName(info.Name())
			if !ok {
				return nil
			}
			dstDir, err := want.Dir(root, date)
			if err != nil {
				return nil
			}
			if err := os.MkdirAll(dstDir, 0755); err != nil {
				return fmt.Errorf("failed to create layout directory: %w", err)
			}
			dst := filepath.Join(dstDir, info.Name())
			if err := os.Rename(path, dst); err != nil {
				return fmt.Errorf("failed to move %s: %w", info.Name(), err)
			}
			moved++
			return nil
		}); err != nil {
			return moved, err
		}
		// The old tree only goes away once every image in it moved.
		if err := removeIfOnlyEmptyDirs(filepath.Join(root, top)); err != nil {
			log.WithError(err).WithField("dir", top).Warn("failed to remove old layout directory")
		}
	}
	return moved, nil
}

// topLevelDirs lists root's immediate subdirectories that belong to the
// given layout: 4-digit years for YYYY/mm, months 01-12 for mm/dd.
func topLevelDirs(root string, l Layout) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		switch l {
		case LayoutByDate:
			if len(name) == 4 && allDigits(name) {
				dirs = append(dirs, name)
			}
		case LayoutByMonthDay:
			if len(name) == 2 && allDigits(name) && name >= "01" && name <= "12" {
				dirs = append(dirs, name)
			}
		}
	}
	return dirs, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// removeIfOnlyEmptyDirs deletes dir when nothing but empty directories
// remain beneath it.
func removeIfOnlyEmptyDirs(dir string) error {
	empty := true
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			empty = false
		}
		return nil
	})
	if !empty {
		return fmt.Errorf("directory %s still contains files", dir)
	}
	return os.RemoveAll(dir)
}

// pruneEmptyParents removes the image's date directory and its parent when
// they are left empty after an eviction. os.Remove refuses non-empty
// directories, which is exactly the guard needed.
func pruneEmptyParents(root, imagePath string) {
	dir := filepath.Dir(imagePath)
	for i := 0; i < 2; i++ {
		if dir == root || len(dir) <= len(root) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
