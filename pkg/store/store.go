package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/render"
)

// Store owns the image root directory and the catalogue.
type Store struct {
	root    string
	layout  Layout
	catalog *Catalog
	quality int
	log     *logrus.Entry
}

// New creates the image root if needed and returns a Store using the given
// directory layout and store JPEG quality.
func New(root string, layout Layout, catalog *Catalog, quality int, log *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{
		root:    root,
		layout:  layout,
		catalog: catalog,
		quality: quality,
		log:     log,
	}, nil
}

// Root returns the image root directory.
func (s *Store) Root() string {
	return s.root
}

// Catalog returns the underlying catalogue.
func (s *Store) Catalog() *Catalog {
	return s.catalog
}

// ImagePath returns where the base image for (date, region) lives.
func (s *Store) ImagePath(date, region string) (string, error) {
	dir, err := s.layout.Dir(s.root, date)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName(date, region)), nil
}

// Has reports whether the base image for (date, region) is already stored.
func (s *Store) Has(date, region string) bool {
	path, err := s.ImagePath(date, region)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save decodes the downloaded bytes, renders them to the store geometry at
// the store quality, writes the file atomically, and upserts the catalogue
// row. On success the record is immediately queryable.
func (s *Store) Save(data []byte, date, region string, meta Meta) (ImageRecord, error) {
	img, err := render.Decode(data)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to decode image for %s: %w", date, err)
	}

	path, err := s.ImagePath(date, region)
	if err != nil {
		return ImageRecord{}, err
	}
	spec := render.Spec{Width: 3840, Height: 2160, Quality: s.quality}
	if err := render.Write(img, path, spec); err != nil {
		return ImageRecord{}, fmt.Errorf("failed to store image %s: %w", FileName(date, region), err)
	}

	rec := ImageRecord{
		Date:      date,
		Region:    region,
		Title:     meta.Title,
		Copyright: meta.Copyright,
		PageURL:   meta.PageURL,
		SourceURL: meta.SourceURL,
		LocalPath: path,
	}
	if err := s.catalog.SaveImage(rec); err != nil {
		return ImageRecord{}, err
	}
	return rec, nil
}

// Get returns the record for (date, region) when both the file and the
// catalogue row exist. A file without a row (a manually dropped image)
// yields a record with empty metadata.
func (s *Store) Get(date, region string) (ImageRecord, bool, error) {
	path, err := s.ImagePath(date, region)
	if err != nil {
		return ImageRecord{}, false, err
	}
	if _, err := os.Stat(path); err != nil {
		return ImageRecord{}, false, nil
	}
	rec, ok, err := s.catalog.GetImage(date, region)
	if err != nil {
		return ImageRecord{}, false, err
	}
	if !ok {
		rec = ImageRecord{Date: date, Region: region}
	}
	rec.LocalPath = path
	return rec, true, nil
}

// List scans the image tree and returns every stored image, oldest first.
// Ties on the same date keep catalogue insertion order, then file name.
func (s *Store) List() ([]ImageRecord, error) {
	seq, err := s.catalog.imageSeq()
	if err != nil {
		return nil, err
	}

	var records []ImageRecord
	err = filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Staged TV copies, rendered variants, and the USB
			// exchange tree are not part of the retained collection.
			switch info.Name() {
			case ftvStagingDir, "variants", ExchangeDirName:
				return filepath.SkipDir
			}
			return nil
		}
		date, region, ok := ParseFileName(info.Name())
		if !ok {
			return nil
		}
		rec, found, err := s.catalog.GetImage(date, region)
		if err != nil {
			return err
		}
		if !found {
			rec = ImageRecord{Date: date, Region: region}
		}
		rec.LocalPath = path
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan image directory: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		sa, oka := seq[a.Date+"_"+a.Region]
		sb, okb := seq[b.Date+"_"+b.Region]
		if oka && okb && sa != sb {
			return sa < sb
		}
		return FileName(a.Date, a.Region) < FileName(b.Date, b.Region)
	})
	return records, nil
}

// EvictExcess deletes the oldest records until at most max remain. File
// removal is best effort: a file that cannot be deleted is logged and
// skipped, never aborting the run. Calling it again with no intervening
// save removes nothing. A non-positive max disables eviction.
func (s *Store) EvictExcess(max int) ([]ImageRecord, error) {
	if max <= 0 {
		return nil, nil
	}
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	excess := len(records) - max
	if excess <= 0 {
		return nil, nil
	}

	evicted := make([]ImageRecord, 0, excess)
	for _, rec := range records[:excess] {
		variantPaths, err := s.catalog.DeleteImage(rec.Date, rec.Region)
		if err != nil {
			return evicted, err
		}
		for _, vp := range variantPaths {
			if err := os.Remove(vp); err != nil && !os.IsNotExist(err) {
				s.log.WithError(err).WithField("path", vp).Warn("failed to delete variant file")
			}
		}
		if err := os.Remove(rec.LocalPath); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", rec.LocalPath).Warn("failed to delete image file")
		} else {
			pruneEmptyParents(s.root, rec.LocalPath)
		}
		s.log.WithFields(logrus.Fields{"date": rec.Date, "region": rec.Region}).Info("evicted image")
		evicted = append(evicted, rec)
	}
	return evicted, nil
}

// RenderVariant returns the rendered variant path for the given purpose,
// reusing the cached file when its recorded spec fingerprint is unchanged.
// The record's title and copyright feed the overlay.
func (s *Store) RenderVariant(rec ImageRecord, purpose string, spec render.Spec) (string, error) {
	spec.Title = rec.Title
	spec.Copyright = rec.Copyright
	fp := spec.Fingerprint()

	cached, hash, ok, err := s.catalog.Variant(rec.Date, rec.Region, purpose)
	if err != nil {
		return "", err
	}
	if ok && hash == fp {
		if _, err := os.Stat(cached); err == nil {
			return cached, nil
		}
	}

	dst := filepath.Join(s.root, "variants", purpose, FileName(rec.Date, rec.Region))
	if err := render.File(rec.LocalPath, dst, spec); err != nil {
		return "", fmt.Errorf("failed to render %s variant: %w", purpose, err)
	}
	if err := s.catalog.SetVariant(rec.Date, rec.Region, purpose, dst, fp); err != nil {
		return "", err
	}
	return dst, nil
}

// StageFTV clears the TV staging directory and fills it with the ftv
// variants of the given records, returning the staged paths in order.
func (s *Store) StageFTV(records []ImageRecord, spec render.Spec) ([]string, error) {
	staging := filepath.Join(s.root, ftvStagingDir)
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("failed to clear ftv staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ftv staging directory: %w", err)
	}

	var staged []string
	for _, rec := range records {
		variant, err := s.RenderVariant(rec, PurposeFTV, spec)
		if err != nil {
			return staged, err
		}
		dst := filepath.Join(staging, FileName(rec.Date, rec.Region))
		if err := CopyFile(variant, dst); err != nil {
			return staged, fmt.Errorf("failed to stage %s: %w", FileName(rec.Date, rec.Region), err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// CopyFile copies src to dst, removing a partial dst on failure.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
