// Package store manages the on-disk wallpaper collection and its SQLite
// catalogue: deterministic naming, retention, eviction, and rendered
// variants.
package store

import (
	"strings"
	"time"
)

const (
	// FileExt is the extension of every stored image.
	FileExt = ".jpg"

	// DateFormat is the calendar-date layout used in file names.
	DateFormat = "2006-01-02"

	// Variant purposes.
	PurposeDesktop = "desktop"
	PurposeFTV     = "ftv"

	// ftvStagingDir holds the TV-ready copies of today's images.
	ftvStagingDir = "ftv_images_today"

	// ExchangeDirName and ExchangeImageName locate the USB exchange
	// mount point and its backing disk image under the image root.
	ExchangeDirName   = "ftv_exchange"
	ExchangeImageName = "ftv_exchange.img"
)

// Meta is the feed metadata recorded alongside a saved image.
type Meta struct {
	Title     string
	Copyright string
	PageURL   string
	SourceURL string
}

// ImageRecord identifies one stored image. (Date, Region) is unique; the
// store exclusively owns LocalPath.
type ImageRecord struct {
	Date      string
	Region    string
	Title     string
	Copyright string
	PageURL   string
	SourceURL string
	LocalPath string
}

// FileName returns the deterministic name for (date, region), so a repeated
// save overwrites rather than duplicates.
func FileName(date, region string) string {
	return date + "_" + region + FileExt
}

// ParseFileName splits a stored file name back into date and region.
func ParseFileName(name string) (date, region string, ok bool) {
	base, found := strings.CutSuffix(name, FileExt)
	if !found {
		return "", "", false
	}
	date, region, found = strings.Cut(base, "_")
	if !found || region == "" {
		return "", "", false
	}
	if _, err := time.Parse(DateFormat, date); err != nil {
		return "", "", false
	}
	return date, region, true
}
