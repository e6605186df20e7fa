// Package render produces display variants of wallpaper images: resizing to
// the target geometry and overlaying the image title in the lower right
// corner with a glow outline.
package render

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	titleFontSize = 42
	titleOffsetX  = 100
	titleOffsetY  = 100
	glowAmount    = 6
)

// Decode parses downloaded image bytes.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Apply resizes img to the spec geometry and overlays the title when
// requested. A zero width or height skips resizing.
func Apply(img image.Image, spec Spec) image.Image {
	if spec.Width > 0 && spec.Height > 0 {
		b := img.Bounds()
		if b.Dx() != spec.Width || b.Dy() != spec.Height {
			img = imaging.Resize(img, spec.Width, spec.Height, imaging.Lanczos)
		}
	}
	if spec.Overlay && strings.TrimSpace(spec.Title) != "" {
		img = overlayTitle(img, spec)
	}
	return img
}

// Write renders img per spec and encodes it as JPEG at dst, atomically.
func Write(img image.Image, dst string, spec Spec) error {
	out := Apply(img, spec)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create variant directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".render-*")
	if err != nil {
		return fmt.Errorf("failed to create temp variant file: %w", err)
	}
	tmpName := tmp.Name()
	if err := imaging.Encode(tmp, out, imaging.JPEG, imaging.JPEGQuality(spec.Quality)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode variant: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp variant file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod variant file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace variant file: %w", err)
	}
	return nil
}

// File renders the image at src into dst per spec.
func File(src, dst string, spec Spec) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source image: %w", err)
	}
	return Write(img, dst, spec)
}

// overlayTitle draws the title (and copyright, on a second line) near the
// bottom right, glow first in eight directions, then the text itself.
func overlayTitle(img image.Image, spec Spec) image.Image {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return img
	}
	face := truetype.NewFace(f, &truetype.Options{Size: titleFontSize})

	dc := gg.NewContextForImage(img)
	dc.SetFontFace(face)

	lines := []string{spec.Title}
	longest := spec.Title
	if spec.Copyright != "" {
		lines = append(lines, spec.Copyright)
		if len(spec.Copyright) > len(longest) {
			longest = spec.Copyright
		}
	}
	w, h := dc.MeasureString(longest)
	lineHeight := h * 1.4
	x := float64(dc.Width()) - w - titleOffsetX
	y := float64(dc.Height()) - lineHeight*float64(len(lines)) - titleOffsetY

	dc.SetRGB(0, 0, 0)
	for i := 0; i < glowAmount; i++ {
		d := float64(i)
		for _, off := range [][2]float64{
			{d, 0}, {-d, 0}, {0, d}, {0, -d},
			{d, d}, {d, -d}, {-d, d}, {-d, -d},
		} {
			drawLines(dc, lines, x+off[0], y+off[1], lineHeight)
		}
	}
	dc.SetRGB(1, 1, 1)
	drawLines(dc, lines, x, y, lineHeight)
	return dc.Image()
}

func drawLines(dc *gg.Context, lines []string, x, y, lineHeight float64) {
	for i, line := range lines {
		dc.DrawString(line, x, y+float64(i+1)*lineHeight)
	}
}
