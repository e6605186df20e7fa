package frametv

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Frame TVs reject large uploads and drop connections on slow transfers,
// so images are capped at 300KB before going over the wire.
const (
	maxUploadBytes  = 300 * 1024
	maxUploadPixels = 1920
	minUploadJPEGQ  = 30
)

var uploadQualityLadder = []int{85, 75, 65, 55, 45}

// OptimizeForUpload re-encodes the image under the TV's size limit,
// stepping down the JPEG quality until it fits.
func OptimizeForUpload(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image for upload: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxUploadPixels || bounds.Dy() > maxUploadPixels {
		img = imaging.Fit(img, maxUploadPixels, maxUploadPixels, imaging.Lanczos)
	}

	for _, q := range uploadQualityLadder {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("failed to encode image for upload: %w", err)
		}
		if buf.Len() <= maxUploadBytes {
			return buf.Bytes(), nil
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(minUploadJPEGQ)); err != nil {
		return nil, fmt.Errorf("failed to encode image for upload: %w", err)
	}
	return buf.Bytes(), nil
}
