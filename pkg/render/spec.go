package render

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Spec describes one rendered variant: target geometry, JPEG quality, and
// the optional title overlay.
type Spec struct {
	Width     int
	Height    int
	Quality   int
	Overlay   bool
	Title     string
	Copyright string
}

// Fingerprint identifies the spec for variant caching: a variant on disk is
// reused only while its recorded fingerprint matches.
func (s Spec) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"%dx%d|q%d|overlay=%t|%s|%s",
		s.Width, s.Height, s.Quality, s.Overlay, s.Title, s.Copyright,
	)))
	return hex.EncodeToString(sum[:16])
}
