// Package docid assigns document ids.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

const pathPrefix = "file:"

// New returns a fresh id for an uploaded document.
func New() string {
	return uuid.NewString()
}

// ForPath returns a stable id for a watched file, so a changed file replaces its earlier document.
func ForPath(absolutePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return pathPrefix + hex.EncodeToString(sum[:])
}
