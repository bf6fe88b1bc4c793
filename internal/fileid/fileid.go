// Package fileid provides deterministic document IDs for watched files and uploads.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	prefix        = "file:"
	contentPrefix = "doc:"
	// contentIDLen is the number of hex digits kept from the content hash.
	contentIDLen = 16
)

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID, so re-ingesting a changed file replaces its chunks.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ContentDocID returns a stable document ID for uploaded bytes.
// Uploading identical content twice yields the same ID.
func ContentDocID(content []byte) string {
	hash := sha256.Sum256(content)
	return contentPrefix + hex.EncodeToString(hash[:])[:contentIDLen]
}
