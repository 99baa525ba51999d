// Package fileid derives stable document and node ids, so rebuilding an unchanged corpus
// yields the same ids.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
)

const prefix = "doc:"

// FileDocID returns a stable document ID for the given absolute path.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:12])
}

// PartDocID returns the ID of page or sheet part (1-based) of the file at absolutePath.
func PartDocID(absolutePath string, part int) string {
	return FileDocID(absolutePath) + "#" + strconv.Itoa(part)
}

// NodeID returns the id of the index-th chunk of tier within document docID.
func NodeID(docID string, tier, index int) string {
	hash := sha256.Sum256([]byte(docID + "/" + strconv.Itoa(tier) + "/" + strconv.Itoa(index)))
	return hex.EncodeToString(hash[:16])
}
