// Package context implements C10: content-hash-based change detection,
// chunking, embedding upsert, and file prioritization for the context
// indexer. It is grounded on the teacher's internal/memory/repo.go
// DiscoverRepo/hashCLAUDEmd content-hash-and-flag-rescan pattern.
package context

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

// ChangeKind classifies a file relative to the last indexed state.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeDeleted   ChangeKind = "deleted"
)

// Change is one file's detected delta against the indexed FileState.
type Change struct {
	RelativePath string
	Kind         ChangeKind
	ContentHash  string
	SizeBytes    int64
}

// HashFile computes the content hash the same way the teacher's
// hashCLAUDEmd hashed CLAUDE.md contents: a plain SHA-256 over the raw
// bytes, hex-encoded.
func HashFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), int64(len(data)), nil
}

// DetectChanges compares the current on-disk file list against the
// store's indexed FileState rows and classifies each path as new,
// modified, unchanged, or deleted.
func DetectChanges(diskPaths []string, hashByPath func(path string) (string, int64, error), indexed map[string]*model.FileState) ([]Change, error) {
	seen := make(map[string]bool, len(diskPaths))
	changes := make([]Change, 0, len(diskPaths))

	for _, path := range diskPaths {
		seen[path] = true
		hash, size, err := hashByPath(path)
		if err != nil {
			return nil, err
		}

		existing, ok := indexed[path]
		switch {
		case !ok:
			changes = append(changes, Change{RelativePath: path, Kind: ChangeNew, ContentHash: hash, SizeBytes: size})
		case existing.IsDeleted:
			changes = append(changes, Change{RelativePath: path, Kind: ChangeNew, ContentHash: hash, SizeBytes: size})
		case existing.ContentHash != hash:
			changes = append(changes, Change{RelativePath: path, Kind: ChangeModified, ContentHash: hash, SizeBytes: size})
		default:
			changes = append(changes, Change{RelativePath: path, Kind: ChangeUnchanged, ContentHash: hash, SizeBytes: size})
		}
	}

	for path, fs := range indexed {
		if !fs.IsDeleted && !seen[path] {
			changes = append(changes, Change{RelativePath: path, Kind: ChangeDeleted, ContentHash: fs.ContentHash, SizeBytes: fs.SizeBytes})
		}
	}

	return changes, nil
}
