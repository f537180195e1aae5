package context

import (
	"sort"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

// PrioritizeEntry is one file queued for bootstrap indexing.
type PrioritizeEntry struct {
	RelativePath  string
	SizeBytes     int64
	OriginalIndex int
}

// sizeBucketBoundaries partitions files by size so small files (quick
// to chunk and embed) sort ahead of large ones within the same
// priority tier, keeping early bootstrap progress visible.
var sizeBucketBoundaries = []int64{4 * 1024, 32 * 1024, 256 * 1024}

func sizeBucket(sizeBytes int64) int {
	for i, boundary := range sizeBucketBoundaries {
		if sizeBytes <= boundary {
			return i
		}
	}
	return len(sizeBucketBoundaries)
}

// priorityBucket ranks file kinds: code first, then docs, then config.
// Since ClassifyKind files every unrecognised extension as code, such
// files share the code tier; the last bucket is reached only by a kind
// ClassifyKind does not return.
func priorityBucket(relativePath string) int {
	switch ClassifyKind(relativePath) {
	case model.ChunkKindCode:
		return 0
	case model.ChunkKindDoc:
		return 1
	case model.ChunkKindConfig:
		return 2
	default:
		return 3
	}
}

// Prioritize orders entries by (priorityBucket, sizeBucket,
// originalIndex) ascending, so code sorts before docs before config,
// smaller files sort before larger ones within a tier, and ties fall
// back to discovery order for determinism.
func Prioritize(entries []PrioritizeEntry) []PrioritizeEntry {
	out := make([]PrioritizeEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityBucket(out[i].RelativePath), priorityBucket(out[j].RelativePath)
		if pi != pj {
			return pi < pj
		}
		si, sj := sizeBucket(out[i].SizeBytes), sizeBucket(out[j].SizeBytes)
		if si != sj {
			return si < sj
		}
		return out[i].OriginalIndex < out[j].OriginalIndex
	})
	return out
}
