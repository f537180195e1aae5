package context

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

// maxChunkLines bounds how many source lines one chunk holds, keeping
// each chunk small enough for a single embedding call.
const maxChunkLines = 80

var docExtensions = map[string]bool{".md": true, ".rst": true, ".txt": true}
var configExtensions = map[string]bool{".yaml": true, ".yml": true, ".json": true, ".toml": true}

// ClassifyKind buckets a file into doc, config or code by extension
// (any extension not listed as doc or config counts as code; it never
// returns ChunkKindComment), the same coarse classification the
// teacher's repo scan used to decide whether a file was worth embedding
// at all.
func ClassifyKind(relativePath string) model.ChunkKind {
	ext := strings.ToLower(filepath.Ext(relativePath))
	switch {
	case docExtensions[ext]:
		return model.ChunkKindDoc
	case configExtensions[ext]:
		return model.ChunkKindConfig
	default:
		return model.ChunkKindCode
	}
}

// ChunkContent splits content into contiguous, line-bounded chunks with
// stable, zero-based ordinals. Each chunk's TokenEstimate is a coarse
// whitespace-word count, good enough for prioritization and consensus
// token accounting without a real tokenizer dependency.
func ChunkContent(relativePath, content string) []model.Chunk {
	kind := ClassifyKind(relativePath)
	lines := strings.Split(content, "\n")

	var chunks []model.Chunk
	now := time.Now().UTC()
	for start := 0; start < len(lines); start += maxChunkLines {
		end := start + maxChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, model.Chunk{
			Ordinal:       len(chunks),
			Kind:          kind,
			StartLine:     start + 1,
			EndLine:       end,
			TokenEstimate: estimateTokens(body),
			Content:       body,
			CreatedAt:     now,
		})
	}
	return chunks
}

func estimateTokens(s string) int {
	return len(strings.Fields(s))
}
