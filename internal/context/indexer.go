package context

import (
	stdctx "context"
	"time"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

// Embedder produces a vector for chunk content. This package ships one
// implementation, HashEmbedder; others (an HTTP client to an embedding
// service, a local model) plug in through this seam, which is all the
// indexer depends on.
type Embedder interface {
	Embed(ctx stdctx.Context, content string) (vector []float32, model string, dims int, err error)
}

// Indexer drives the per-file pipeline: hash, detect change, chunk,
// embed, persist. A failure processing one file is isolated (§7
// indexing_per_file) so a single bad file never aborts the batch.
type Indexer struct {
	files      *repository.FileStateRepository
	chunks     *repository.ChunkRepository
	embeddings *repository.EmbeddingRepository
	embedder   Embedder
	limiter    *rate.Limiter
}

func NewIndexer(files *repository.FileStateRepository, chunks *repository.ChunkRepository, embeddings *repository.EmbeddingRepository, embedder Embedder, limiter *rate.Limiter) *Indexer {
	return &Indexer{files: files, chunks: chunks, embeddings: embeddings, embedder: embedder, limiter: limiter}
}

// IndexFile runs the full pipeline for one changed file. For a
// ChangeDeleted entry it only marks the FileState row deleted and
// leaves existing chunks/embeddings in place for historical lookups.
func (ix *Indexer) IndexFile(ctx stdctx.Context, change Change, content string) error {
	if change.Kind == ChangeDeleted {
		if err := ix.files.MarkDeleted(ctx, change.RelativePath); err != nil {
			return orcerr.Wrap(orcerr.KindIndexingPerFile, "mark file deleted", err).WithTask(change.RelativePath)
		}
		return nil
	}

	if change.Kind == ChangeUnchanged {
		return nil
	}

	fileID, err := ix.files.Upsert(ctx, &model.FileState{
		RelativePath:   change.RelativePath,
		ContentHash:    change.ContentHash,
		SizeBytes:      change.SizeBytes,
		ModifiedTimeNs: time.Now().UnixNano(),
		Kind:           string(ClassifyKind(change.RelativePath)),
		IndexedAt:      time.Now().UTC(),
	})
	if err != nil {
		return orcerr.Wrap(orcerr.KindIndexingPerFile, "upsert file state", err).WithTask(change.RelativePath)
	}

	chunks := ChunkContent(change.RelativePath, content)
	if err := ix.chunks.ReplaceForFile(ctx, fileID, chunks); err != nil {
		return orcerr.Wrap(orcerr.KindIndexingPerFile, "replace chunks", err).WithTask(change.RelativePath)
	}

	stored, err := ix.chunks.ListForFile(ctx, fileID)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIndexingPerFile, "list stored chunks", err).WithTask(change.RelativePath)
	}

	if ix.embedder == nil {
		return nil
	}

	for _, c := range stored {
		if ix.limiter != nil {
			if err := ix.limiter.Wait(ctx); err != nil {
				return orcerr.Wrap(orcerr.KindCancelled, "embedder rate limiter wait cancelled", err).WithTask(change.RelativePath)
			}
		}
		vector, modelName, dims, err := ix.embedder.Embed(ctx, c.Content)
		if err != nil {
			return orcerr.Wrap(orcerr.KindIndexingPerFile, "embed chunk", err).WithTask(change.RelativePath)
		}
		if err := ix.embeddings.Upsert(ctx, &model.Embedding{
			ChunkID:    c.ChunkID,
			Model:      modelName,
			Dimensions: dims,
			Vector:     vector,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return orcerr.Wrap(orcerr.KindIndexingPerFile, "upsert embedding", err).WithTask(change.RelativePath)
		}
	}

	return nil
}
