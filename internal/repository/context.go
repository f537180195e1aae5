package repository

import (
	"context"
	"database/sql"
	"math"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// FileStateRepository provides typed CRUD for model.FileState, keyed by
// the unique relative_path used for change detection (C10).
type FileStateRepository struct {
	store *store.Store
}

func NewFileStateRepository(s *store.Store) *FileStateRepository {
	return &FileStateRepository{store: s}
}

// Upsert inserts or replaces the file's row by relative_path, following
// the ON CONFLICT DO UPDATE pattern the teacher uses in
// internal/memory/repo.go for repo-scan bookkeeping.
func (r *FileStateRepository) Upsert(ctx context.Context, f *model.FileState) (int64, error) {
	q := r.store.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		INSERT INTO file_state (relative_path, content_hash, size_bytes, modified_time_ns,
			language, kind, fingerprint, indexed_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(relative_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			modified_time_ns = excluded.modified_time_ns,
			language = excluded.language,
			kind = excluded.kind,
			fingerprint = excluded.fingerprint,
			indexed_at = excluded.indexed_at,
			is_deleted = excluded.is_deleted`,
		f.RelativePath, f.ContentHash, f.SizeBytes, f.ModifiedTimeNs,
		nullString(f.Language), nullString(f.Kind), nullString(f.Fingerprint), f.IndexedAt, f.IsDeleted)
	if err != nil {
		return 0, orcerr.Wrap(orcerr.KindIOTransient, "upsert file state", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	row := q.QueryRowContext(ctx, `SELECT file_id FROM file_state WHERE relative_path = ?`, f.RelativePath)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, orcerr.Wrap(orcerr.KindIOTransient, "resolve file id after upsert", err)
	}
	return id, nil
}

func (r *FileStateRepository) GetByPath(ctx context.Context, relativePath string) (*model.FileState, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT file_id, relative_path, content_hash, size_bytes, modified_time_ns,
			language, kind, fingerprint, indexed_at, is_deleted
		FROM file_state WHERE relative_path = ?`, relativePath)
	f, err := scanFileState(row)
	if err == sql.ErrNoRows {
		return nil, orcerr.New(orcerr.KindNotFound, "file state not found")
	}
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan file state", err)
	}
	return f, nil
}

func (r *FileStateRepository) ListActive(ctx context.Context) ([]*model.FileState, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT file_id, relative_path, content_hash, size_bytes, modified_time_ns,
			language, kind, fingerprint, indexed_at, is_deleted
		FROM file_state WHERE is_deleted = 0 ORDER BY relative_path`)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list active file state", err)
	}
	defer rows.Close()

	var files []*model.FileState
	for rows.Next() {
		f, err := scanFileState(rows)
		if err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan file state row", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *FileStateRepository) MarkDeleted(ctx context.Context, relativePath string) error {
	q := r.store.Querier(ctx)
	res, err := q.ExecContext(ctx, `UPDATE file_state SET is_deleted = 1 WHERE relative_path = ?`, relativePath)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "mark file state deleted", err)
	}
	return requireAffected(res, orcerr.New(orcerr.KindNotFound, "file state not found"))
}

func scanFileState(row rowScanner) (*model.FileState, error) {
	var f model.FileState
	var language, kind, fingerprint sql.NullString
	if err := row.Scan(&f.FileID, &f.RelativePath, &f.ContentHash, &f.SizeBytes, &f.ModifiedTimeNs,
		&language, &kind, &fingerprint, &f.IndexedAt, &f.IsDeleted); err != nil {
		return nil, err
	}
	f.Language = language.String
	f.Kind = kind.String
	f.Fingerprint = fingerprint.String
	return &f, nil
}

// ChunkRepository provides typed CRUD for model.Chunk.
type ChunkRepository struct {
	store *store.Store
}

func NewChunkRepository(s *store.Store) *ChunkRepository {
	return &ChunkRepository{store: s}
}

func (r *ChunkRepository) ReplaceForFile(ctx context.Context, fileID int64, chunks []model.Chunk) error {
	q := r.store.Querier(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "clear existing chunks", err)
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return orcerr.Wrap(orcerr.KindValidation, "chunk invalid", err)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO chunks (file_id, ordinal, kind, start_line, end_line, token_estimate, content, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, c.Ordinal, string(c.Kind), nullIntIfZero(c.StartLine), nullIntIfZero(c.EndLine),
			c.TokenEstimate, c.Content, nullString(c.Summary), c.CreatedAt)
		if err != nil {
			return orcerr.Wrap(orcerr.KindIOTransient, "insert chunk", err)
		}
	}
	return nil
}

func (r *ChunkRepository) ListForFile(ctx context.Context, fileID int64) ([]*model.Chunk, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT chunk_id, file_id, ordinal, kind, start_line, end_line, token_estimate, content, summary, created_at
		FROM chunks WHERE file_id = ? ORDER BY ordinal`, fileID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list chunks for file", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		var kind string
		var startLine, endLine sql.NullInt64
		var summary sql.NullString
		if err := rows.Scan(&c.ChunkID, &c.FileID, &c.Ordinal, &kind, &startLine, &endLine,
			&c.TokenEstimate, &c.Content, &summary, &c.CreatedAt); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan chunk row", err)
		}
		c.Kind = model.ChunkKind(kind)
		c.StartLine = int(startLine.Int64)
		c.EndLine = int(endLine.Int64)
		c.Summary = summary.String
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func nullIntIfZero(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// EmbeddingRepository provides typed CRUD for model.Embedding.
type EmbeddingRepository struct {
	store *store.Store
}

func NewEmbeddingRepository(s *store.Store) *EmbeddingRepository {
	return &EmbeddingRepository{store: s}
}

func (r *EmbeddingRepository) Upsert(ctx context.Context, e *model.Embedding) error {
	if err := e.Validate(); err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "embedding invalid", err)
	}
	q := r.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, model, dimensions, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, model) DO UPDATE SET
			dimensions = excluded.dimensions,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		e.ChunkID, e.Model, e.Dimensions, encodeVector(e.Vector), e.CreatedAt)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "upsert embedding", err)
	}
	return nil
}

func (r *EmbeddingRepository) GetForChunk(ctx context.Context, chunkID int64, model_ string) (*model.Embedding, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT embedding_id, chunk_id, model, dimensions, vector, created_at
		FROM embeddings WHERE chunk_id = ? AND model = ?`, chunkID, model_)
	var e model.Embedding
	var raw []byte
	if err := row.Scan(&e.EmbeddingID, &e.ChunkID, &e.Model, &e.Dimensions, &raw, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, orcerr.New(orcerr.KindNotFound, "embedding not found")
		}
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan embedding", err)
	}
	e.Vector = decodeVector(raw)
	return &e, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
