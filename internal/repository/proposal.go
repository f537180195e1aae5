package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// ProposalRepository provides typed CRUD for model.Proposal.
type ProposalRepository struct {
	store *store.Store
}

func NewProposalRepository(s *store.Store) *ProposalRepository {
	return &ProposalRepository{store: s}
}

func (r *ProposalRepository) Create(ctx context.Context, p *model.Proposal) error {
	if err := p.Validate(); err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "create proposal", err)
	}
	content, err := json.Marshal(p.Content)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal proposal content", err)
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal proposal metadata", err)
	}

	q := r.store.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO proposals (id, task_id, agent_id, input_type, content, confidence,
			tokens_in, tokens_out, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, p.AgentID, p.InputType, string(content), p.Confidence,
		p.TokenUsage.In, p.TokenUsage.Out, p.CreatedAt, string(meta))
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "insert proposal", err)
	}
	return nil
}

func (r *ProposalRepository) Get(ctx context.Context, id string) (*model.Proposal, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, task_id, agent_id, input_type, content, confidence,
			tokens_in, tokens_out, created_at, metadata
		FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, orcerr.New(orcerr.KindNotFound, "proposal not found")
	}
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan proposal", err)
	}
	return p, nil
}

func (r *ProposalRepository) ListByTask(ctx context.Context, taskID string) ([]*model.Proposal, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, task_id, agent_id, input_type, content, confidence,
			tokens_in, tokens_out, created_at, metadata
		FROM proposals WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list proposals by task", err)
	}
	defer rows.Close()

	var proposals []*model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan proposal row", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

func scanProposal(row rowScanner) (*model.Proposal, error) {
	var p model.Proposal
	var contentJSON, metaJSON sql.NullString

	if err := row.Scan(&p.ID, &p.TaskID, &p.AgentID, &p.InputType, &contentJSON, &p.Confidence,
		&p.TokenUsage.In, &p.TokenUsage.Out, &p.CreatedAt, &metaJSON); err != nil {
		return nil, err
	}
	if contentJSON.Valid && contentJSON.String != "" {
		_ = json.Unmarshal([]byte(contentJSON.String), &p.Content)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &p.Metadata)
	}
	return &p, nil
}
