package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// DecisionRepository provides typed CRUD for model.Decision.
type DecisionRepository struct {
	store *store.Store
}

func NewDecisionRepository(s *store.Store) *DecisionRepository {
	return &DecisionRepository{store: s}
}

func (r *DecisionRepository) Create(ctx context.Context, d *model.Decision) error {
	considered, err := json.Marshal(d.Considered)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal considered proposals", err)
	}
	selected, err := json.Marshal(d.Selected)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal selected proposals", err)
	}
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal decision metadata", err)
	}

	q := r.store.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO decisions (id, task_id, considered, selected, winner_proposal_id,
			agreement_rate, rationale, decided_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TaskID, string(considered), string(selected), nullString(d.WinnerProposalID),
		nullFloatPtr(d.AgreementRate), nullString(d.Rationale), d.DecidedAt, string(meta))
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "insert decision", err)
	}
	return nil
}

func (r *DecisionRepository) Get(ctx context.Context, id string) (*model.Decision, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, task_id, considered, selected, winner_proposal_id,
			agreement_rate, rationale, decided_at, metadata
		FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, orcerr.New(orcerr.KindNotFound, "decision not found")
	}
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan decision", err)
	}
	return d, nil
}

func (r *DecisionRepository) ListByTask(ctx context.Context, taskID string) ([]*model.Decision, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, task_id, considered, selected, winner_proposal_id,
			agreement_rate, rationale, decided_at, metadata
		FROM decisions WHERE task_id = ? ORDER BY decided_at`, taskID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list decisions by task", err)
	}
	defer rows.Close()

	var decisions []*model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan decision row", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func scanDecision(row rowScanner) (*model.Decision, error) {
	var d model.Decision
	var consideredJSON, selectedJSON, metaJSON sql.NullString
	var winnerID, rationale sql.NullString
	var agreementRate sql.NullFloat64

	if err := row.Scan(&d.ID, &d.TaskID, &consideredJSON, &selectedJSON, &winnerID,
		&agreementRate, &rationale, &d.DecidedAt, &metaJSON); err != nil {
		return nil, err
	}
	d.WinnerProposalID = winnerID.String
	d.Rationale = rationale.String
	if agreementRate.Valid {
		v := agreementRate.Float64
		d.AgreementRate = &v
	}
	if consideredJSON.Valid && consideredJSON.String != "" {
		_ = json.Unmarshal([]byte(consideredJSON.String), &d.Considered)
	}
	if selectedJSON.Valid && selectedJSON.String != "" {
		_ = json.Unmarshal([]byte(selectedJSON.String), &d.Selected)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
	}
	return &d, nil
}

func nullFloatPtr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
