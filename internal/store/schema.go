package store

import "context"

// initSchema creates every table and index named in spec §6 if absent.
// It runs once, inside the root transaction Open() wraps it in, and is
// safe to run again against an already-migrated database because every
// statement is guarded with IF NOT EXISTS.
func (s *Store) initSchema(ctx context.Context) error {
	q := s.Querier(ctx)
	for _, stmt := range schemaStatements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		description   TEXT,
		type          TEXT NOT NULL,
		status        TEXT NOT NULL,
		routing       TEXT NOT NULL,
		assignee_ids  TEXT NOT NULL DEFAULT '[]',
		dependencies  TEXT NOT NULL DEFAULT '[]',
		complexity    INTEGER NOT NULL,
		risk          INTEGER NOT NULL,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME,
		due_at        DATETIME,
		metadata      TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_routing ON tasks(routing)`,

	`CREATE TABLE IF NOT EXISTS task_transitions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL REFERENCES tasks(id),
		from_status TEXT NOT NULL,
		to_status   TEXT NOT NULL,
		at          DATETIME NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_transitions_task ON task_transitions(task_id, id)`,

	`CREATE TABLE IF NOT EXISTS proposals (
		id          TEXT PRIMARY KEY,
		task_id     TEXT NOT NULL REFERENCES tasks(id),
		agent_id    TEXT NOT NULL,
		input_type  TEXT NOT NULL,
		content     TEXT NOT NULL,
		confidence  REAL NOT NULL,
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_task ON proposals(task_id)`,

	`CREATE TABLE IF NOT EXISTS decisions (
		id                 TEXT PRIMARY KEY,
		task_id            TEXT NOT NULL REFERENCES tasks(id),
		considered         TEXT NOT NULL DEFAULT '[]',
		selected           TEXT NOT NULL DEFAULT '[]',
		winner_proposal_id TEXT,
		agreement_rate     REAL,
		rationale          TEXT,
		decided_at         DATETIME NOT NULL,
		metadata           TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_task ON decisions(task_id)`,

	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL REFERENCES tasks(id),
		agent_id   TEXT,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_messages_task ON conversation_messages(task_id, id)`,

	`CREATE TABLE IF NOT EXISTS metrics_timeseries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		metric     TEXT NOT NULL,
		value      REAL NOT NULL,
		labels     TEXT NOT NULL DEFAULT '{}',
		recorded_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_timeseries_metric ON metrics_timeseries(metric, recorded_at)`,

	`CREATE TABLE IF NOT EXISTS context_snapshots (
		id         TEXT PRIMARY KEY,
		task_id    TEXT NOT NULL REFERENCES tasks(id),
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_context_snapshots_task ON context_snapshots(task_id)`,

	`CREATE TABLE IF NOT EXISTS file_state (
		file_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		relative_path    TEXT NOT NULL UNIQUE,
		content_hash     TEXT NOT NULL,
		size_bytes       INTEGER NOT NULL,
		modified_time_ns INTEGER NOT NULL,
		language         TEXT,
		kind             TEXT,
		fingerprint      TEXT,
		indexed_at       DATETIME NOT NULL,
		is_deleted       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_state_deleted ON file_state(is_deleted)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		chunk_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id        INTEGER NOT NULL REFERENCES file_state(file_id),
		ordinal        INTEGER NOT NULL,
		kind           TEXT NOT NULL,
		start_line     INTEGER,
		end_line       INTEGER,
		token_estimate INTEGER NOT NULL DEFAULT 0,
		content        TEXT NOT NULL,
		summary        TEXT,
		created_at     DATETIME NOT NULL,
		UNIQUE(file_id, ordinal)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id)`,

	`CREATE TABLE IF NOT EXISTS embeddings (
		embedding_id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id     INTEGER NOT NULL REFERENCES chunks(chunk_id),
		model        TEXT NOT NULL,
		dimensions   INTEGER NOT NULL,
		vector       BLOB NOT NULL,
		created_at   DATETIME NOT NULL,
		UNIQUE(chunk_id, model)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings(chunk_id)`,

	`CREATE TABLE IF NOT EXISTS links (
		link_id         INTEGER PRIMARY KEY AUTOINCREMENT,
		source_chunk_id INTEGER NOT NULL REFERENCES chunks(chunk_id),
		target_file_id  INTEGER NOT NULL REFERENCES file_state(file_id),
		target_chunk_id INTEGER,
		type            TEXT NOT NULL,
		label           TEXT,
		score           REAL NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_chunk_id)`,
	`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_file_id)`,

	`CREATE TABLE IF NOT EXISTS usage_metrics (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT REFERENCES tasks(id),
		agent_id    TEXT,
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_metrics_task ON usage_metrics(task_id)`,

	`CREATE TABLE IF NOT EXISTS bootstrap_progress (
		path        TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		last_error  TEXT,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bootstrap_progress_status ON bootstrap_progress(status)`,

	`CREATE TABLE IF NOT EXISTS bootstrap_errors (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		path       TEXT NOT NULL,
		message    TEXT NOT NULL,
		occurred_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bootstrap_errors_path ON bootstrap_errors(path)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,

	`CREATE TABLE IF NOT EXISTS events (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		source       TEXT NOT NULL,
		target       TEXT NOT NULL,
		priority     INTEGER NOT NULL,
		payload      TEXT NOT NULL,
		created_at   DATETIME NOT NULL,
		delivered_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_target ON events(target, delivered_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,

	`CREATE TABLE IF NOT EXISTS project_config (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}
