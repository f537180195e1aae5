package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ostore "github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// SQLiteStore implements Store against the shared relational store
// (C1), generalized from the teacher's standalone internal/events/store.go
// (which opened its own *sql.DB) to share the one pooled connection and
// schema every other component uses.
type SQLiteStore struct {
	store *ostore.Store
}

// NewSQLiteStore wraps an already-open *ostore.Store. The events table
// itself is created by internal/store's schema init, not here.
func NewSQLiteStore(s *ostore.Store) *SQLiteStore {
	return &SQLiteStore{store: s}
}

func (s *SQLiteStore) Save(event *Event) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	ctx := context.Background()
	q := s.store.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO events (id, type, source, target, priority, payload, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		event.ID, string(event.Type), event.Source, event.Target, event.Priority, string(payloadJSON), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetPending retrieves undelivered events for target. If target is
// "all", only events explicitly targeted to "all" are returned;
// otherwise events for target OR "all" are returned. Nil/empty types
// means every event type.
func (s *SQLiteStore) GetPending(target string, types []Type) ([]*Event, error) {
	var query string
	var args []interface{}

	targetClause := "target = ?"
	if target != "all" {
		targetClause = "(target = ? OR target = 'all')"
	}

	if len(types) == 0 {
		query = fmt.Sprintf(`
			SELECT id, type, source, target, priority, payload, created_at
			FROM events WHERE delivered_at IS NULL AND %s
			ORDER BY priority ASC, created_at ASC`, targetClause)
		args = []interface{}{target}
	} else {
		placeholders := ""
		for i, t := range types {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(t))
		}
		query = fmt.Sprintf(`
			SELECT id, type, source, target, priority, payload, created_at
			FROM events WHERE delivered_at IS NULL AND %s AND type IN (%s)
			ORDER BY priority ASC, created_at ASC`, targetClause, placeholders)
		args = append([]interface{}{target}, args...)
	}

	ctx := context.Background()
	q := s.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var eventType, payloadJSON string
		if err := rows.Scan(&event.ID, &eventType, &event.Source, &event.Target,
			&event.Priority, &payloadJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		event.Type = Type(eventType)
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) MarkDelivered(eventID string) error {
	ctx := context.Background()
	q := s.store.Querier(ctx)
	result, err := q.ExecContext(ctx, `UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now().UTC(), eventID)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// Cleanup deletes delivered events older than olderThan.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	ctx := context.Background()
	q := s.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `DELETE FROM events WHERE delivered_at IS NOT NULL AND created_at < ?`, time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("cleanup delivered events: %w", err)
	}
	return nil
}
