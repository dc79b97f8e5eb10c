package store

import (
	"context"
	"database/sql"
	"fmt"

	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/thread"
)

// SessionRecord is a journaled session header.
type SessionRecord struct {
	ID      string
	GroupID string
}

// JournaledTurn is one journaled thread entry.
type JournaledTurn struct {
	TurnID  int
	Kind    string
	Payload []byte
}

// CreateSession journals a new session header.
func (s *Store) CreateSession(ctx context.Context, id, groupID string) error {
	d := s.Dialect
	q := fmt.Sprintf("INSERT INTO _sessions (id, group_id) VALUES (%s, %s)",
		d.Placeholder(1), d.Placeholder(2))
	if _, err := s.DB.ExecContext(ctx, q, id, groupID); err != nil {
		return fmt.Errorf("journal session %s: %w", id, err)
	}
	return nil
}

// SetSessionGroup updates a session's active group.
func (s *Store) SetSessionGroup(ctx context.Context, id, groupID string) error {
	d := s.Dialect
	q := fmt.Sprintf("UPDATE _sessions SET group_id = %s, updated_at = %s WHERE id = %s",
		d.Placeholder(1), d.NowExpr(), d.Placeholder(2))
	if _, err := s.DB.ExecContext(ctx, q, groupID, id); err != nil {
		return fmt.Errorf("update session %s group: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session and, via cascade, its turns and datapoints.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	d := s.Dialect
	q := fmt.Sprintf("DELETE FROM _sessions WHERE id = %s", d.Placeholder(1))
	if _, err := s.DB.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// GetSession fetches a journaled session header.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	d := s.Dialect
	q := fmt.Sprintf("SELECT id, group_id FROM _sessions WHERE id = %s", d.Placeholder(1))
	var rec SessionRecord
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.GroupID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &rec, nil
}

// AppendTurn journals one thread entry.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, e thread.Entry) error {
	kind, payload, err := thread.EncodeTurn(e.Turn)
	if err != nil {
		return err
	}
	d := s.Dialect
	q := fmt.Sprintf("INSERT INTO _turns (session_id, turn_id, kind, payload) VALUES (%s, %s, %s, %s)",
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
	if _, err := s.DB.ExecContext(ctx, q, sessionID, e.ID, kind, string(payload)); err != nil {
		return fmt.Errorf("journal turn %d: %w", e.ID, err)
	}
	return nil
}

// LoadTurns returns a session's journaled turns in id order.
func (s *Store) LoadTurns(ctx context.Context, sessionID string) ([]thread.Entry, error) {
	d := s.Dialect
	q := fmt.Sprintf("SELECT turn_id, kind, payload FROM _turns WHERE session_id = %s ORDER BY turn_id",
		d.Placeholder(1))
	rows, err := s.DB.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var entries []thread.Entry
	for rows.Next() {
		var (
			id      int
			kind    string
			payload []byte
		)
		if err := rows.Scan(&id, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn, err := thread.DecodeTurn(kind, payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, thread.Entry{ID: id, Turn: turn})
	}
	return entries, rows.Err()
}

// ReplaceDatapoints journals the session's full schema-model cache. The cache
// is small; replacing it wholesale keeps the journal merge-free.
func (s *Store) ReplaceDatapoints(ctx context.Context, sessionID string, defs []schema.Definition) error {
	d := s.Dialect
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin datapoint journal: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM _datapoints WHERE session_id = %s", d.Placeholder(1))
	if _, err := tx.ExecContext(ctx, del, sessionID); err != nil {
		return fmt.Errorf("clear datapoint journal: %w", err)
	}
	ins := fmt.Sprintf("INSERT INTO _datapoints (session_id, position, name, type, vals) VALUES (%s, %s, %s, %s, %s)",
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))
	for i, def := range defs {
		if _, err := tx.ExecContext(ctx, ins, sessionID, i, def.Name, string(def.Kind), d.ArrayParam(def.Values)); err != nil {
			return fmt.Errorf("journal datapoint %s: %w", def.Name, err)
		}
	}
	return tx.Commit()
}

// LoadDatapoints returns the journaled schema cache in declaration order.
func (s *Store) LoadDatapoints(ctx context.Context, sessionID string) ([]schema.Definition, error) {
	d := s.Dialect
	q := fmt.Sprintf("SELECT name, type, vals FROM _datapoints WHERE session_id = %s ORDER BY position",
		d.Placeholder(1))
	rows, err := s.DB.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load datapoints for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var defs []schema.Definition
	for rows.Next() {
		var (
			def  schema.Definition
			kind string
			vals any
		)
		if err := rows.Scan(&def.Name, &kind, &vals); err != nil {
			return nil, fmt.Errorf("scan datapoint: %w", err)
		}
		def.Kind = schema.Kind(kind)
		if def.Values, err = d.ScanArray(vals); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
