package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smokeyworks/smokey/libdbexec"
)

var _ Store = (*store)(nil)

// store implements Store using libdbexec
type store struct {
	libdbexec.Exec
}

// New creates a new session store instance
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

const sessionColumns = `id, task_id, tool, status, payload, result, created_at, updated_at`

func scanSession(scan func(dest ...any) error) (*Session, error) {
	var s Session
	var payload, result sql.NullString
	err := scan(
		&s.ID, &s.TaskID, &s.Tool, &s.Status, &payload, &result,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if payload.Valid {
		s.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		s.Result = json.RawMessage(result.String)
	}
	return &s, err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *store) CreateSession(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO tool_sessions
		(id, task_id, tool, status, payload, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.TaskID, session.Tool, session.Status,
		nullableJSON(session.Payload), nullableJSON(session.Result),
		session.CreatedAt, session.UpdatedAt,
	)
	return err
}

func (s *store) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := scanSession(s.Exec.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM tool_sessions WHERE id = $1`, id,
	).Scan)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return session, err
}

func (s *store) ListTaskSessions(ctx context.Context, taskID string) ([]*Session, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM tool_sessions WHERE task_id = $1
		ORDER BY created_at ASC, id ASC`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if sessions == nil {
		return []*Session{}, nil
	}
	return sessions, nil
}

func (s *store) UpdateSessionStatus(ctx context.Context, id string, from, to SessionStatus) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE tool_sessions SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) SetSessionResult(ctx context.Context, id string, to SessionStatus, result json.RawMessage) error {
	res, err := s.Exec.ExecContext(ctx, `
		UPDATE tool_sessions SET status = $3, result = $4, updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, SessionLaunched, to, nullableJSON(result), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set session result: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM tool_sessions WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return checkRowsAffected(result)
}

func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
