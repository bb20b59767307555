package timelinestore

import (
	"context"
	"database/sql"
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

// New creates a new timeline store instance
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

const phaseColumns = `id, client_id, name, scheduled_date, status, description, plan_id, created_at, updated_at`

func scanPhase(scan func(dest ...any) error) (*Phase, error) {
	var p Phase
	err := scan(
		&p.ID, &p.ClientID, &p.Name, &p.ScheduledDate, &p.Status, &p.Description,
		&p.PlanID, &p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (s *store) CreatePhase(ctx context.Context, phase *Phase) error {
	now := time.Now().UTC()
	phase.CreatedAt = now
	phase.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO timeline_phases
		(id, client_id, name, scheduled_date, status, description, plan_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		phase.ID, phase.ClientID, phase.Name, phase.ScheduledDate, phase.Status,
		phase.Description, phase.PlanID, phase.CreatedAt, phase.UpdatedAt,
	)
	return err
}

func (s *store) GetPhase(ctx context.Context, id string) (*Phase, error) {
	phase, err := scanPhase(s.Exec.QueryRowContext(ctx, `
		SELECT `+phaseColumns+`
		FROM timeline_phases WHERE id = $1`, id,
	).Scan)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return phase, err
}

func (s *store) ListClientPhases(ctx context.Context, clientID string) ([]*Phase, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+phaseColumns+`
		FROM timeline_phases WHERE client_id = $1
		ORDER BY scheduled_date ASC, id ASC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline phases: %w", err)
	}
	defer rows.Close()

	var phases []*Phase
	for rows.Next() {
		phase, err := scanPhase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline phase: %w", err)
		}
		phases = append(phases, phase)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if phases == nil {
		return []*Phase{}, nil
	}
	return phases, nil
}

func (s *store) UpdatePhaseStatus(ctx context.Context, id string, from, to PhaseStatus) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE timeline_phases SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update phase status: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ReschedulePhase(ctx context.Context, id string, date time.Time) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE timeline_phases SET scheduled_date = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, PhasePending, date, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule phase: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) SetPhasePlan(ctx context.Context, id string, planID *string) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE timeline_phases SET plan_id = $2, updated_at = $3 WHERE id = $1`,
		id, planID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set phase plan: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeletePhase(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM timeline_phases WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete phase: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeletePendingPhases(ctx context.Context, clientID string) error {
	_, err := s.Exec.ExecContext(ctx, `
		DELETE FROM timeline_phases WHERE client_id = $1 AND status = $2`,
		clientID, PhasePending,
	)
	if err != nil {
		return fmt.Errorf("failed to delete pending phases: %w", err)
	}
	return nil
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
