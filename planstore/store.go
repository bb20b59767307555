package planstore

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

// New creates a new plan store instance
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

const planColumns = `id, client_id, plan_type, objective, status, scheduled_month,
	depends_on_plan_id, blocking, reassess_after, source_decision_id, branch_reason,
	created_at, updated_at`

// Plans are always listed by scheduled month ascending with unscheduled plans
// last, then by creation order, ties broken by id for determinism.
const planOrder = `ORDER BY COALESCE(scheduled_month, 2147483647) ASC, created_at ASC, id ASC`

func scanPlan(scan func(dest ...any) error) (*Plan, error) {
	var p Plan
	err := scan(
		&p.ID, &p.ClientID, &p.PlanType, &p.Objective, &p.Status, &p.ScheduledMonth,
		&p.DependsOnPlanID, &p.Blocking, &p.ReassessAfter, &p.SourceDecisionID, &p.BranchReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (s *store) CreatePlan(ctx context.Context, plan *Plan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO plans
		(id, client_id, plan_type, objective, status, scheduled_month, depends_on_plan_id,
		 blocking, reassess_after, source_decision_id, branch_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		plan.ID, plan.ClientID, plan.PlanType, plan.Objective, plan.Status, plan.ScheduledMonth,
		plan.DependsOnPlanID, plan.Blocking, plan.ReassessAfter, plan.SourceDecisionID,
		plan.BranchReason, plan.CreatedAt, plan.UpdatedAt,
	)
	return err
}

func (s *store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	plan, err := scanPlan(s.Exec.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans WHERE id = $1`, id,
	).Scan)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return plan, err
}

func (s *store) UpdatePlanStatus(ctx context.Context, id string, from, to PlanStatus) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE plans SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) SetPlanReassessAfter(ctx context.Context, id string, reassessAfter *time.Time) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE plans SET reassess_after = $2, updated_at = $3 WHERE id = $1`,
		id, reassessAfter, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set reassess after: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) SetPlanScheduledMonth(ctx context.Context, id string, month *int) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE plans SET scheduled_month = $2, updated_at = $3 WHERE id = $1`,
		id, month, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set scheduled month: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeletePlan(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM plans WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ListClientPlans(ctx context.Context, clientID string) ([]*Plan, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans WHERE client_id = $1 `+planOrder,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	return collectPlans(rows)
}

func (s *store) ListPlansByStatus(ctx context.Context, clientID string, status PlanStatus) ([]*Plan, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans WHERE client_id = $1 AND status = $2 `+planOrder,
		clientID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans by status: %w", err)
	}
	return collectPlans(rows)
}

func (s *store) ListPlansByMonth(ctx context.Context, clientID string, month int) ([]*Plan, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans WHERE client_id = $1 AND scheduled_month = $2 `+planOrder,
		clientID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans by month: %w", err)
	}
	return collectPlans(rows)
}

func (s *store) ListPlansDueForReassessment(ctx context.Context, clientID string, cutoff time.Time) ([]*Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans WHERE status = $1 AND reassess_after IS NOT NULL AND reassess_after <= $2`
	args := []any{PlanCompleted, cutoff}
	if clientID != "" {
		query += ` AND client_id = $3`
		args = append(args, clientID)
	}
	query += ` ORDER BY reassess_after ASC, id ASC`

	rows, err := s.Exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans due for reassessment: %w", err)
	}
	return collectPlans(rows)
}

func collectPlans(rows *sql.Rows) ([]*Plan, error) {
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if plans == nil {
		return []*Plan{}, nil
	}
	return plans, nil
}

// Task methods

const taskColumns = `id, plan_id, task_number, status, tool, output, error_message, created_at, updated_at`

func scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	err := scan(
		&t.ID, &t.PlanID, &t.TaskNumber, &t.Status, &t.Tool, &t.Output, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return &t, err
}

func (s *store) CreateTask(ctx context.Context, task *Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO tasks
		(id, plan_id, task_number, status, tool, output, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.PlanID, task.TaskNumber, task.Status, task.Tool,
		task.Output, task.ErrorMessage, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (s *store) GetTask(ctx context.Context, planID string, taskNumber int) (*Task, error) {
	task, err := scanTask(s.Exec.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE plan_id = $1 AND task_number = $2`,
		planID, taskNumber,
	).Scan)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

func (s *store) ListTasks(ctx context.Context, planID string) ([]*Task, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE plan_id = $1
		ORDER BY task_number ASC`,
		planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if tasks == nil {
		return []*Task{}, nil
	}
	return tasks, nil
}

func (s *store) GetNextPendingTask(ctx context.Context, planID string) (*Task, error) {
	task, err := scanTask(s.Exec.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE plan_id = $1 AND status = $2
		ORDER BY task_number ASC
		LIMIT 1`,
		planID, TaskPending,
	).Scan)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

func (s *store) UpdateTaskStatus(ctx context.Context, planID string, taskNumber int, from, to TaskStatus) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE tasks SET status = $4, updated_at = $5
		WHERE plan_id = $1 AND task_number = $2 AND status = $3`,
		planID, taskNumber, from, to, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) SetTaskResult(ctx context.Context, planID string, taskNumber int, to TaskStatus, output, errorMessage *string) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE tasks SET status = $4, output = $5, error_message = $6, updated_at = $7
		WHERE plan_id = $1 AND task_number = $2 AND status = $3`,
		planID, taskNumber, TaskInProgress, to, output, errorMessage, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set task result: %w", err)
	}
	return checkRowsAffected(result)
}

// Checkpoint methods

func (s *store) ReplaceCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	checkpoint.CreatedAt = time.Now().UTC()

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO checkpoints (id, task_id, result, confidence, reasoning, method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO UPDATE SET
		result = EXCLUDED.result, confidence = EXCLUDED.confidence,
		reasoning = EXCLUDED.reasoning, method = EXCLUDED.method, created_at = EXCLUDED.created_at`,
		checkpoint.ID, checkpoint.TaskID, checkpoint.Result, checkpoint.Confidence,
		checkpoint.Reasoning, checkpoint.Method, checkpoint.CreatedAt,
	)
	return err
}

func (s *store) GetCheckpointForTask(ctx context.Context, taskID string) (*Checkpoint, error) {
	var c Checkpoint
	err := s.Exec.QueryRowContext(ctx, `
		SELECT id, task_id, result, confidence, reasoning, method, created_at
		FROM checkpoints WHERE task_id = $1`, taskID,
	).Scan(
		&c.ID, &c.TaskID, &c.Result, &c.Confidence, &c.Reasoning, &c.Method, &c.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
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
