package planstore

import (
	"context"

	"github.com/smokeyworks/smokey/libdbexec"
)

// InitSchema creates the plans, tasks and checkpoints tables.
func InitSchema(ctx context.Context, exec libdbexec.Exec) error {
	_, err := exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS plans (
		    id TEXT PRIMARY KEY,
		    client_id TEXT NOT NULL,
		    plan_type TEXT NOT NULL,
		    objective TEXT NOT NULL,
		    status TEXT NOT NULL,
		    scheduled_month INTEGER,
		    depends_on_plan_id TEXT REFERENCES plans(id),
		    blocking BOOLEAN NOT NULL DEFAULT FALSE,
		    reassess_after TIMESTAMP WITH TIME ZONE,
		    source_decision_id TEXT,
		    branch_reason TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
		    id TEXT PRIMARY KEY,
		    plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
		    task_number INTEGER NOT NULL,
		    status TEXT NOT NULL,
		    tool TEXT NOT NULL,
		    output TEXT,
		    error_message TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    UNIQUE (plan_id, task_number)
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
		    id TEXT PRIMARY KEY,
		    task_id TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
		    result TEXT NOT NULL,
		    confidence DOUBLE PRECISION,
		    reasoning TEXT NOT NULL,
		    method TEXT NOT NULL,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_plans_client_id ON plans(client_id);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_plans_reassess_after ON plans(reassess_after);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_tasks_plan_id ON tasks(plan_id);
	`)
	return err
}
