package sessionstore

import (
	"context"

	"github.com/smokeyworks/smokey/libdbexec"
)

// InitSchema creates the tool_sessions table.
func InitSchema(ctx context.Context, exec libdbexec.Exec) error {
	_, err := exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tool_sessions (
		    id TEXT PRIMARY KEY,
		    task_id TEXT NOT NULL,
		    tool TEXT NOT NULL,
		    status TEXT NOT NULL,
		    payload TEXT,
		    result TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_tool_sessions_task_id ON tool_sessions(task_id);
	`)
	return err
}
