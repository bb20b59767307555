package timelinestore

import (
	"context"

	"github.com/smokeyworks/smokey/libdbexec"
)

// InitSchema creates the timeline_phases table.
func InitSchema(ctx context.Context, exec libdbexec.Exec) error {
	_, err := exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS timeline_phases (
		    id TEXT PRIMARY KEY,
		    client_id TEXT NOT NULL,
		    name TEXT NOT NULL,
		    scheduled_date TIMESTAMP WITH TIME ZONE NOT NULL,
		    status TEXT NOT NULL,
		    description TEXT,
		    plan_id TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_timeline_phases_client_id ON timeline_phases(client_id);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_timeline_phases_scheduled_date ON timeline_phases(scheduled_date);
	`)
	return err
}
