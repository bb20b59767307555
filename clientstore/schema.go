package clientstore

import (
	"context"

	"github.com/smokeyworks/smokey/libdbexec"
)

// InitSchema creates the clients table.
func InitSchema(ctx context.Context, exec libdbexec.Exec) error {
	_, err := exec.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS clients (
		    id TEXT PRIMARY KEY,
		    url TEXT NOT NULL,
		    contract_start_date TIMESTAMP WITH TIME ZONE NOT NULL,
		    contract_length_months INTEGER NOT NULL,
		    plan_tier TEXT NOT NULL,
		    status TEXT NOT NULL,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_clients_created_at ON clients(created_at);
	`)
	return err
}
