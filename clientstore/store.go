package clientstore

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

// New creates a new client store instance
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

func (s *store) CreateClient(ctx context.Context, client *Client) error {
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO clients
		(id, url, contract_start_date, contract_length_months, plan_tier, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		client.ID, client.URL, client.ContractStartDate, client.ContractLengthMonths,
		client.PlanTier, client.Status, client.CreatedAt, client.UpdatedAt,
	)
	return err
}

func (s *store) GetClient(ctx context.Context, id string) (*Client, error) {
	var client Client
	err := s.Exec.QueryRowContext(ctx, `
		SELECT id, url, contract_start_date, contract_length_months, plan_tier, status, created_at, updated_at
		FROM clients WHERE id = $1`, id,
	).Scan(
		&client.ID, &client.URL, &client.ContractStartDate, &client.ContractLengthMonths,
		&client.PlanTier, &client.Status, &client.CreatedAt, &client.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &client, err
}

func (s *store) UpdateClient(ctx context.Context, client *Client) error {
	client.UpdatedAt = time.Now().UTC()

	result, err := s.Exec.ExecContext(ctx, `
		UPDATE clients SET
		url = $2, contract_start_date = $3, contract_length_months = $4, plan_tier = $5, status = $6, updated_at = $7
		WHERE id = $1`,
		client.ID, client.URL, client.ContractStartDate, client.ContractLengthMonths,
		client.PlanTier, client.Status, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) UpdateClientStatus(ctx context.Context, id string, status ClientStatus) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE clients SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update client status: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeleteClient(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM clients WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT id, url, contract_start_date, contract_length_months, plan_tier, status, created_at, updated_at
		FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(
			&c.ID, &c.URL, &c.ContractStartDate, &c.ContractLengthMonths,
			&c.PlanTier, &c.Status, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if clients == nil {
		return []*Client{}, nil
	}
	return clients, nil
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
