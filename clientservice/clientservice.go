// Package clientservice manages contracted customers. Contract terms are
// immutable once a client is active; changes require a new contract.
package clientservice

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	libdb "github.com/smokeyworks/smokey/libdbexec"
)

// CreateClientRequest carries the contract terms at signature time.
type CreateClientRequest struct {
	URL                  string              `json:"url"`
	ContractStartDate    time.Time           `json:"contractStartDate"`
	ContractLengthMonths int                 `json:"contractLengthMonths"`
	PlanTier             clientstore.PlanTier `json:"planTier"`
}

type Service interface {
	CreateClient(ctx context.Context, req CreateClientRequest) (*clientstore.Client, error)
	GetClient(ctx context.Context, clientID string) (*clientstore.Client, error)
	// UpdateClient rejects contract-term changes on an active client.
	UpdateClient(ctx context.Context, client *clientstore.Client) (*clientstore.Client, error)
	ActivateClient(ctx context.Context, clientID string) (*clientstore.Client, error)
	CloseClient(ctx context.Context, clientID string) (*clientstore.Client, error)
	DeleteClient(ctx context.Context, clientID string) error
	ListClients(ctx context.Context) ([]*clientstore.Client, error)
}

type service struct {
	dbInstance libdb.DBManager
}

func New(db libdb.DBManager) Service {
	return &service{dbInstance: db}
}

func validateContract(rawURL string, lengthMonths int, tier clientstore.PlanTier) error {
	if rawURL == "" {
		return apiframework.MissingParameter("url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return apiframework.InvalidParameterValue("url", "url must be absolute")
	}
	if lengthMonths < 1 || lengthMonths > 60 {
		return apiframework.InvalidParameterValue("contractLengthMonths",
			"contract length must be within 1..60 months")
	}
	if !tier.Valid() {
		return apiframework.InvalidParameterValue("planTier",
			fmt.Sprintf("unknown plan tier %q", tier))
	}
	return nil
}

func (s *service) CreateClient(ctx context.Context, req CreateClientRequest) (*clientstore.Client, error) {
	if err := validateContract(req.URL, req.ContractLengthMonths, req.PlanTier); err != nil {
		return nil, err
	}
	if req.ContractStartDate.IsZero() {
		return nil, apiframework.MissingParameter("contractStartDate")
	}

	client := &clientstore.Client{
		ID:                   uuid.New().String(),
		URL:                  req.URL,
		ContractStartDate:    req.ContractStartDate.UTC(),
		ContractLengthMonths: req.ContractLengthMonths,
		PlanTier:             req.PlanTier,
		Status:               clientstore.ClientPending,
	}
	tx := s.dbInstance.WithoutTransaction()
	if err := clientstore.New(tx).CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *service) GetClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	tx := s.dbInstance.WithoutTransaction()
	return clientstore.New(tx).GetClient(ctx, clientID)
}

func (s *service) UpdateClient(ctx context.Context, client *clientstore.Client) (*clientstore.Client, error) {
	if err := validateContract(client.URL, client.ContractLengthMonths, client.PlanTier); err != nil {
		return nil, err
	}
	tx := s.dbInstance.WithoutTransaction()
	clients := clientstore.New(tx)

	current, err := clients.GetClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == clientstore.ClientActive {
		changed := !current.ContractStartDate.Equal(client.ContractStartDate) ||
			current.ContractLengthMonths != client.ContractLengthMonths ||
			current.PlanTier != client.PlanTier
		if changed {
			return nil, fmt.Errorf("%w: contract terms require a new contract",
				apiframework.ErrImmutableContract)
		}
	}
	client.Status = current.Status
	client.CreatedAt = current.CreatedAt
	if err := clients.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *service) setStatus(ctx context.Context, clientID string, from, to clientstore.ClientStatus) (*clientstore.Client, error) {
	tx := s.dbInstance.WithoutTransaction()
	clients := clientstore.New(tx)

	client, err := clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.Status != from {
		return nil, fmt.Errorf("%w: cannot move client from %s to %s",
			apiframework.ErrInvalidState, client.Status, to)
	}
	if err := clients.UpdateClientStatus(ctx, clientID, to); err != nil {
		return nil, err
	}
	client.Status = to
	return client, nil
}

func (s *service) ActivateClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	return s.setStatus(ctx, clientID, clientstore.ClientPending, clientstore.ClientActive)
}

func (s *service) CloseClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	return s.setStatus(ctx, clientID, clientstore.ClientActive, clientstore.ClientClosed)
}

func (s *service) DeleteClient(ctx context.Context, clientID string) error {
	tx := s.dbInstance.WithoutTransaction()
	clients := clientstore.New(tx)

	client, err := clients.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Status == clientstore.ClientActive {
		return fmt.Errorf("%w: close the contract before deleting the client",
			apiframework.ErrInvalidState)
	}
	return clients.DeleteClient(ctx, clientID)
}

func (s *service) ListClients(ctx context.Context) ([]*clientstore.Client, error) {
	tx := s.dbInstance.WithoutTransaction()
	return clientstore.New(tx).ListClients(ctx)
}
