package clientstore

import (
	"context"
	"time"

	"github.com/smokeyworks/smokey/libdbexec"
)

var ErrNotFound = libdbexec.ErrNotFound

// PlanTier is the contracted service level. It selects the timeline template.
type PlanTier string

const (
	TierStarter PlanTier = "starter"
	TierGrowth  PlanTier = "growth"
	TierScale   PlanTier = "scale"
)

func (t PlanTier) Valid() bool {
	switch t {
	case TierStarter, TierGrowth, TierScale:
		return true
	}
	return false
}

// ClientStatus tracks the contract lifecycle. Contract terms are immutable
// once the client is active.
type ClientStatus string

const (
	ClientPending ClientStatus = "pending"
	ClientActive  ClientStatus = "active"
	ClientClosed  ClientStatus = "closed"
)

// Client is a contracted customer. Owns zero or more plans.
type Client struct {
	ID                   string       `json:"id"`
	URL                  string       `json:"url"`
	ContractStartDate    time.Time    `json:"contractStartDate"`
	ContractLengthMonths int          `json:"contractLengthMonths"`
	PlanTier             PlanTier     `json:"planTier"`
	Status               ClientStatus `json:"status"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	UpdateClientStatus(ctx context.Context, id string, status ClientStatus) error
	DeleteClient(ctx context.Context, id string) error
	ListClients(ctx context.Context) ([]*Client, error)
}
