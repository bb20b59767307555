package timelinestore

import (
	"context"
	"time"

	"github.com/smokeyworks/smokey/libdbexec"
)

var ErrNotFound = libdbexec.ErrNotFound

// PhaseStatus tracks a timeline phase. Skipped is terminal and means the
// phase was intentionally bypassed without its plan running.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseCompleted PhaseStatus = "completed"
	PhaseSkipped   PhaseStatus = "skipped"
)

func (s PhaseStatus) Valid() bool {
	switch s {
	case PhasePending, PhaseCompleted, PhaseSkipped:
		return true
	}
	return false
}

// Phase is one dated entry in a client's derived schedule. Phases are
// generated and regenerated by the timeline scheduler only.
type Phase struct {
	ID            string      `json:"id"`
	ClientID      string      `json:"clientId"`
	Name          string      `json:"name"`
	ScheduledDate time.Time   `json:"scheduledDate"`
	Status        PhaseStatus `json:"status"`
	Description   *string     `json:"description,omitempty"`
	PlanID        *string     `json:"planId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type Store interface {
	CreatePhase(ctx context.Context, phase *Phase) error
	GetPhase(ctx context.Context, id string) (*Phase, error)
	ListClientPhases(ctx context.Context, clientID string) ([]*Phase, error)
	// UpdatePhaseStatus is status-guarded; zero rows affected yields
	// ErrNotFound.
	UpdatePhaseStatus(ctx context.Context, id string, from, to PhaseStatus) error
	ReschedulePhase(ctx context.Context, id string, date time.Time) error
	SetPhasePlan(ctx context.Context, id string, planID *string) error
	DeletePhase(ctx context.Context, id string) error
	// DeletePendingPhases removes all non-terminal phases for a client.
	// Used by timeline regeneration; completed and skipped phases survive.
	DeletePendingPhases(ctx context.Context, clientID string) error
}
