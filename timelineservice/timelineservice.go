// Package timelineservice projects a contract into dated phases and seed
// plans. Regeneration is the re-planning mechanism after scope changes and
// never touches work that already started.
package timelineservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/plantemplates"
	"github.com/smokeyworks/smokey/timelinestore"
)

type Service interface {
	// InstantiateTimeline derives the tier's phase cadence from the contract
	// start date and creates the seed plan for month 1.
	InstantiateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error)
	// RegenerateTimeline replaces pending phases and queued scheduled plans.
	// Plans in active, completed or aborted state are never touched.
	RegenerateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error)
	GetClientTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error)
	ReschedulePhase(ctx context.Context, phaseID string, date time.Time) (*timelinestore.Phase, error)
	SkipPhase(ctx context.Context, phaseID string) (*timelinestore.Phase, error)
}

type service struct {
	dbInstance libdb.DBManager
	planEngine planservice.Service
}

func New(db libdb.DBManager, planEngine planservice.Service) Service {
	return &service{dbInstance: db, planEngine: planEngine}
}

func (s *service) InstantiateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	client, err := clientstore.New(tx).GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	template, ok := plantemplates.Timeline(client.PlanTier)
	if !ok {
		return nil, apiframework.InvalidParameterValue("planTier",
			fmt.Sprintf("unknown plan tier %q", client.PlanTier))
	}

	phases := timelinestore.New(tx)
	existing, err := phases.ListClientPhases(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: timeline already instantiated, use regenerate",
			apiframework.ErrConflict)
	}

	return s.materialize(ctx, client, template, nil, false)
}

func (s *service) RegenerateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	client, err := clientstore.New(tx).GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	template, ok := plantemplates.Timeline(client.PlanTier)
	if !ok {
		return nil, apiframework.InvalidParameterValue("planTier",
			fmt.Sprintf("unknown plan tier %q", client.PlanTier))
	}

	phases := timelinestore.New(tx)
	plans := planstore.New(tx)

	// Queued scheduled plans are recomputed; everything that started, ended
	// or was paused by an operator survives untouched.
	clientPlans, err := plans.ListClientPlans(ctx, clientID)
	if err != nil {
		return nil, err
	}
	monthCovered := map[int]bool{}
	for _, plan := range clientPlans {
		if plan.Status == planstore.PlanQueued && plan.ScheduledMonth != nil {
			if err := plans.DeletePlan(ctx, plan.ID); err != nil {
				return nil, err
			}
			continue
		}
		if plan.ScheduledMonth != nil {
			monthCovered[*plan.ScheduledMonth] = true
		}
	}

	survivors := map[string]bool{}
	current, err := phases.ListClientPhases(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, phase := range current {
		if phase.Status != timelinestore.PhasePending {
			survivors[phase.Name] = true
		}
	}
	if err := phases.DeletePendingPhases(ctx, clientID); err != nil {
		return nil, err
	}

	if _, err := s.materialize(ctx, client, template, func(t plantemplates.PhaseTemplate) bool {
		return survivors[t.Name] || monthCovered[t.MonthOffset+1]
	}, monthCovered[1]); err != nil {
		return nil, err
	}
	return phases.ListClientPhases(ctx, clientID)
}

// materialize creates the pending phases of a template, skipping entries the
// filter rejects, and optionally the month-1 seed plan.
func (s *service) materialize(ctx context.Context, client *clientstore.Client, template []plantemplates.PhaseTemplate, skip func(plantemplates.PhaseTemplate) bool, seedCovered bool) ([]*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	phases := timelinestore.New(tx)

	var created []*timelinestore.Phase
	for _, entry := range template {
		if entry.MonthOffset >= client.ContractLengthMonths {
			continue
		}
		if skip != nil && skip(entry) {
			continue
		}
		description := entry.Description
		phase := &timelinestore.Phase{
			ID:            uuid.New().String(),
			ClientID:      client.ID,
			Name:          entry.Name,
			ScheduledDate: client.ContractStartDate.AddDate(0, entry.MonthOffset, 0),
			Status:        timelinestore.PhasePending,
			Description:   &description,
		}
		if err := phases.CreatePhase(ctx, phase); err != nil {
			return nil, fmt.Errorf("failed to create phase %s: %w", entry.Name, err)
		}
		created = append(created, phase)

		if entry.MonthOffset == 0 && !seedCovered {
			month := 1
			plan, err := s.planEngine.CreatePlan(ctx, planservice.CreatePlanRequest{
				ClientID:       client.ID,
				PlanType:       entry.PlanType,
				ScheduledMonth: &month,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create seed plan: %w", err)
			}
			if err := phases.SetPhasePlan(ctx, phase.ID, &plan.ID); err != nil {
				return nil, err
			}
			phase.PlanID = &plan.ID
		}
	}
	if created == nil {
		created = []*timelinestore.Phase{}
	}
	return created, nil
}

func (s *service) GetClientTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	return timelinestore.New(tx).ListClientPhases(ctx, clientID)
}

func (s *service) ReschedulePhase(ctx context.Context, phaseID string, date time.Time) (*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	phases := timelinestore.New(tx)

	phase, err := phases.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	if phase.Status != timelinestore.PhasePending {
		return nil, fmt.Errorf("%w: cannot reschedule a %s phase",
			apiframework.ErrInvalidState, phase.Status)
	}
	if err := phases.ReschedulePhase(ctx, phaseID, date); err != nil {
		if errors.Is(err, timelinestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: phase %s changed underneath this request",
				apiframework.ErrConcurrentModification, phaseID)
		}
		return nil, err
	}
	phase.ScheduledDate = date
	return phase, nil
}

func (s *service) SkipPhase(ctx context.Context, phaseID string) (*timelinestore.Phase, error) {
	tx := s.dbInstance.WithoutTransaction()
	phases := timelinestore.New(tx)

	phase, err := phases.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	// Skipping twice is a no-op, so external callers can retry safely.
	if phase.Status == timelinestore.PhaseSkipped {
		return phase, nil
	}
	if phase.Status != timelinestore.PhasePending {
		return nil, fmt.Errorf("%w: cannot skip a %s phase",
			apiframework.ErrInvalidState, phase.Status)
	}
	if err := phases.UpdatePhaseStatus(ctx, phaseID, timelinestore.PhasePending, timelinestore.PhaseSkipped); err != nil {
		if errors.Is(err, timelinestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: phase %s changed underneath this request",
				apiframework.ErrConcurrentModification, phaseID)
		}
		return nil, err
	}
	phase.Status = timelinestore.PhaseSkipped
	return phase, nil
}
