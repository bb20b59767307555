// Package planservice owns the plan and task state machine. All plan status
// transitions in the system go through this service.
package planservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/plantemplates"
)

// CreatePlanRequest carries the operator input for plan creation.
type CreatePlanRequest struct {
	ClientID         string  `json:"clientId"`
	PlanType         string  `json:"planType"`
	Objective        string  `json:"objective,omitempty"`
	ScheduledMonth   *int    `json:"scheduledMonth,omitempty"`
	DependsOnPlanID  *string `json:"dependsOnPlanId,omitempty"`
	Blocking         bool    `json:"blocking,omitempty"`
	SourceDecisionID *string `json:"decisionId,omitempty"`
}

// Suggestion is the output of SuggestPlan. It never creates state.
type Suggestion struct {
	ClientID string `json:"clientId"`
	PlanType string `json:"planType,omitempty"`
	Reason   string `json:"reason"`
}

type Service interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*planstore.Plan, error)
	GetPlan(ctx context.Context, planID string) (*planstore.Plan, error)
	// GetNextTask returns the lowest-numbered pending task, or nil when the
	// plan is exhausted. Read-only.
	GetNextTask(ctx context.Context, planID string) (*planstore.Task, error)
	ListTasks(ctx context.Context, planID string) ([]*planstore.Task, error)
	PausePlan(ctx context.Context, planID string) (*planstore.Plan, error)
	ResumePlan(ctx context.Context, planID string) (*planstore.Plan, error)
	AbortPlan(ctx context.Context, planID string) (*planstore.Plan, error)
	ActivatePlan(ctx context.Context, planID string) (*planstore.Plan, error)
	BranchPlan(ctx context.Context, planID, newPlanType, reason string) (*planstore.Plan, error)
	MarkTaskDone(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error)
	// CompletePlanIfExhausted transitions an active plan to completed once no
	// pending tasks remain and stamps the reassessment cooldown.
	CompletePlanIfExhausted(ctx context.Context, planID string) (*planstore.Plan, error)
	GetActivePlans(ctx context.Context, clientID string) ([]*planstore.Plan, error)
	GetQueuedPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error)
	GetPlansByMonth(ctx context.Context, clientID string, month int) ([]*planstore.Plan, error)
	GetClientPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error)
	SuggestPlan(ctx context.Context, clientID string) (*Suggestion, error)
}

type service struct {
	dbInstance libdb.DBManager
}

func New(db libdb.DBManager) Service {
	return &service{dbInstance: db}
}

func (s *service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*planstore.Plan, error) {
	if req.ClientID == "" {
		return nil, apiframework.MissingParameter("clientId")
	}
	template, ok := plantemplates.Get(req.PlanType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apiframework.ErrUnknownPlanType, req.PlanType)
	}

	tx, commit, release, err := s.dbInstance.WithTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	client, err := clientstore.New(tx).GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	if req.ScheduledMonth != nil {
		if *req.ScheduledMonth < 1 || *req.ScheduledMonth > client.ContractLengthMonths {
			return nil, apiframework.InvalidParameterValue("scheduledMonth",
				fmt.Sprintf("scheduledMonth must be within 1..%d", client.ContractLengthMonths))
		}
	}

	plans := planstore.New(tx)
	status := planstore.PlanActive
	if req.DependsOnPlanID != nil {
		predecessor, err := plans.GetPlan(ctx, *req.DependsOnPlanID)
		if err != nil {
			return nil, fmt.Errorf("predecessor lookup failed: %w", err)
		}
		if predecessor.ClientID != req.ClientID {
			return nil, apiframework.InvalidParameterValue("dependsOnPlanId",
				"predecessor belongs to a different client")
		}
		if predecessor.Blocking && predecessor.Status != planstore.PlanCompleted {
			status = planstore.PlanQueued
		}
	}
	if req.ScheduledMonth != nil && *req.ScheduledMonth != currentContractMonth(client) {
		status = planstore.PlanQueued
	}

	objective := req.Objective
	if objective == "" {
		objective = template.Objective
	}
	plan := &planstore.Plan{
		ID:               uuid.New().String(),
		ClientID:         req.ClientID,
		PlanType:         req.PlanType,
		Objective:        objective,
		Status:           status,
		ScheduledMonth:   req.ScheduledMonth,
		DependsOnPlanID:  req.DependsOnPlanID,
		Blocking:         req.Blocking,
		SourceDecisionID: req.SourceDecisionID,
	}
	if err := plans.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	// The whole task list is materialized up front, numbered from 1.
	for i, step := range template.Steps {
		task := &planstore.Task{
			ID:         uuid.New().String(),
			PlanID:     plan.ID,
			TaskNumber: i + 1,
			Status:     planstore.TaskPending,
			Tool:       step.Tool,
		}
		if err := plans.CreateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to create task %d: %w", i+1, err)
		}
	}

	if err := commit(ctx); err != nil {
		return nil, err
	}
	return plan, nil
}

// currentContractMonth is 1-based; a contract that started today is in
// month 1.
func currentContractMonth(client *clientstore.Client) int {
	now := time.Now().UTC()
	if now.Before(client.ContractStartDate) {
		return 0
	}
	months := 0
	cursor := client.ContractStartDate
	for cursor.AddDate(0, 1, 0).Before(now) || cursor.AddDate(0, 1, 0).Equal(now) {
		cursor = cursor.AddDate(0, 1, 0)
		months++
	}
	return months + 1
}

func (s *service) GetPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).GetPlan(ctx, planID)
}

func (s *service) GetNextTask(ctx context.Context, planID string) (*planstore.Task, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)
	if _, err := plans.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	task, err := plans.GetNextPendingTask(ctx, planID)
	if errors.Is(err, planstore.ErrNotFound) {
		return nil, nil
	}
	return task, err
}

func (s *service) ListTasks(ctx context.Context, planID string) ([]*planstore.Task, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).ListTasks(ctx, planID)
}

// transition performs a checked status change. The caller observes
// ErrInvalidState for illegal source states and ErrConcurrentModification
// when another writer won the race.
func (s *service) transition(ctx context.Context, planID string, from, to planstore.PlanStatus) (*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != from {
		return nil, fmt.Errorf("%w: cannot move plan from %s to %s",
			apiframework.ErrInvalidState, plan.Status, to)
	}
	if err := plans.UpdatePlanStatus(ctx, planID, from, to); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan %s changed underneath this request",
				apiframework.ErrConcurrentModification, planID)
		}
		return nil, err
	}
	plan.Status = to
	return plan, nil
}

func (s *service) PausePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, planstore.PlanActive, planstore.PlanPaused)
}

func (s *service) ResumePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, planstore.PlanPaused, planstore.PlanActive)
}

func (s *service) AbortPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	switch plan.Status {
	case planstore.PlanQueued, planstore.PlanActive, planstore.PlanPaused:
	default:
		return nil, fmt.Errorf("%w: cannot abort a %s plan",
			apiframework.ErrInvalidState, plan.Status)
	}
	if err := plans.UpdatePlanStatus(ctx, planID, plan.Status, planstore.PlanAborted); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan %s changed underneath this request",
				apiframework.ErrConcurrentModification, planID)
		}
		return nil, err
	}
	plan.Status = planstore.PlanAborted
	return plan, nil
}

func (s *service) ActivatePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != planstore.PlanQueued {
		return nil, fmt.Errorf("%w: cannot activate a %s plan",
			apiframework.ErrInvalidState, plan.Status)
	}
	if plan.DependsOnPlanID != nil {
		predecessor, err := plans.GetPlan(ctx, *plan.DependsOnPlanID)
		if err != nil {
			return nil, fmt.Errorf("predecessor lookup failed: %w", err)
		}
		if predecessor.Blocking && predecessor.Status != planstore.PlanCompleted {
			return nil, fmt.Errorf("%w: blocking predecessor %s is %s",
				apiframework.ErrInvalidState, predecessor.ID, predecessor.Status)
		}
	}
	if err := plans.UpdatePlanStatus(ctx, planID, planstore.PlanQueued, planstore.PlanActive); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan %s changed underneath this request",
				apiframework.ErrConcurrentModification, planID)
		}
		return nil, err
	}
	plan.Status = planstore.PlanActive
	return plan, nil
}

func (s *service) BranchPlan(ctx context.Context, planID, newPlanType, reason string) (*planstore.Plan, error) {
	template, ok := plantemplates.Get(newPlanType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apiframework.ErrUnknownPlanType, newPlanType)
	}

	tx, commit, release, err := s.dbInstance.WithTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	plans := planstore.New(tx)

	original, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	// The original is paused, never aborted, so operators can resume the
	// old path later. A completed original keeps its status.
	if original.Status == planstore.PlanActive {
		if err := plans.UpdatePlanStatus(ctx, planID, planstore.PlanActive, planstore.PlanPaused); err != nil {
			if errors.Is(err, planstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: plan %s changed underneath this request",
					apiframework.ErrConcurrentModification, planID)
			}
			return nil, err
		}
	} else if original.Status != planstore.PlanCompleted && original.Status != planstore.PlanPaused {
		return nil, fmt.Errorf("%w: cannot branch a %s plan",
			apiframework.ErrInvalidState, original.Status)
	}

	branch := &planstore.Plan{
		ID:              uuid.New().String(),
		ClientID:        original.ClientID,
		PlanType:        newPlanType,
		Objective:       template.Objective,
		Status:          planstore.PlanActive,
		DependsOnPlanID: &original.ID,
		BranchReason:    &reason,
	}
	if err := plans.CreatePlan(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to create branch plan: %w", err)
	}
	for i, step := range template.Steps {
		task := &planstore.Task{
			ID:         uuid.New().String(),
			PlanID:     branch.ID,
			TaskNumber: i + 1,
			Status:     planstore.TaskPending,
			Tool:       step.Tool,
		}
		if err := plans.CreateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to create branch task %d: %w", i+1, err)
		}
	}

	if err := commit(ctx); err != nil {
		return nil, err
	}
	return branch, nil
}

func (s *service) MarkTaskDone(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	task, err := plans.GetTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, err
	}
	if task.Status != planstore.TaskPending && task.Status != planstore.TaskInProgress {
		return nil, fmt.Errorf("%w: cannot mark a %s task done",
			apiframework.ErrInvalidState, task.Status)
	}
	if err := plans.UpdateTaskStatus(ctx, planID, taskNumber, task.Status, planstore.TaskDone); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %d changed underneath this request",
				apiframework.ErrConcurrentModification, taskNumber)
		}
		return nil, err
	}
	task.Status = planstore.TaskDone

	if _, err := s.CompletePlanIfExhausted(ctx, planID); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *service) CompletePlanIfExhausted(ctx context.Context, planID string) (*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != planstore.PlanActive {
		return plan, nil
	}
	if _, err := plans.GetNextPendingTask(ctx, planID); err == nil {
		return plan, nil
	} else if !errors.Is(err, planstore.ErrNotFound) {
		return nil, err
	}

	if err := plans.UpdatePlanStatus(ctx, planID, planstore.PlanActive, planstore.PlanCompleted); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan %s changed underneath this request",
				apiframework.ErrConcurrentModification, planID)
		}
		return nil, err
	}
	plan.Status = planstore.PlanCompleted

	if template, ok := plantemplates.Get(plan.PlanType); ok && template.ReassessAfterDays > 0 {
		reassessAfter := time.Now().UTC().AddDate(0, 0, template.ReassessAfterDays)
		if err := plans.SetPlanReassessAfter(ctx, planID, &reassessAfter); err != nil {
			return nil, err
		}
		plan.ReassessAfter = &reassessAfter
	}
	return plan, nil
}

func (s *service) GetActivePlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).ListPlansByStatus(ctx, clientID, planstore.PlanActive)
}

func (s *service) GetQueuedPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).ListPlansByStatus(ctx, clientID, planstore.PlanQueued)
}

func (s *service) GetPlansByMonth(ctx context.Context, clientID string, month int) ([]*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).ListPlansByMonth(ctx, clientID, month)
}

func (s *service) GetClientPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	return planstore.New(tx).ListClientPlans(ctx, clientID)
}

func (s *service) SuggestPlan(ctx context.Context, clientID string) (*Suggestion, error) {
	tx := s.dbInstance.WithoutTransaction()
	if _, err := clientstore.New(tx).GetClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	plans, err := planstore.New(tx).ListClientPlans(ctx, clientID)
	if err != nil {
		return nil, err
	}

	open := map[string]bool{}
	completed := map[string]bool{}
	for _, p := range plans {
		switch p.Status {
		case planstore.PlanQueued, planstore.PlanActive, planstore.PlanPaused:
			open[p.PlanType] = true
		case planstore.PlanCompleted:
			completed[p.PlanType] = true
		}
	}
	for _, planType := range plantemplates.Types() {
		if open[planType] || completed[planType] {
			continue
		}
		return &Suggestion{
			ClientID: clientID,
			PlanType: planType,
			Reason:   fmt.Sprintf("no open or completed %s plan in the current contract period", planType),
		}, nil
	}
	return &Suggestion{
		ClientID: clientID,
		Reason:   "every plan type already has an open or completed plan",
	}, nil
}
