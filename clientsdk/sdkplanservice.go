package clientsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
)

// HTTPPlanService implements the planservice.Service interface
// using HTTP calls to the API
type HTTPPlanService struct {
	httpService
}

// NewHTTPPlanService creates a new HTTP client that implements planservice.Service
func NewHTTPPlanService(baseURL, token string, client *http.Client) planservice.Service {
	return &HTTPPlanService{newHTTPService(baseURL, token, client)}
}

// planAction mirrors the dispatch body of POST /plans/{id}.
type planAction struct {
	Action      string `json:"action"`
	TaskNumber  int    `json:"taskNumber,omitempty"`
	Result      string `json:"result,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	NewPlanType string `json:"newPlanType,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *HTTPPlanService) CreatePlan(ctx context.Context, req planservice.CreatePlanRequest) (*planstore.Plan, error) {
	var plan planstore.Plan
	if err := s.doJSON(ctx, "POST", "/plans", req, http.StatusCreated, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *HTTPPlanService) GetPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	var plan planstore.Plan
	if err := s.doJSON(ctx, "GET", "/plans/"+url.PathEscape(planID), nil, http.StatusOK, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *HTTPPlanService) GetNextTask(ctx context.Context, planID string) (*planstore.Task, error) {
	// The server answers null once the plan is exhausted; task stays nil.
	var task *planstore.Task
	if err := s.doJSON(ctx, "GET", "/plans/"+url.PathEscape(planID)+"?action=next-task", nil, http.StatusOK, &task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *HTTPPlanService) ListTasks(ctx context.Context, planID string) ([]*planstore.Task, error) {
	tasks := []*planstore.Task{}
	if err := s.doJSON(ctx, "GET", "/plans/"+url.PathEscape(planID)+"/tasks", nil, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *HTTPPlanService) transition(ctx context.Context, planID, action string) (*planstore.Plan, error) {
	var plan planstore.Plan
	if err := s.doJSON(ctx, "POST", "/plans/"+url.PathEscape(planID), planAction{Action: action}, http.StatusOK, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *HTTPPlanService) PausePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, "pause")
}

func (s *HTTPPlanService) ResumePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, "resume")
}

func (s *HTTPPlanService) AbortPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, "abort")
}

func (s *HTTPPlanService) ActivatePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, "activate")
}

func (s *HTTPPlanService) CompletePlanIfExhausted(ctx context.Context, planID string) (*planstore.Plan, error) {
	return s.transition(ctx, planID, "complete-if-exhausted")
}

func (s *HTTPPlanService) BranchPlan(ctx context.Context, planID, newPlanType, reason string) (*planstore.Plan, error) {
	var branch planstore.Plan
	body := planAction{Action: "branch", NewPlanType: newPlanType, Reason: reason}
	if err := s.doJSON(ctx, "POST", "/plans/"+url.PathEscape(planID), body, http.StatusCreated, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *HTTPPlanService) MarkTaskDone(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	var task planstore.Task
	body := planAction{Action: "mark-task-done", TaskNumber: taskNumber}
	if err := s.doJSON(ctx, "POST", "/plans/"+url.PathEscape(planID), body, http.StatusOK, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *HTTPPlanService) listPlans(ctx context.Context, clientID, action string) ([]*planstore.Plan, error) {
	plans := []*planstore.Plan{}
	path := fmt.Sprintf("/plans?clientId=%s&action=%s", url.QueryEscape(clientID), action)
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *HTTPPlanService) GetActivePlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	return s.listPlans(ctx, clientID, "active")
}

func (s *HTTPPlanService) GetQueuedPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	return s.listPlans(ctx, clientID, "queued")
}

func (s *HTTPPlanService) GetClientPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	return s.listPlans(ctx, clientID, "all")
}

func (s *HTTPPlanService) GetPlansByMonth(ctx context.Context, clientID string, month int) ([]*planstore.Plan, error) {
	plans := []*planstore.Plan{}
	path := fmt.Sprintf("/plans?clientId=%s&action=by-month&month=%d", url.QueryEscape(clientID), month)
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *HTTPPlanService) SuggestPlan(ctx context.Context, clientID string) (*planservice.Suggestion, error) {
	var suggestion planservice.Suggestion
	path := fmt.Sprintf("/plans?clientId=%s&action=suggest", url.QueryEscape(clientID))
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &suggestion); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

var _ planservice.Service = (*HTTPPlanService)(nil)
