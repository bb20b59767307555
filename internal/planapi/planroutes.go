package planapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	serverops "github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/checkpointservice"
	"github.com/smokeyworks/smokey/execservice"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
)

// AddPlanRoutes registers the plan engine, task executor and checkpoint
// endpoints.
func AddPlanRoutes(mux *http.ServeMux, planService planservice.Service, execService execservice.Service, checkpointService checkpointservice.Service) {
	h := &planHandler{
		plans:       planService,
		executor:    execService,
		checkpoints: checkpointService,
	}

	mux.HandleFunc("GET /plans", h.listPlans)
	mux.HandleFunc("POST /plans", h.createPlan)
	mux.HandleFunc("GET /plans/{id}", h.getPlan)
	mux.HandleFunc("POST /plans/{id}", h.planAction)
	mux.HandleFunc("GET /plans/{id}/tasks", h.listTasks)
	mux.HandleFunc("GET /review-queue", h.listReviewQueue)
}

type planHandler struct {
	plans       planservice.Service
	executor    execservice.Service
	checkpoints checkpointservice.Service
}

// Lists or suggests plans for a client
//
// The action query parameter selects the projection: active, queued, all,
// by-month (with month) or suggest.
func (h *planHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID := serverops.GetQueryParam(r, "clientId", "", "The client whose plans to list.")
	if clientID == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing clientId parameter %w", serverops.ErrBadQueryValue), serverops.ListOperation)
		return
	}
	action := serverops.GetQueryParam(r, "action", "all", "One of active, queued, all, by-month, suggest.")

	switch action {
	case "active":
		plans, err := h.plans.GetActivePlans(ctx, clientID)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, plans) // @response []*planstore.Plan
	case "queued":
		plans, err := h.plans.GetQueuedPlans(ctx, clientID)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, plans) // @response []*planstore.Plan
	case "all":
		plans, err := h.plans.GetClientPlans(ctx, clientID)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, plans) // @response []*planstore.Plan
	case "by-month":
		monthStr := serverops.GetQueryParam(r, "month", "", "The 1-based contract month.")
		month, err := strconv.Atoi(monthStr)
		if err != nil {
			_ = serverops.Error(w, r, fmt.Errorf("%w: month must be an integer", serverops.ErrBadQueryValue), serverops.ListOperation)
			return
		}
		plans, err := h.plans.GetPlansByMonth(ctx, clientID, month)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, plans) // @response []*planstore.Plan
	case "suggest":
		suggestion, err := h.plans.SuggestPlan(ctx, clientID)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, suggestion) // @response planservice.Suggestion
	default:
		_ = serverops.Error(w, r, fmt.Errorf("%w: %s", serverops.ErrUnknownAction, action), serverops.ListOperation)
	}
}

// Creates a new plan
//
// The task list is materialized from the plan type's template.
func (h *planHandler) createPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := serverops.Decode[planservice.CreatePlanRequest](r) // @request planservice.CreatePlanRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	plan, err := h.plans.CreatePlan(ctx, req)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusCreated, plan) // @response planstore.Plan
}

// Retrieves a plan, or its next pending task with action=next-task
//
// next-task returns null once the plan is exhausted.
func (h *planHandler) getPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The plan identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.GetOperation)
		return
	}
	action := serverops.GetQueryParam(r, "action", "", "Optional projection, currently next-task.")

	switch action {
	case "":
		plan, err := h.plans.GetPlan(ctx, id)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.GetOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, plan) // @response planstore.Plan
	case "next-task":
		task, err := h.plans.GetNextTask(ctx, id)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.GetOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, task) // @response planstore.Task
	default:
		_ = serverops.Error(w, r, fmt.Errorf("%w: %s", serverops.ErrUnknownAction, action), serverops.GetOperation)
	}
}

// planActionRequest is the dispatch body for POST /plans/{id}.
type planActionRequest struct {
	Action      string `json:"action"`
	TaskNumber  int    `json:"taskNumber,omitempty"`
	Result      string `json:"result,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	NewPlanType string `json:"newPlanType,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Dispatches an operator action against one plan
//
// Supported actions: execute-task, mark-task-done, pause, resume, activate,
// abort, branch, complete-if-exhausted, checkpoint, checkpoint-with-audit,
// manual-checkpoint.
func (h *planHandler) planAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The plan identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	req, err := serverops.Decode[planActionRequest](r) // @request planapi.planActionRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	switch req.Action {
	case "execute-task":
		task, err := h.executor.ExecuteTask(ctx, id, req.TaskNumber)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ExecuteOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, task) // @response planstore.Task
	case "mark-task-done":
		task, err := h.plans.MarkTaskDone(ctx, id, req.TaskNumber)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, task) // @response planstore.Task
	case "pause":
		respondTransition(w, r, h.plans.PausePlan, id)
	case "resume":
		respondTransition(w, r, h.plans.ResumePlan, id)
	case "activate":
		respondTransition(w, r, h.plans.ActivatePlan, id)
	case "abort":
		respondTransition(w, r, h.plans.AbortPlan, id)
	case "complete-if-exhausted":
		respondTransition(w, r, h.plans.CompletePlanIfExhausted, id)
	case "branch":
		branch, err := h.plans.BranchPlan(ctx, id, req.NewPlanType, req.Reason)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusCreated, branch) // @response planstore.Plan
	case "checkpoint":
		checkpoint, err := h.checkpoints.Evaluate(ctx, id, req.TaskNumber)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ExecuteOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, checkpoint) // @response planstore.Checkpoint
	case "checkpoint-with-audit":
		checkpoint, err := h.checkpoints.EvaluateWithAudit(ctx, id, req.TaskNumber)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.ExecuteOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, checkpoint) // @response planstore.Checkpoint
	case "manual-checkpoint":
		checkpoint, err := h.checkpoints.ManualEvaluate(ctx, id, req.TaskNumber, planstore.CheckpointResult(req.Result), req.Reasoning)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, checkpoint) // @response planstore.Checkpoint
	default:
		_ = serverops.Error(w, r, fmt.Errorf("%w: %s", serverops.ErrUnknownAction, req.Action), serverops.UpdateOperation)
	}
}

func respondTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*planstore.Plan, error), id string) {
	plan, err := fn(r.Context(), id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}
	_ = serverops.Encode(w, r, http.StatusOK, plan) // @response planstore.Plan
}

// Lists the ordered task list of a plan
func (h *planHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The plan identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.ListOperation)
		return
	}

	tasks, err := h.plans.ListTasks(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, tasks) // @response []*planstore.Task
}

// Lists checkpoints waiting for operator review
func (h *planHandler) listReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limitStr := serverops.GetQueryParam(r, "limit", "100", "The maximum number of items to return.")
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		_ = serverops.Error(w, r, fmt.Errorf("%w: invalid limit format, expected integer", serverops.ErrUnprocessableEntity), serverops.ListOperation)
		return
	}

	items, err := h.checkpoints.ListReviewQueue(ctx, limit)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, items) // @response []checkpointservice.ReviewItem
}
