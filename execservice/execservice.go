// Package execservice runs one task through its tool. Tool errors are
// captured on the task record, never propagated as engine failures.
package execservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/ctaflow"
	"github.com/smokeyworks/smokey/libauth"
	"github.com/smokeyworks/smokey/libbus"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/tooling"
)

// SubjectTaskAudit is the bus subject task completion events publish on.
const SubjectTaskAudit = "task_audit"

// DefaultToolTimeout caps a single tool invocation unless configured
// otherwise.
const DefaultToolTimeout = 30 * time.Second

// TaskAuditEvent is the payload published after every execution attempt.
type TaskAuditEvent struct {
	PlanID     string    `json:"planId"`
	TaskNumber int       `json:"taskNumber"`
	Tool       string    `json:"tool"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// TaskPayload is the input handed to a tool. It carries the client context
// and the output of the immediately preceding completed task for continuity.
type TaskPayload struct {
	ClientID       string          `json:"clientId"`
	ClientURL      string          `json:"clientUrl"`
	PlanTier       string          `json:"planTier"`
	PlanID         string          `json:"planId"`
	PlanType       string          `json:"planType"`
	Objective      string          `json:"objective"`
	TaskNumber     int             `json:"taskNumber"`
	PreviousOutput json.RawMessage `json:"previousOutput,omitempty"`
}

type Service interface {
	// ExecuteTask transitions the task pending to in_progress, runs the tool
	// and records the result. Exactly one of two concurrent calls wins; the
	// loser observes ErrConcurrentModification.
	ExecuteTask(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error)
}

type service struct {
	dbInstance  libdb.DBManager
	registry    *tooling.Registry
	resolver    libauth.Resolver
	planEngine  planservice.Service
	bus         libbus.Messenger
	toolTimeout time.Duration
}

func New(db libdb.DBManager, registry *tooling.Registry, resolver libauth.Resolver, planEngine planservice.Service, bus libbus.Messenger, toolTimeout time.Duration) Service {
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}
	return &service{
		dbInstance:  db,
		registry:    registry,
		resolver:    resolver,
		planEngine:  planEngine,
		bus:         bus,
		toolTimeout: toolTimeout,
	}
}

func (s *service) ExecuteTask(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != planstore.PlanActive {
		return nil, fmt.Errorf("%w: cannot execute tasks on a %s plan",
			apiframework.ErrInvalidState, plan.Status)
	}

	task, err := plans.GetTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, err
	}
	if task.Status != planstore.TaskPending {
		return nil, fmt.Errorf("%w: task %d is %s, not pending",
			apiframework.ErrInvalidState, taskNumber, task.Status)
	}

	client, err := clientstore.New(tx).GetClient(ctx, plan.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}

	// Continuity: the previous done task's output feeds the next tool, and
	// its tool is the hand-off source for the CTA check. The first task of a
	// plan has no source and runs unconstrained.
	var previousOutput json.RawMessage
	if taskNumber > 1 {
		previous, err := plans.GetTask(ctx, planID, taskNumber-1)
		if err != nil {
			return nil, fmt.Errorf("previous task lookup failed: %w", err)
		}
		if previous.Status == planstore.TaskDone {
			decision, err := ctaflow.ValidateWithOverride(ctx, s.resolver, previous.Tool, task.Tool)
			if err != nil {
				return nil, err
			}
			if !decision.Allowed {
				return nil, fmt.Errorf("%w: %s", apiframework.ErrForbidden, decision.Reason)
			}
			if previous.Output != nil {
				previousOutput = json.RawMessage(*previous.Output)
			}
		}
	}

	tool, err := s.registry.Get(task.Tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apiframework.ErrBadRequest, err)
	}

	// The status-guarded update serializes concurrent executions per plan.
	if err := plans.UpdateTaskStatus(ctx, planID, taskNumber, planstore.TaskPending, planstore.TaskInProgress); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %d was claimed by another request",
				apiframework.ErrConcurrentModification, taskNumber)
		}
		return nil, err
	}

	payload, err := json.Marshal(TaskPayload{
		ClientID:       client.ID,
		ClientURL:      client.URL,
		PlanTier:       string(client.PlanTier),
		PlanID:         plan.ID,
		PlanType:       plan.PlanType,
		Objective:      plan.Objective,
		TaskNumber:     taskNumber,
		PreviousOutput: previousOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool payload: %w", err)
	}

	toolCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	output, toolErr := tool.Run(toolCtx, payload)
	cancel()

	finalStatus := planstore.TaskDone
	var outputStr, errMsg *string
	if toolErr != nil {
		// Tool errors, timeouts included, land on the task record.
		finalStatus = planstore.TaskFailed
		msg := toolErr.Error()
		errMsg = &msg
	} else {
		str := string(output)
		outputStr = &str
	}
	if err := plans.SetTaskResult(ctx, planID, taskNumber, finalStatus, outputStr, errMsg); err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %d changed underneath this request",
				apiframework.ErrConcurrentModification, taskNumber)
		}
		return nil, err
	}
	task.Status = finalStatus
	task.Output = outputStr
	task.ErrorMessage = errMsg

	s.publishAudit(ctx, plan, task)

	if finalStatus == planstore.TaskDone {
		if _, err := s.planEngine.CompletePlanIfExhausted(ctx, planID); err != nil {
			return nil, err
		}
	}
	return task, nil
}

func (s *service) publishAudit(ctx context.Context, plan *planstore.Plan, task *planstore.Task) {
	if s.bus == nil {
		return
	}
	event := TaskAuditEvent{
		PlanID:     plan.ID,
		TaskNumber: task.TaskNumber,
		Tool:       task.Tool,
		Status:     string(task.Status),
		FinishedAt: time.Now().UTC(),
	}
	if task.ErrorMessage != nil {
		event.Error = *task.ErrorMessage
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	// Audit publication is best effort; execution already succeeded.
	_ = s.bus.Publish(ctx, SubjectTaskAudit, data)
}
