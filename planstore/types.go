package planstore

import (
	"context"
	"time"

	"github.com/smokeyworks/smokey/libdbexec"
)

var ErrNotFound = libdbexec.ErrNotFound

// PlanStatus is the plan lifecycle state. Terminal states are completed and
// aborted; transitions are driven only by the plan engine.
type PlanStatus string

const (
	PlanQueued    PlanStatus = "queued"
	PlanActive    PlanStatus = "active"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanAborted   PlanStatus = "aborted"
)

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanQueued, PlanActive, PlanPaused, PlanCompleted, PlanAborted:
		return true
	}
	return false
}

func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanAborted
}

// TaskStatus is the per-step state within a plan.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone, TaskFailed:
		return true
	}
	return false
}

// CheckpointResult is the verdict attached to an executed task.
type CheckpointResult string

const (
	CheckpointPass        CheckpointResult = "pass"
	CheckpointFail        CheckpointResult = "fail"
	CheckpointNeedsReview CheckpointResult = "needs_review"
)

func (r CheckpointResult) Valid() bool {
	switch r {
	case CheckpointPass, CheckpointFail, CheckpointNeedsReview:
		return true
	}
	return false
}

// CheckpointMethod records how the verdict was produced.
type CheckpointMethod string

const (
	MethodAutomatic          CheckpointMethod = "automatic"
	MethodAutomaticWithAudit CheckpointMethod = "automatic_with_audit"
	MethodManual             CheckpointMethod = "manual"
)

// Plan is one unit of scheduled work for a client. It owns an ordered
// sequence of tasks materialized at creation time.
type Plan struct {
	ID               string     `json:"id"`
	ClientID         string     `json:"clientId"`
	PlanType         string     `json:"planType"`
	Objective        string     `json:"objective"`
	Status           PlanStatus `json:"status"`
	ScheduledMonth   *int       `json:"scheduledMonth,omitempty"`
	DependsOnPlanID  *string    `json:"dependsOnPlanId,omitempty"`
	Blocking         bool       `json:"blocking"`
	ReassessAfter    *time.Time `json:"reassessAfter,omitempty"`
	SourceDecisionID *string    `json:"sourceDecisionId,omitempty"`
	BranchReason     *string    `json:"branchReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Task is one tool-executing step within a plan. Task numbers are 1-based
// and contiguous within their plan.
type Task struct {
	ID           string     `json:"id"`
	PlanID       string     `json:"planId"`
	TaskNumber   int        `json:"taskNumber"`
	Status       TaskStatus `json:"status"`
	Tool         string     `json:"tool"`
	Output       *string    `json:"output,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Checkpoint is an evaluation attached to exactly one task. A task has at
// most one active checkpoint; re-evaluation replaces it.
type Checkpoint struct {
	ID         string           `json:"id"`
	TaskID     string           `json:"taskId"`
	Result     CheckpointResult `json:"result"`
	Confidence *float64         `json:"confidence,omitempty"`
	Reasoning  string           `json:"reasoning"`
	Method     CheckpointMethod `json:"method"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type Store interface {
	CreatePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	// UpdatePlanStatus is a status-guarded transition. Zero rows affected
	// yields ErrNotFound so callers can tell a lost race from success.
	UpdatePlanStatus(ctx context.Context, id string, from, to PlanStatus) error
	SetPlanReassessAfter(ctx context.Context, id string, reassessAfter *time.Time) error
	SetPlanScheduledMonth(ctx context.Context, id string, month *int) error
	DeletePlan(ctx context.Context, id string) error
	ListClientPlans(ctx context.Context, clientID string) ([]*Plan, error)
	ListPlansByStatus(ctx context.Context, clientID string, status PlanStatus) ([]*Plan, error)
	ListPlansByMonth(ctx context.Context, clientID string, month int) ([]*Plan, error)
	// ListPlansDueForReassessment returns completed plans whose reassess_after
	// has arrived. An empty clientID means all clients.
	ListPlansDueForReassessment(ctx context.Context, clientID string, cutoff time.Time) ([]*Plan, error)

	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, planID string, taskNumber int) (*Task, error)
	ListTasks(ctx context.Context, planID string) ([]*Task, error)
	// GetNextPendingTask returns the lowest-numbered pending task, or
	// ErrNotFound when the plan is exhausted.
	GetNextPendingTask(ctx context.Context, planID string) (*Task, error)
	// UpdateTaskStatus is the status-guarded transition used to serialize
	// concurrent executions per plan.
	UpdateTaskStatus(ctx context.Context, planID string, taskNumber int, from, to TaskStatus) error
	// SetTaskResult records tool output and transitions an in_progress task
	// to its final status.
	SetTaskResult(ctx context.Context, planID string, taskNumber int, to TaskStatus, output, errorMessage *string) error

	ReplaceCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	GetCheckpointForTask(ctx context.Context, taskID string) (*Checkpoint, error)
}
