// Package checkpointservice judges executed tasks. A checkpoint never exists
// before its task's tool has produced a result.
package checkpointservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/ctaflow"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/libkvstore"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/plantemplates"
	"github.com/smokeyworks/smokey/tooling"
)

// ReviewQueueKey is the KV list needs_review checkpoints surface on for
// operators.
const ReviewQueueKey = "smokey:checkpoint_review_queue"

// ReviewItem is one entry in the operator review queue.
type ReviewItem struct {
	PlanID       string    `json:"planId"`
	TaskNumber   int       `json:"taskNumber"`
	CheckpointID string    `json:"checkpointId"`
	Reasoning    string    `json:"reasoning"`
	QueuedAt     time.Time `json:"queuedAt"`
}

type Service interface {
	// Evaluate applies the deterministic rule set to the task's stored
	// output.
	Evaluate(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error)
	// EvaluateWithAudit re-runs the fact tool for a fresh signal first.
	// Used for reassessment, since conditions may have changed.
	EvaluateWithAudit(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error)
	// ManualEvaluate records an operator verdict as given.
	ManualEvaluate(ctx context.Context, planID string, taskNumber int, result planstore.CheckpointResult, reasoning string) (*planstore.Checkpoint, error)
	// ListReviewQueue returns queued needs_review items, newest first.
	ListReviewQueue(ctx context.Context, limit int64) ([]ReviewItem, error)
}

type service struct {
	dbInstance  libdb.DBManager
	registry    *tooling.Registry
	planEngine  planservice.Service
	kvManager   libkvstore.KVManager
	toolTimeout time.Duration
}

func New(db libdb.DBManager, registry *tooling.Registry, planEngine planservice.Service, kvManager libkvstore.KVManager, toolTimeout time.Duration) Service {
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	return &service{
		dbInstance:  db,
		registry:    registry,
		planEngine:  planEngine,
		kvManager:   kvManager,
		toolTimeout: toolTimeout,
	}
}

// loadExecutedTask fetches the plan and task, rejecting tasks whose tool has
// not produced a result yet.
func (s *service) loadExecutedTask(ctx context.Context, planID string, taskNumber int) (*planstore.Plan, *planstore.Task, error) {
	tx := s.dbInstance.WithoutTransaction()
	plans := planstore.New(tx)

	plan, err := plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	task, err := plans.GetTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != planstore.TaskDone && task.Status != planstore.TaskFailed {
		return nil, nil, fmt.Errorf("%w: task %d has not executed yet",
			apiframework.ErrInvalidState, taskNumber)
	}
	return plan, task, nil
}

func (s *service) Evaluate(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	plan, task, err := s.loadExecutedTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, err
	}

	result, confidence, reasoning := judgeTask(task, nil)
	return s.record(ctx, plan, task, result, confidence, reasoning, planstore.MethodAutomatic)
}

func (s *service) EvaluateWithAudit(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	plan, task, err := s.loadExecutedTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, err
	}

	tool, err := s.registry.Get(ctaflow.ToolAudit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apiframework.ErrInternalServerError, err)
	}
	client, err := clientstore.New(s.dbInstance.WithoutTransaction()).GetClient(ctx, plan.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"clientId":  client.ID,
		"clientUrl": client.URL,
		"planId":    plan.ID,
		"planType":  plan.PlanType,
		"reaudit":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	toolCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	fresh, auditErr := tool.Run(toolCtx, payload)
	cancel()
	if auditErr != nil {
		// A failed re-audit is an inconclusive signal, not a verdict.
		return s.record(ctx, plan, task, planstore.CheckpointNeedsReview, nil,
			fmt.Sprintf("re-audit failed: %v", auditErr), planstore.MethodAutomaticWithAudit)
	}

	result, confidence, reasoning := judgeTask(task, fresh)
	return s.record(ctx, plan, task, result, confidence, reasoning, planstore.MethodAutomaticWithAudit)
}

func (s *service) ManualEvaluate(ctx context.Context, planID string, taskNumber int, result planstore.CheckpointResult, reasoning string) (*planstore.Checkpoint, error) {
	if !result.Valid() {
		return nil, apiframework.InvalidParameterValue("result",
			fmt.Sprintf("unknown checkpoint result %q", result))
	}
	plan, task, err := s.loadExecutedTask(ctx, planID, taskNumber)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, plan, task, result, nil, reasoning, planstore.MethodManual)
}

// record replaces the task's checkpoint and dispatches the plan-type failure
// policy.
func (s *service) record(ctx context.Context, plan *planstore.Plan, task *planstore.Task, result planstore.CheckpointResult, confidence *float64, reasoning string, method planstore.CheckpointMethod) (*planstore.Checkpoint, error) {
	checkpoint := &planstore.Checkpoint{
		ID:         uuid.New().String(),
		TaskID:     task.ID,
		Result:     result,
		Confidence: confidence,
		Reasoning:  reasoning,
		Method:     method,
	}
	tx := s.dbInstance.WithoutTransaction()
	if err := planstore.New(tx).ReplaceCheckpoint(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("failed to store checkpoint: %w", err)
	}

	switch result {
	case planstore.CheckpointFail:
		if err := s.applyFailurePolicy(ctx, plan, task, reasoning); err != nil {
			return nil, err
		}
	case planstore.CheckpointNeedsReview:
		// The plan stays as it is; the item surfaces for operators.
		if err := s.pushReview(ctx, plan.ID, task.TaskNumber, checkpoint); err != nil {
			return nil, err
		}
	}
	return checkpoint, nil
}

func (s *service) applyFailurePolicy(ctx context.Context, plan *planstore.Plan, task *planstore.Task, reasoning string) error {
	template, ok := plantemplates.Get(plan.PlanType)
	policy := plantemplates.FailurePolicy{Action: plantemplates.FailurePause}
	if ok {
		policy = template.OnCheckpointFail
	}

	switch policy.Action {
	case plantemplates.FailureBranch:
		reason := fmt.Sprintf("checkpoint failed on task %d: %s", task.TaskNumber, reasoning)
		_, err := s.planEngine.BranchPlan(ctx, plan.ID, policy.BranchTo, reason)
		return err
	case plantemplates.FailureAbort:
		if plan.Status.Terminal() {
			return nil
		}
		_, err := s.planEngine.AbortPlan(ctx, plan.ID)
		return err
	default:
		if plan.Status != planstore.PlanActive {
			return nil
		}
		_, err := s.planEngine.PausePlan(ctx, plan.ID)
		return err
	}
}

func (s *service) pushReview(ctx context.Context, planID string, taskNumber int, checkpoint *planstore.Checkpoint) error {
	if s.kvManager == nil {
		return nil
	}
	kv, err := s.kvManager.Executor(ctx)
	if err != nil {
		return fmt.Errorf("review queue unavailable: %w", err)
	}
	item, err := json.Marshal(ReviewItem{
		PlanID:       planID,
		TaskNumber:   taskNumber,
		CheckpointID: checkpoint.ID,
		Reasoning:    checkpoint.Reasoning,
		QueuedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review item: %w", err)
	}
	return kv.ListPush(ctx, ReviewQueueKey, item)
}

func (s *service) ListReviewQueue(ctx context.Context, limit int64) ([]ReviewItem, error) {
	if s.kvManager == nil {
		return []ReviewItem{}, nil
	}
	kv, err := s.kvManager.Executor(ctx)
	if err != nil {
		return nil, fmt.Errorf("review queue unavailable: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	raw, err := kv.ListRange(ctx, ReviewQueueKey, 0, limit-1)
	if err != nil {
		return nil, err
	}
	items := make([]ReviewItem, 0, len(raw))
	for _, entry := range raw {
		var item ReviewItem
		if err := json.Unmarshal(entry, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// toolReport is the machine-readable shape tools are expected to return.
type toolReport struct {
	Success *bool    `json:"success"`
	Score   *float64 `json:"score"`
	Summary string   `json:"summary"`
}

// judgeTask applies the deterministic rule set. When freshOutput is non-nil
// it replaces the stored output as the signal.
func judgeTask(task *planstore.Task, freshOutput json.RawMessage) (planstore.CheckpointResult, *float64, string) {
	if task.Status == planstore.TaskFailed && freshOutput == nil {
		confidence := 0.9
		msg := "tool execution failed"
		if task.ErrorMessage != nil {
			msg = fmt.Sprintf("tool execution failed: %s", *task.ErrorMessage)
		}
		return planstore.CheckpointFail, &confidence, msg
	}

	var signal []byte
	if freshOutput != nil {
		signal = freshOutput
	} else if task.Output != nil {
		signal = []byte(*task.Output)
	}
	var report toolReport
	if len(signal) == 0 || json.Unmarshal(signal, &report) != nil {
		return planstore.CheckpointNeedsReview, nil, "tool output is not machine-readable"
	}

	if report.Success != nil && !*report.Success {
		confidence := 0.9
		return planstore.CheckpointFail, &confidence, withSummary("tool reported failure", report.Summary)
	}
	if report.Score != nil {
		score := *report.Score
		switch {
		case score >= 0.7:
			return planstore.CheckpointPass, &score, withSummary(fmt.Sprintf("score %.2f meets threshold", score), report.Summary)
		case score >= 0.4:
			return planstore.CheckpointNeedsReview, &score, withSummary(fmt.Sprintf("score %.2f is borderline", score), report.Summary)
		default:
			confidence := 1 - score
			return planstore.CheckpointFail, &confidence, withSummary(fmt.Sprintf("score %.2f below threshold", score), report.Summary)
		}
	}
	if report.Success != nil && *report.Success {
		confidence := 0.75
		return planstore.CheckpointPass, &confidence, withSummary("tool reported success", report.Summary)
	}
	return planstore.CheckpointNeedsReview, nil, "tool output carries no verdict signal"
}

func withSummary(reasoning, summary string) string {
	if summary == "" {
		return reasoning
	}
	return fmt.Sprintf("%s: %s", reasoning, summary)
}
