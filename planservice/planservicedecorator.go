package planservice

import (
	"context"
	"fmt"

	"github.com/smokeyworks/smokey/libtracker"
	"github.com/smokeyworks/smokey/planstore"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) CreatePlan(ctx context.Context, req CreatePlanRequest) (*planstore.Plan, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"plan",
		"clientID", req.ClientID,
		"planType", req.PlanType,
	)
	defer endFn()

	plan, err := d.service.CreatePlan(ctx, req)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(plan.ID, map[string]interface{}{
			"clientID": plan.ClientID,
			"planType": plan.PlanType,
			"status":   plan.Status,
		})
	}

	return plan, err
}

func (d *activityTrackerDecorator) GetPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"plan",
		"planID", planID,
	)
	defer endFn()

	plan, err := d.service.GetPlan(ctx, planID)
	if err != nil {
		reportErrFn(err)
	}

	return plan, err
}

func (d *activityTrackerDecorator) GetNextTask(ctx context.Context, planID string) (*planstore.Task, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"next_task",
		"plan",
		"planID", planID,
	)
	defer endFn()

	task, err := d.service.GetNextTask(ctx, planID)
	if err != nil {
		reportErrFn(err)
	}

	return task, err
}

func (d *activityTrackerDecorator) ListTasks(ctx context.Context, planID string) ([]*planstore.Task, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"tasks",
		"planID", planID,
	)
	defer endFn()

	tasks, err := d.service.ListTasks(ctx, planID)
	if err != nil {
		reportErrFn(err)
	}

	return tasks, err
}

func (d *activityTrackerDecorator) reportTransition(ctx context.Context, operation, planID string, fn func(context.Context, string) (*planstore.Plan, error)) (*planstore.Plan, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		operation,
		"plan",
		"planID", planID,
	)
	defer endFn()

	plan, err := fn(ctx, planID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(plan.ID, map[string]interface{}{
			"status": plan.Status,
		})
	}

	return plan, err
}

func (d *activityTrackerDecorator) PausePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return d.reportTransition(ctx, "pause", planID, d.service.PausePlan)
}

func (d *activityTrackerDecorator) ResumePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return d.reportTransition(ctx, "resume", planID, d.service.ResumePlan)
}

func (d *activityTrackerDecorator) AbortPlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return d.reportTransition(ctx, "abort", planID, d.service.AbortPlan)
}

func (d *activityTrackerDecorator) ActivatePlan(ctx context.Context, planID string) (*planstore.Plan, error) {
	return d.reportTransition(ctx, "activate", planID, d.service.ActivatePlan)
}

func (d *activityTrackerDecorator) BranchPlan(ctx context.Context, planID, newPlanType, reason string) (*planstore.Plan, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"branch",
		"plan",
		"planID", planID,
		"newPlanType", newPlanType,
	)
	defer endFn()

	branch, err := d.service.BranchPlan(ctx, planID, newPlanType, reason)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(branch.ID, map[string]interface{}{
			"planType":        branch.PlanType,
			"dependsOnPlanID": planID,
			"reason":          reason,
		})
	}

	return branch, err
}

func (d *activityTrackerDecorator) MarkTaskDone(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"mark_done",
		"task",
		"planID", planID,
		"taskNumber", fmt.Sprintf("%d", taskNumber),
	)
	defer endFn()

	task, err := d.service.MarkTaskDone(ctx, planID, taskNumber)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(task.ID, map[string]interface{}{
			"planID":     planID,
			"taskNumber": taskNumber,
			"status":     task.Status,
		})
	}

	return task, err
}

func (d *activityTrackerDecorator) CompletePlanIfExhausted(ctx context.Context, planID string) (*planstore.Plan, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"complete_if_exhausted",
		"plan",
		"planID", planID,
	)
	defer endFn()

	plan, err := d.service.CompletePlanIfExhausted(ctx, planID)
	if err != nil {
		reportErrFn(err)
	} else if plan.Status == planstore.PlanCompleted {
		reportChangeFn(plan.ID, map[string]interface{}{
			"status": plan.Status,
		})
	}

	return plan, err
}

func (d *activityTrackerDecorator) GetActivePlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list_active",
		"plans",
		"clientID", clientID,
	)
	defer endFn()

	plans, err := d.service.GetActivePlans(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return plans, err
}

func (d *activityTrackerDecorator) GetQueuedPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list_queued",
		"plans",
		"clientID", clientID,
	)
	defer endFn()

	plans, err := d.service.GetQueuedPlans(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return plans, err
}

func (d *activityTrackerDecorator) GetPlansByMonth(ctx context.Context, clientID string, month int) ([]*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list_by_month",
		"plans",
		"clientID", clientID,
		"month", fmt.Sprintf("%d", month),
	)
	defer endFn()

	plans, err := d.service.GetPlansByMonth(ctx, clientID, month)
	if err != nil {
		reportErrFn(err)
	}

	return plans, err
}

func (d *activityTrackerDecorator) GetClientPlans(ctx context.Context, clientID string) ([]*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"plans",
		"clientID", clientID,
	)
	defer endFn()

	plans, err := d.service.GetClientPlans(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return plans, err
}

func (d *activityTrackerDecorator) SuggestPlan(ctx context.Context, clientID string) (*Suggestion, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"suggest",
		"plan",
		"clientID", clientID,
	)
	defer endFn()

	suggestion, err := d.service.SuggestPlan(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return suggestion, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
