package checkpointservice

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

func (d *activityTrackerDecorator) report(ctx context.Context, operation, planID string, taskNumber int, fn func() (*planstore.Checkpoint, error)) (*planstore.Checkpoint, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		operation,
		"checkpoint",
		"planID", planID,
		"taskNumber", fmt.Sprintf("%d", taskNumber),
	)
	defer endFn()

	checkpoint, err := fn()
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(checkpoint.ID, map[string]interface{}{
			"planID":     planID,
			"taskNumber": taskNumber,
			"result":     checkpoint.Result,
			"method":     checkpoint.Method,
		})
	}

	return checkpoint, err
}

func (d *activityTrackerDecorator) Evaluate(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	return d.report(ctx, "evaluate", planID, taskNumber, func() (*planstore.Checkpoint, error) {
		return d.service.Evaluate(ctx, planID, taskNumber)
	})
}

func (d *activityTrackerDecorator) EvaluateWithAudit(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	return d.report(ctx, "evaluate_with_audit", planID, taskNumber, func() (*planstore.Checkpoint, error) {
		return d.service.EvaluateWithAudit(ctx, planID, taskNumber)
	})
}

func (d *activityTrackerDecorator) ManualEvaluate(ctx context.Context, planID string, taskNumber int, result planstore.CheckpointResult, reasoning string) (*planstore.Checkpoint, error) {
	return d.report(ctx, "manual_evaluate", planID, taskNumber, func() (*planstore.Checkpoint, error) {
		return d.service.ManualEvaluate(ctx, planID, taskNumber, result, reasoning)
	})
}

func (d *activityTrackerDecorator) ListReviewQueue(ctx context.Context, limit int64) ([]ReviewItem, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"review_queue",
		"limit", fmt.Sprintf("%d", limit),
	)
	defer endFn()

	items, err := d.service.ListReviewQueue(ctx, limit)
	if err != nil {
		reportErrFn(err)
	}

	return items, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
