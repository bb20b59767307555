package execservice

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

func (d *activityTrackerDecorator) ExecuteTask(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"execute",
		"task",
		"planID", planID,
		"taskNumber", fmt.Sprintf("%d", taskNumber),
	)
	defer endFn()

	task, err := d.service.ExecuteTask(ctx, planID, taskNumber)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(task.ID, map[string]interface{}{
			"planID":     planID,
			"taskNumber": taskNumber,
			"tool":       task.Tool,
			"status":     task.Status,
		})
	}

	return task, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
