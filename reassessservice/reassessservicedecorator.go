package reassessservice

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

func (d *activityTrackerDecorator) ListDue(ctx context.Context, clientID string) (map[string][]*planstore.Plan, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list_due",
		"reassessment",
		"clientID", clientID,
	)
	defer endFn()

	grouped, err := d.service.ListDue(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return grouped, err
}

func (d *activityTrackerDecorator) Sweep(ctx context.Context) (int, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"sweep",
		"reassessment",
	)
	defer endFn()

	count, err := d.service.Sweep(ctx)
	if err != nil {
		reportErrFn(err)
	} else if count > 0 {
		reportChangeFn("sweep", map[string]interface{}{
			"duePlans": fmt.Sprintf("%d", count),
		})
	}

	return count, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
