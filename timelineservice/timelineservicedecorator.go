package timelineservice

import (
	"context"
	"time"

	"github.com/smokeyworks/smokey/libtracker"
	"github.com/smokeyworks/smokey/timelinestore"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) InstantiateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"instantiate",
		"timeline",
		"clientID", clientID,
	)
	defer endFn()

	phases, err := d.service.InstantiateTimeline(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(clientID, map[string]interface{}{
			"phaseCount": len(phases),
		})
	}

	return phases, err
}

func (d *activityTrackerDecorator) RegenerateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"regenerate",
		"timeline",
		"clientID", clientID,
	)
	defer endFn()

	phases, err := d.service.RegenerateTimeline(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(clientID, map[string]interface{}{
			"phaseCount": len(phases),
		})
	}

	return phases, err
}

func (d *activityTrackerDecorator) GetClientTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"timeline",
		"clientID", clientID,
	)
	defer endFn()

	phases, err := d.service.GetClientTimeline(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return phases, err
}

func (d *activityTrackerDecorator) ReschedulePhase(ctx context.Context, phaseID string, date time.Time) (*timelinestore.Phase, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"reschedule",
		"timeline_phase",
		"phaseID", phaseID,
		"date", date.Format(time.RFC3339),
	)
	defer endFn()

	phase, err := d.service.ReschedulePhase(ctx, phaseID, date)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(phase.ID, map[string]interface{}{
			"scheduledDate": phase.ScheduledDate,
		})
	}

	return phase, err
}

func (d *activityTrackerDecorator) SkipPhase(ctx context.Context, phaseID string) (*timelinestore.Phase, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"skip",
		"timeline_phase",
		"phaseID", phaseID,
	)
	defer endFn()

	phase, err := d.service.SkipPhase(ctx, phaseID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(phase.ID, map[string]interface{}{
			"status": phase.Status,
		})
	}

	return phase, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
