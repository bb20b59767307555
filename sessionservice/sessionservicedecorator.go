package sessionservice

import (
	"context"
	"encoding/json"

	"github.com/smokeyworks/smokey/libtracker"
	"github.com/smokeyworks/smokey/sessionstore"
	"github.com/smokeyworks/smokey/tooling"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) CreateSession(ctx context.Context, taskID, tool string, payload json.RawMessage) (*sessionstore.Session, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"tool_session",
		"taskID", taskID,
		"tool", tool,
	)
	defer endFn()

	session, err := d.service.CreateSession(ctx, taskID, tool, payload)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(session.ID, map[string]interface{}{
			"taskID": taskID,
			"tool":   tool,
		})
	}

	return session, err
}

func (d *activityTrackerDecorator) GetSession(ctx context.Context, sessionID string) (*sessionstore.Session, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"tool_session",
		"sessionID", sessionID,
	)
	defer endFn()

	session, err := d.service.GetSession(ctx, sessionID)
	if err != nil {
		reportErrFn(err)
	}

	return session, err
}

func (d *activityTrackerDecorator) LaunchSession(ctx context.Context, sessionID string) (*tooling.Descriptor, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"launch",
		"tool_session",
		"sessionID", sessionID,
	)
	defer endFn()

	descriptor, err := d.service.LaunchSession(ctx, sessionID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(sessionID, map[string]interface{}{
			"path": descriptor.Path,
		})
	}

	return descriptor, err
}

func (d *activityTrackerDecorator) CompleteSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"complete",
		"tool_session",
		"sessionID", sessionID,
	)
	defer endFn()

	session, err := d.service.CompleteSession(ctx, sessionID, result)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(session.ID, map[string]interface{}{
			"status": session.Status,
		})
	}

	return session, err
}

func (d *activityTrackerDecorator) FailSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"fail",
		"tool_session",
		"sessionID", sessionID,
	)
	defer endFn()

	session, err := d.service.FailSession(ctx, sessionID, result)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(session.ID, map[string]interface{}{
			"status": session.Status,
		})
	}

	return session, err
}

func (d *activityTrackerDecorator) ListTaskSessions(ctx context.Context, taskID string) ([]*sessionstore.Session, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"tool_sessions",
		"taskID", taskID,
	)
	defer endFn()

	sessions, err := d.service.ListTaskSessions(ctx, taskID)
	if err != nil {
		reportErrFn(err)
	}

	return sessions, err
}

func (d *activityTrackerDecorator) DiscardSession(ctx context.Context, sessionID string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"discard",
		"tool_session",
		"sessionID", sessionID,
	)
	defer endFn()

	err := d.service.DiscardSession(ctx, sessionID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(sessionID, nil)
	}

	return err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
