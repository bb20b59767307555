package clientservice

import (
	"context"

	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) CreateClient(ctx context.Context, req CreateClientRequest) (*clientstore.Client, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"client",
		"url", req.URL,
		"planTier", string(req.PlanTier),
	)
	defer endFn()

	client, err := d.service.CreateClient(ctx, req)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(client.ID, map[string]interface{}{
			"url":      client.URL,
			"planTier": client.PlanTier,
		})
	}

	return client, err
}

func (d *activityTrackerDecorator) GetClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"client",
		"clientID", clientID,
	)
	defer endFn()

	client, err := d.service.GetClient(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	}

	return client, err
}

func (d *activityTrackerDecorator) UpdateClient(ctx context.Context, client *clientstore.Client) (*clientstore.Client, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"update",
		"client",
		"clientID", client.ID,
	)
	defer endFn()

	updated, err := d.service.UpdateClient(ctx, client)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(updated.ID, map[string]interface{}{
			"url": updated.URL,
		})
	}

	return updated, err
}

func (d *activityTrackerDecorator) reportStatus(ctx context.Context, operation, clientID string, fn func(context.Context, string) (*clientstore.Client, error)) (*clientstore.Client, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		operation,
		"client",
		"clientID", clientID,
	)
	defer endFn()

	client, err := fn(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(client.ID, map[string]interface{}{
			"status": client.Status,
		})
	}

	return client, err
}

func (d *activityTrackerDecorator) ActivateClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	return d.reportStatus(ctx, "activate", clientID, d.service.ActivateClient)
}

func (d *activityTrackerDecorator) CloseClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	return d.reportStatus(ctx, "close", clientID, d.service.CloseClient)
}

func (d *activityTrackerDecorator) DeleteClient(ctx context.Context, clientID string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"client",
		"clientID", clientID,
	)
	defer endFn()

	err := d.service.DeleteClient(ctx, clientID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(clientID, nil)
	}

	return err
}

func (d *activityTrackerDecorator) ListClients(ctx context.Context) ([]*clientstore.Client, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"clients",
	)
	defer endFn()

	clients, err := d.service.ListClients(ctx)
	if err != nil {
		reportErrFn(err)
	}

	return clients, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
