// Package reassessservice resurfaces completed plans whose re-evaluation
// date has arrived. Running a checkpoint with a fresh audit on such a plan
// either confirms the prior result or triggers a branch.
package reassessservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smokeyworks/smokey/libbus"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planstore"
)

// SubjectReassessDue is the bus subject sweep results publish on.
const SubjectReassessDue = "reassess_due"

// DueGroup is one calendar date's batch of due plans.
type DueGroup struct {
	Date    string   `json:"date"`
	PlanIDs []string `json:"planIds"`
}

type Service interface {
	// ListDue returns completed plans with reassessAfter in the past,
	// grouped by the calendar date of reassessAfter (ISO YYYY-MM-DD keys).
	// An empty clientID means all clients.
	ListDue(ctx context.Context, clientID string) (map[string][]*planstore.Plan, error)
	// Sweep publishes every due group for operators and returns the number
	// of due plans found.
	Sweep(ctx context.Context) (int, error)
}

type service struct {
	dbInstance libdb.DBManager
	bus        libbus.Messenger
}

func New(db libdb.DBManager, bus libbus.Messenger) Service {
	return &service{dbInstance: db, bus: bus}
}

func (s *service) ListDue(ctx context.Context, clientID string) (map[string][]*planstore.Plan, error) {
	tx := s.dbInstance.WithoutTransaction()
	due, err := planstore.New(tx).ListPlansDueForReassessment(ctx, clientID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	grouped := map[string][]*planstore.Plan{}
	for _, plan := range due {
		key := plan.ReassessAfter.UTC().Format("2006-01-02")
		grouped[key] = append(grouped[key], plan)
	}
	return grouped, nil
}

func (s *service) Sweep(ctx context.Context) (int, error) {
	grouped, err := s.ListDue(ctx, "")
	if err != nil {
		return 0, err
	}

	total := 0
	for date, plans := range grouped {
		total += len(plans)
		if s.bus == nil {
			continue
		}
		group := DueGroup{Date: date}
		for _, plan := range plans {
			group.PlanIDs = append(group.PlanIDs, plan.ID)
		}
		data, err := json.Marshal(group)
		if err != nil {
			return total, fmt.Errorf("failed to marshal due group: %w", err)
		}
		if err := s.bus.Publish(ctx, SubjectReassessDue, data); err != nil {
			return total, fmt.Errorf("failed to publish due group: %w", err)
		}
	}
	return total, nil
}
