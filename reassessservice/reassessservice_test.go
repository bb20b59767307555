package reassessservice_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/libbus"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/stretchr/testify/require"
)

func quiet() func() {
	null, _ := os.Open(os.DevNull)
	sout := os.Stdout
	serr := os.Stderr
	os.Stdout = null
	os.Stderr = null
	return func() {
		defer null.Close()
		os.Stdout = sout
		os.Stderr = serr
	}
}

// SetupQueue initializes a test Postgres instance with the plan schema and an
// in-memory bus.
func SetupQueue(t *testing.T) (context.Context, planstore.Store, libbus.Messenger, reassessservice.Service) {
	t.Helper()

	unquiet := quiet()
	t.Cleanup(unquiet)

	ctx := context.TODO()
	connStr, _, cleanup, err := libdb.SetupLocalInstance(ctx, "test", "test", "test")
	require.NoError(t, err)

	dbManager, err := libdb.NewPostgresDBManager(ctx, connStr, "")
	require.NoError(t, err)

	require.NoError(t, planstore.InitSchema(ctx, dbManager.WithoutTransaction()))

	t.Cleanup(func() {
		require.NoError(t, dbManager.Close())
		cleanup()
	})

	bus := libbus.NewInMem()
	store := planstore.New(dbManager.WithoutTransaction())
	return ctx, store, bus, reassessservice.New(dbManager, bus)
}

func completedPlan(t *testing.T, ctx context.Context, store planstore.Store, clientID string, reassessAfter time.Time) *planstore.Plan {
	t.Helper()
	plan := &planstore.Plan{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		PlanType:  "technical_audit",
		Objective: "baseline audit",
		Status:    planstore.PlanCompleted,
	}
	require.NoError(t, store.CreatePlan(ctx, plan))
	require.NoError(t, store.SetPlanReassessAfter(ctx, plan.ID, &reassessAfter))
	return plan
}

func TestUnit_ReassessService_ListDueGroupsByDate(t *testing.T) {
	ctx, store, _, svc := SetupQueue(t)

	dayOne := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	dayTwo := time.Date(2026, 6, 2, 15, 30, 0, 0, time.UTC)

	first := completedPlan(t, ctx, store, "client-1", dayOne)
	second := completedPlan(t, ctx, store, "client-1", dayOne.Add(2*time.Hour))
	third := completedPlan(t, ctx, store, "client-2", dayTwo)
	completedPlan(t, ctx, store, "client-1", time.Now().UTC().AddDate(0, 0, 30))

	grouped, err := svc.ListDue(ctx, "")
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["2026-06-01"], 2)
	require.Len(t, grouped["2026-06-02"], 1)
	require.Equal(t, first.ID, grouped["2026-06-01"][0].ID)
	require.Equal(t, second.ID, grouped["2026-06-01"][1].ID)
	require.Equal(t, third.ID, grouped["2026-06-02"][0].ID)

	scoped, err := svc.ListDue(ctx, "client-2")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Len(t, scoped["2026-06-02"], 1)
}

func TestUnit_ReassessService_OnlyCompletedPlansSurface(t *testing.T) {
	ctx, store, _, svc := SetupQueue(t)

	past := time.Now().UTC().AddDate(0, 0, -1)
	open := &planstore.Plan{
		ID:        uuid.New().String(),
		ClientID:  "client-1",
		PlanType:  "technical_audit",
		Objective: "baseline audit",
		Status:    planstore.PlanActive,
	}
	require.NoError(t, store.CreatePlan(ctx, open))
	require.NoError(t, store.SetPlanReassessAfter(ctx, open.ID, &past))

	grouped, err := svc.ListDue(ctx, "")
	require.NoError(t, err)
	require.Empty(t, grouped)
}

func TestUnit_ReassessService_SweepPublishesDueGroups(t *testing.T) {
	ctx, store, bus, svc := SetupQueue(t)

	dueDate := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)
	first := completedPlan(t, ctx, store, "client-1", dueDate)
	second := completedPlan(t, ctx, store, "client-1", dueDate.Add(time.Hour))

	ch := make(chan []byte, 4)
	sub, err := bus.Stream(ctx, reassessservice.SubjectReassessDue, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	total, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	select {
	case data := <-ch:
		var group reassessservice.DueGroup
		require.NoError(t, json.Unmarshal(data, &group))
		require.Equal(t, dueDate.Format("2006-01-02"), group.Date)
		require.ElementsMatch(t, []string{first.ID, second.ID}, group.PlanIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no due group published")
	}
}

func TestUnit_ReassessService_SweepWithNothingDue(t *testing.T) {
	ctx, _, _, svc := SetupQueue(t)

	total, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, total)
}
