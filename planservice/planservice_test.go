package planservice_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientstore"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/plantemplates"
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

// SetupEngine initializes a test Postgres instance with the client and plan
// schemas and returns the plan engine plus its backing database.
func SetupEngine(t *testing.T) (context.Context, libdb.DBManager, planservice.Service) {
	t.Helper()

	unquiet := quiet()
	t.Cleanup(unquiet)

	ctx := context.TODO()
	connStr, _, cleanup, err := libdb.SetupLocalInstance(ctx, "test", "test", "test")
	require.NoError(t, err)

	dbManager, err := libdb.NewPostgresDBManager(ctx, connStr, "")
	require.NoError(t, err)

	require.NoError(t, clientstore.InitSchema(ctx, dbManager.WithoutTransaction()))
	require.NoError(t, planstore.InitSchema(ctx, dbManager.WithoutTransaction()))

	t.Cleanup(func() {
		require.NoError(t, dbManager.Close())
		cleanup()
	})

	return ctx, dbManager, planservice.New(dbManager)
}

// seedClient inserts an active client whose contract started today, so
// contract month 1 is the current month.
func seedClient(t *testing.T, ctx context.Context, db libdb.DBManager) *clientstore.Client {
	t.Helper()
	client := &clientstore.Client{
		ID:                   uuid.New().String(),
		URL:                  "https://example.com",
		ContractStartDate:    time.Now().UTC().Truncate(24 * time.Hour),
		ContractLengthMonths: 12,
		PlanTier:             clientstore.TierStarter,
		Status:               clientstore.ClientActive,
	}
	require.NoError(t, clientstore.New(db.WithoutTransaction()).CreateClient(ctx, client))
	return client
}

func TestUnit_PlanService_CreatePlanMaterializesTasks(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	plan, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanContentRefresh,
	})
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, plan.Status)
	require.NotEmpty(t, plan.Objective)

	tasks, err := svc.ListTasks(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		require.Equal(t, i+1, task.TaskNumber)
		require.Equal(t, planstore.TaskPending, task.Status)
	}
	require.Equal(t, "audit", tasks[0].Tool)
	require.Equal(t, "burnt", tasks[1].Tool)
	require.Equal(t, "content", tasks[2].Tool)
}

func TestUnit_PlanService_CreatePlanRejectsBadInput(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	_, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: "mystery_plan",
	})
	require.ErrorIs(t, err, apiframework.ErrUnknownPlanType)

	_, err = svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.Error(t, err)

	month := 99
	_, err = svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID:       client.ID,
		PlanType:       plantemplates.PlanTechnicalAudit,
		ScheduledMonth: &month,
	})
	require.Error(t, err)

	_, err = svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: uuid.New().String(),
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.Error(t, err)
}

func TestUnit_PlanService_FuturePlansStartQueued(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	current := 1
	now, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID:       client.ID,
		PlanType:       plantemplates.PlanTechnicalAudit,
		ScheduledMonth: &current,
	})
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, now.Status)

	later := 3
	future, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID:       client.ID,
		PlanType:       plantemplates.PlanContentRefresh,
		ScheduledMonth: &later,
	})
	require.NoError(t, err)
	require.Equal(t, planstore.PlanQueued, future.Status)

	queued, err := svc.GetQueuedPlans(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	require.Equal(t, future.ID, queued[0].ID)
}

func completePlan(t *testing.T, ctx context.Context, svc planservice.Service, planID string) {
	t.Helper()
	for {
		task, err := svc.GetNextTask(ctx, planID)
		require.NoError(t, err)
		if task == nil {
			return
		}
		_, err = svc.MarkTaskDone(ctx, planID, task.TaskNumber)
		require.NoError(t, err)
	}
}

func TestUnit_PlanService_BlockingPredecessorGatesActivation(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	predecessor, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanTechnicalAudit,
		Blocking: true,
	})
	require.NoError(t, err)

	successor, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID:        client.ID,
		PlanType:        plantemplates.PlanContentRefresh,
		DependsOnPlanID: &predecessor.ID,
	})
	require.NoError(t, err)
	require.Equal(t, planstore.PlanQueued, successor.Status)

	_, err = svc.ActivatePlan(ctx, successor.ID)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)

	completePlan(t, ctx, svc, predecessor.ID)
	done, err := svc.GetPlan(ctx, predecessor.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, done.Status)

	activated, err := svc.ActivatePlan(ctx, successor.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, activated.Status)
}

func TestUnit_PlanService_PauseResume(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	plan, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.NoError(t, err)

	paused, err := svc.PausePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanPaused, paused.Status)

	_, err = svc.PausePlan(ctx, plan.ID)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)

	resumed, err := svc.ResumePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, resumed.Status)
}

func TestUnit_PlanService_AbortIsTerminal(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	plan, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.NoError(t, err)

	aborted, err := svc.AbortPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanAborted, aborted.Status)

	_, err = svc.AbortPlan(ctx, plan.ID)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)
	_, err = svc.ResumePlan(ctx, plan.ID)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)
}

func TestUnit_PlanService_BranchPausesOriginal(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	original, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanContentRefresh,
	})
	require.NoError(t, err)

	branch, err := svc.BranchPlan(ctx, original.ID, plantemplates.PlanFollowupAudit, "content scores regressed")
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, branch.Status)
	require.NotNil(t, branch.DependsOnPlanID)
	require.Equal(t, original.ID, *branch.DependsOnPlanID)
	require.NotNil(t, branch.BranchReason)
	require.Equal(t, "content scores regressed", *branch.BranchReason)

	got, err := svc.GetPlan(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanPaused, got.Status)

	tasks, err := svc.ListTasks(ctx, branch.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Pending tasks stay visible on the paused original for inspection.
	next, err := svc.GetNextTask(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 1, next.TaskNumber)

	_, err = svc.BranchPlan(ctx, original.ID, "mystery_plan", "")
	require.ErrorIs(t, err, apiframework.ErrUnknownPlanType)
}

func TestUnit_PlanService_ExhaustionCompletesAndStampsReassessment(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	plan, err := svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanFollowupAudit,
	})
	require.NoError(t, err)

	// With pending tasks left the plan stays active.
	unchanged, err := svc.CompletePlanIfExhausted(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, unchanged.Status)

	task, err := svc.GetNextTask(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, 1, task.TaskNumber)

	_, err = svc.MarkTaskDone(ctx, plan.ID, task.TaskNumber)
	require.NoError(t, err)

	completed, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, completed.Status)
	require.NotNil(t, completed.ReassessAfter)

	template, _ := plantemplates.Get(plantemplates.PlanFollowupAudit)
	expected := time.Now().UTC().AddDate(0, 0, template.ReassessAfterDays)
	require.WithinDuration(t, expected, *completed.ReassessAfter, time.Minute)

	exhausted, err := svc.GetNextTask(ctx, plan.ID)
	require.NoError(t, err)
	require.Nil(t, exhausted)
}

func TestUnit_PlanService_SuggestPlan(t *testing.T) {
	ctx, db, svc := SetupEngine(t)
	client := seedClient(t, ctx, db)

	suggestion, err := svc.SuggestPlan(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, plantemplates.PlanTechnicalAudit, suggestion.PlanType)

	_, err = svc.CreatePlan(ctx, planservice.CreatePlanRequest{
		ClientID: client.ID,
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.NoError(t, err)

	suggestion, err = svc.SuggestPlan(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, plantemplates.PlanContentRefresh, suggestion.PlanType)

	for _, planType := range plantemplates.Types()[1:] {
		_, err = svc.CreatePlan(ctx, planservice.CreatePlanRequest{
			ClientID: client.ID,
			PlanType: planType,
		})
		require.NoError(t, err)
	}

	suggestion, err = svc.SuggestPlan(ctx, client.ID)
	require.NoError(t, err)
	require.Empty(t, suggestion.PlanType)
	require.NotEmpty(t, suggestion.Reason)
}
