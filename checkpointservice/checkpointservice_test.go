package checkpointservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/checkpointservice"
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/ctaflow"
	"github.com/smokeyworks/smokey/execservice"
	"github.com/smokeyworks/smokey/libauth"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/plantemplates"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/smokeyworks/smokey/tooling"
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

type testEnv struct {
	ctx         context.Context
	db          libdb.DBManager
	registry    *tooling.Registry
	plans       planservice.Service
	exec        execservice.Service
	checkpoints checkpointservice.Service
	client      *clientstore.Client
}

// SetupEvaluator wires the checkpoint evaluator with echo tools and no review
// queue backend.
func SetupEvaluator(t *testing.T) *testEnv {
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

	registry := tooling.NewRegistry()
	for _, name := range []string{ctaflow.ToolAudit, ctaflow.ToolBurnt, ctaflow.ToolContent, ctaflow.ToolStructure} {
		registry.Register(&tooling.EchoTool{ToolName: name})
	}

	resolver := &libauth.StaticResolver{Grants: map[string][]libauth.Capability{}}
	planEngine := planservice.New(dbManager)

	client := &clientstore.Client{
		ID:                   uuid.New().String(),
		URL:                  "https://example.com",
		ContractStartDate:    time.Now().UTC().Truncate(24 * time.Hour),
		ContractLengthMonths: 12,
		PlanTier:             clientstore.TierStarter,
		Status:               clientstore.ClientActive,
	}
	require.NoError(t, clientstore.New(dbManager.WithoutTransaction()).CreateClient(ctx, client))

	return &testEnv{
		ctx:         ctx,
		db:          dbManager,
		registry:    registry,
		plans:       planEngine,
		exec:        execservice.New(dbManager, registry, resolver, planEngine, nil, time.Second),
		checkpoints: checkpointservice.New(dbManager, registry, planEngine, nil, time.Second),
		client:      client,
	}
}

// executedTask creates a plan and runs its first task with the given tool
// response.
func executedTask(t *testing.T, env *testEnv, planType string, response json.RawMessage, fail error) *planstore.Plan {
	t.Helper()
	template, ok := plantemplates.Get(planType)
	require.True(t, ok)
	env.registry.Register(&tooling.EchoTool{
		ToolName: template.Steps[0].Tool,
		Response: response,
		Fail:     fail,
	})

	plan, err := env.plans.CreatePlan(env.ctx, planservice.CreatePlanRequest{
		ClientID: env.client.ID,
		PlanType: planType,
	})
	require.NoError(t, err)

	_, err = env.exec.ExecuteTask(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	return plan
}

func TestUnit_CheckpointService_ScoreAboveThresholdPasses(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"success":true,"score":0.85,"summary":"content is healthy"}`), nil)

	checkpoint, err := env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointPass, checkpoint.Result)
	require.Equal(t, planstore.MethodAutomatic, checkpoint.Method)
	require.NotNil(t, checkpoint.Confidence)
	require.InDelta(t, 0.85, *checkpoint.Confidence, 0.001)
	require.Contains(t, checkpoint.Reasoning, "content is healthy")

	// A passing checkpoint leaves the plan alone.
	got, err := env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanActive, got.Status)
}

func TestUnit_CheckpointService_BorderlineScoreNeedsReview(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"score":0.5}`), nil)

	checkpoint, err := env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointNeedsReview, checkpoint.Result)

	// Without a KV backend the review queue reads empty but never errors.
	items, err := env.checkpoints.ListReviewQueue(env.ctx, 10)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestUnit_CheckpointService_FailureBranchesPerPolicy(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh, nil,
		errors.New("editor backend down"))

	checkpoint, err := env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointFail, checkpoint.Result)
	require.Contains(t, checkpoint.Reasoning, "editor backend down")

	// content_refresh branches to a followup audit and pauses the original.
	got, err := env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanPaused, got.Status)

	clientPlans, err := env.plans.GetClientPlans(env.ctx, env.client.ID)
	require.NoError(t, err)
	require.Len(t, clientPlans, 2)

	var branch *planstore.Plan
	for _, p := range clientPlans {
		if p.ID != plan.ID {
			branch = p
		}
	}
	require.NotNil(t, branch)
	require.Equal(t, plantemplates.PlanFollowupAudit, branch.PlanType)
	require.Equal(t, planstore.PlanActive, branch.Status)
	require.NotNil(t, branch.DependsOnPlanID)
	require.Equal(t, plan.ID, *branch.DependsOnPlanID)
}

func TestUnit_CheckpointService_FailurePausesAuditPlan(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanTechnicalAudit, nil,
		errors.New("crawler unreachable"))

	checkpoint, err := env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointFail, checkpoint.Result)

	got, err := env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanPaused, got.Status)
}

func TestUnit_CheckpointService_RejectsUnexecutedTasks(t *testing.T) {
	env := SetupEvaluator(t)

	plan, err := env.plans.CreatePlan(env.ctx, planservice.CreatePlanRequest{
		ClientID: env.client.ID,
		PlanType: plantemplates.PlanTechnicalAudit,
	})
	require.NoError(t, err)

	_, err = env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)
	_, err = env.checkpoints.ManualEvaluate(env.ctx, plan.ID, 1, planstore.CheckpointPass, "looks good")
	require.ErrorIs(t, err, apiframework.ErrInvalidState)
}

func TestUnit_CheckpointService_ManualEvaluate(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"score":0.5}`), nil)

	_, err := env.checkpoints.ManualEvaluate(env.ctx, plan.ID, 1, planstore.CheckpointResult("maybe"), "")
	require.Error(t, err)

	checkpoint, err := env.checkpoints.ManualEvaluate(env.ctx, plan.ID, 1, planstore.CheckpointPass, "verified by hand")
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointPass, checkpoint.Result)
	require.Equal(t, planstore.MethodManual, checkpoint.Method)
	require.Nil(t, checkpoint.Confidence)
	require.Equal(t, "verified by hand", checkpoint.Reasoning)

	// The manual verdict replaces any automatic one on the same task.
	task, err := planstore.New(env.db.WithoutTransaction()).GetTask(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	stored, err := planstore.New(env.db.WithoutTransaction()).GetCheckpointForTask(env.ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, checkpoint.ID, stored.ID)
}

func TestUnit_CheckpointService_EvaluateWithAuditUsesFreshSignal(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"score":0.5}`), nil)

	// The stored output is borderline; the re-audit reports a strong score.
	env.registry.Register(&tooling.EchoTool{
		ToolName: ctaflow.ToolAudit,
		Response: json.RawMessage(`{"score":0.95,"summary":"recovered"}`),
	})

	checkpoint, err := env.checkpoints.EvaluateWithAudit(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointPass, checkpoint.Result)
	require.Equal(t, planstore.MethodAutomaticWithAudit, checkpoint.Method)
	require.Contains(t, checkpoint.Reasoning, "recovered")
}

func TestUnit_CheckpointService_FailedReauditIsInconclusive(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"score":0.5}`), nil)

	env.registry.Register(&tooling.EchoTool{
		ToolName: ctaflow.ToolAudit,
		Fail:     errors.New("crawler unreachable"),
	})

	checkpoint, err := env.checkpoints.EvaluateWithAudit(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointNeedsReview, checkpoint.Result)
	require.Contains(t, checkpoint.Reasoning, "re-audit failed")
}

func TestUnit_CheckpointService_ReassessmentKeepsCompletedPlan(t *testing.T) {
	env := SetupEvaluator(t)

	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`{"success":true,"score":0.8}`), nil)
	for _, n := range []int{2, 3} {
		_, err := env.exec.ExecuteTask(env.ctx, plan.ID, n)
		require.NoError(t, err)
	}

	got, err := env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, got.Status)
	require.NotNil(t, got.ReassessAfter)

	// Wind the clock so the completed plan comes due for reassessment.
	store := planstore.New(env.db.WithoutTransaction())
	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.SetPlanReassessAfter(env.ctx, plan.ID, &past))

	due, err := reassessservice.New(env.db, nil).ListDue(env.ctx, env.client.ID)
	require.NoError(t, err)
	found := false
	for _, group := range due {
		for _, p := range group {
			if p.ID == plan.ID {
				found = true
			}
		}
	}
	require.True(t, found, "overdue completed plan must surface as due")

	// A healthy re-audit leaves the completed plan untouched.
	env.registry.Register(&tooling.EchoTool{
		ToolName: ctaflow.ToolAudit,
		Response: json.RawMessage(`{"score":0.9,"summary":"holding up"}`),
	})
	checkpoint, err := env.checkpoints.EvaluateWithAudit(env.ctx, plan.ID, 3)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointPass, checkpoint.Result)
	require.Equal(t, planstore.MethodAutomaticWithAudit, checkpoint.Method)

	got, err = env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, got.Status)

	// A borderline re-audit flags for review without reopening the plan.
	env.registry.Register(&tooling.EchoTool{
		ToolName: ctaflow.ToolAudit,
		Response: json.RawMessage(`{"score":0.5}`),
	})
	checkpoint, err = env.checkpoints.EvaluateWithAudit(env.ctx, plan.ID, 3)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointNeedsReview, checkpoint.Result)

	got, err = env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, got.Status)

	// A failing re-audit opens a followup branch; the finished work is never
	// un-completed.
	env.registry.Register(&tooling.EchoTool{
		ToolName: ctaflow.ToolAudit,
		Response: json.RawMessage(`{"success":false,"summary":"rankings regressed"}`),
	})
	checkpoint, err = env.checkpoints.EvaluateWithAudit(env.ctx, plan.ID, 3)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointFail, checkpoint.Result)

	got, err = env.plans.GetPlan(env.ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, planstore.PlanCompleted, got.Status)

	clientPlans, err := env.plans.GetClientPlans(env.ctx, env.client.ID)
	require.NoError(t, err)
	require.Len(t, clientPlans, 2)
	var branch *planstore.Plan
	for _, p := range clientPlans {
		if p.ID != plan.ID {
			branch = p
		}
	}
	require.NotNil(t, branch)
	require.Equal(t, plantemplates.PlanFollowupAudit, branch.PlanType)
	require.Equal(t, planstore.PlanActive, branch.Status)
	require.NotNil(t, branch.DependsOnPlanID)
	require.Equal(t, plan.ID, *branch.DependsOnPlanID)
}

func TestUnit_CheckpointService_UnreadableOutputNeedsReview(t *testing.T) {
	env := SetupEvaluator(t)
	plan := executedTask(t, env, plantemplates.PlanContentRefresh,
		json.RawMessage(`"just a string"`), nil)

	checkpoint, err := env.checkpoints.Evaluate(env.ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, planstore.CheckpointNeedsReview, checkpoint.Result)
}
