// plan_cmd.go holds the plan engine, executor and checkpoint subcommands.
package smokeyctl

import (
	"fmt"
	"strconv"

	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans, tasks and checkpoints.",
}

var planNewCmd = &cobra.Command{
	Use:   "new <client-id> <plan-type>",
	Short: "Create a plan for a client.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanNew,
}

var planGetCmd = &cobra.Command{
	Use:   "get <plan-id>",
	Short: "Show one plan.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		plan, err := sdk.PlanService.GetPlan(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(plan)
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list <client-id>",
	Short: "List a client's plans.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		status, _ := cmd.Flags().GetString("status")
		var plans []*planstore.Plan
		switch status {
		case "active":
			plans, err = sdk.PlanService.GetActivePlans(ctx, args[0])
		case "queued":
			plans, err = sdk.PlanService.GetQueuedPlans(ctx, args[0])
		default:
			plans, err = sdk.PlanService.GetClientPlans(ctx, args[0])
		}
		if err != nil {
			return err
		}
		printOutput(plans)
		return nil
	},
}

var planTasksCmd = &cobra.Command{
	Use:   "tasks <plan-id>",
	Short: "List a plan's tasks in order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		tasks, err := sdk.PlanService.ListTasks(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(tasks)
		return nil
	},
}

var planNextCmd = &cobra.Command{
	Use:   "next <plan-id>",
	Short: "Show the next pending task, if any.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		task, err := sdk.PlanService.GetNextTask(ctx, args[0])
		if err != nil {
			return err
		}
		if task == nil {
			fmt.Println("plan exhausted")
			return nil
		}
		printOutput(task)
		return nil
	},
}

var planExecuteCmd = &cobra.Command{
	Use:   "execute <plan-id> <task-number>",
	Short: "Execute one task through its tool.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskNumber, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid task number %q: %w", args[1], err)
		}
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		task, err := sdk.ExecService.ExecuteTask(ctx, args[0], taskNumber)
		if err != nil {
			return err
		}
		printOutput(task)
		return nil
	},
}

var planBranchCmd = &cobra.Command{
	Use:   "branch <plan-id> <new-plan-type>",
	Short: "Branch a plan into a new plan type.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		reason, _ := cmd.Flags().GetString("reason")
		branch, err := sdk.PlanService.BranchPlan(ctx, args[0], args[1], reason)
		if err != nil {
			return err
		}
		printOutput(branch)
		return nil
	},
}

var planCheckpointCmd = &cobra.Command{
	Use:   "checkpoint <plan-id> <task-number>",
	Short: "Evaluate a checkpoint on an executed task.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskNumber, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid task number %q: %w", args[1], err)
		}
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		audit, _ := cmd.Flags().GetBool("audit")
		manual, _ := cmd.Flags().GetString("manual")
		reasoning, _ := cmd.Flags().GetString("reasoning")

		var checkpoint *planstore.Checkpoint
		switch {
		case manual != "":
			checkpoint, err = sdk.CheckpointService.ManualEvaluate(ctx, args[0], taskNumber, planstore.CheckpointResult(manual), reasoning)
		case audit:
			checkpoint, err = sdk.CheckpointService.EvaluateWithAudit(ctx, args[0], taskNumber)
		default:
			checkpoint, err = sdk.CheckpointService.Evaluate(ctx, args[0], taskNumber)
		}
		if err != nil {
			return err
		}
		printOutput(checkpoint)
		return nil
	},
}

var planReviewQueueCmd = &cobra.Command{
	Use:   "review-queue",
	Short: "List checkpoints waiting for operator review.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		limit, _ := cmd.Flags().GetInt64("limit")
		items, err := sdk.CheckpointService.ListReviewQueue(ctx, limit)
		if err != nil {
			return err
		}
		printOutput(items)
		return nil
	},
}

var planSuggestCmd = &cobra.Command{
	Use:   "suggest <client-id>",
	Short: "Suggest the next plan type for a client.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		suggestion, err := sdk.PlanService.SuggestPlan(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(suggestion)
		return nil
	},
}

func planTransitionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, sdk, err := newSDK(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			var plan *planstore.Plan
			switch action {
			case "pause":
				plan, err = sdk.PlanService.PausePlan(ctx, args[0])
			case "resume":
				plan, err = sdk.PlanService.ResumePlan(ctx, args[0])
			case "activate":
				plan, err = sdk.PlanService.ActivatePlan(ctx, args[0])
			case "abort":
				plan, err = sdk.PlanService.AbortPlan(ctx, args[0])
			}
			if err != nil {
				return err
			}
			printOutput(plan)
			return nil
		},
	}
}

func init() {
	planNewCmd.Flags().String("objective", "", "Free-form objective for the plan")
	planNewCmd.Flags().Int("month", 0, "1-based contract month to schedule for (0: run now)")
	planNewCmd.Flags().String("depends-on", "", "Predecessor plan ID")
	planNewCmd.Flags().Bool("blocking", false, "Block activation until the predecessor completes")

	planListCmd.Flags().String("status", "", "Filter: active or queued (default: all)")
	planBranchCmd.Flags().String("reason", "", "Why the branch is needed")
	planCheckpointCmd.Flags().Bool("audit", false, "Re-run the audit tool before judging")
	planCheckpointCmd.Flags().String("manual", "", "Record an operator verdict: pass, fail or needs_review")
	planCheckpointCmd.Flags().String("reasoning", "", "Reasoning for a manual verdict")
	planReviewQueueCmd.Flags().Int64("limit", 100, "Maximum number of items")

	planCmd.AddCommand(
		planNewCmd,
		planGetCmd,
		planListCmd,
		planTasksCmd,
		planNextCmd,
		planExecuteCmd,
		planBranchCmd,
		planCheckpointCmd,
		planReviewQueueCmd,
		planSuggestCmd,
		planTransitionCmd("pause <plan-id>", "Pause an active plan.", "pause"),
		planTransitionCmd("resume <plan-id>", "Resume a paused plan.", "resume"),
		planTransitionCmd("activate <plan-id>", "Activate a queued plan.", "activate"),
		planTransitionCmd("abort <plan-id>", "Abort a plan.", "abort"),
	)
}

func runPlanNew(cmd *cobra.Command, args []string) error {
	ctx, cancel, sdk, err := newSDK(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	objective, _ := cmd.Flags().GetString("objective")
	month, _ := cmd.Flags().GetInt("month")
	dependsOn, _ := cmd.Flags().GetString("depends-on")
	blocking, _ := cmd.Flags().GetBool("blocking")

	req := planservice.CreatePlanRequest{
		ClientID:  args[0],
		PlanType:  args[1],
		Objective: objective,
		Blocking:  blocking,
	}
	if month > 0 {
		req.ScheduledMonth = &month
	}
	if dependsOn != "" {
		req.DependsOnPlanID = &dependsOn
	}

	plan, err := sdk.PlanService.CreatePlan(ctx, req)
	if err != nil {
		return err
	}
	printOutput(plan)
	return nil
}
