// timeline_cmd.go holds the timeline scheduler and reassessment subcommands.
package smokeyctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Manage client timelines.",
}

var timelineShowCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Show a client's phase timeline.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		phases, err := sdk.TimelineService.GetClientTimeline(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(phases)
		return nil
	},
}

var timelineInitCmd = &cobra.Command{
	Use:   "init <client-id>",
	Short: "Instantiate the timeline from the client's tier and contract.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		phases, err := sdk.TimelineService.InstantiateTimeline(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(phases)
		return nil
	},
}

var timelineRegenCmd = &cobra.Command{
	Use:   "regen <client-id>",
	Short: "Regenerate pending phases after a scope change.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		phases, err := sdk.TimelineService.RegenerateTimeline(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(phases)
		return nil
	},
}

var timelineRescheduleCmd = &cobra.Command{
	Use:   "reschedule <phase-id> <date>",
	Short: "Move a pending phase to a new date (YYYY-MM-DD).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", args[1], err)
		}
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		phase, err := sdk.TimelineService.ReschedulePhase(ctx, args[0], date)
		if err != nil {
			return err
		}
		printOutput(phase)
		return nil
	},
}

var timelineSkipCmd = &cobra.Command{
	Use:   "skip <phase-id>",
	Short: "Mark a pending phase as skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		phase, err := sdk.TimelineService.SkipPhase(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(phase)
		return nil
	},
}

var reassessCmd = &cobra.Command{
	Use:   "reassess",
	Short: "Inspect and sweep the reassessment queue.",
}

var reassessListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed plans due for reassessment, grouped by date.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		clientID, _ := cmd.Flags().GetString("client")
		grouped, err := sdk.ReassessService.ListDue(ctx, clientID)
		if err != nil {
			return err
		}
		printOutput(grouped)
		return nil
	},
}

var reassessSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Publish every due reassessment group on the bus.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		total, err := sdk.ReassessService.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d plans due\n", total)
		return nil
	},
}

func init() {
	reassessListCmd.Flags().String("client", "", "Restrict to one client")

	timelineCmd.AddCommand(timelineShowCmd, timelineInitCmd, timelineRegenCmd, timelineRescheduleCmd, timelineSkipCmd)
	reassessCmd.AddCommand(reassessListCmd, reassessSweepCmd)
}
