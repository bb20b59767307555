// session_cmd.go holds the interactive tool session subcommands.
package smokeyctl

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage interactive tool sessions.",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <task-id> <tool>",
	Short: "Create a session for an interactive tool.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		payload, _ := cmd.Flags().GetString("payload")
		var raw json.RawMessage
		if payload != "" {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload is not valid JSON")
			}
			raw = json.RawMessage(payload)
		}
		session, err := sdk.SessionService.CreateSession(ctx, args[0], args[1], raw)
		if err != nil {
			return err
		}
		printOutput(session)
		return nil
	},
}

var sessionLaunchCmd = &cobra.Command{
	Use:   "launch <session-id>",
	Short: "Launch a session and print its routing descriptor.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		descriptor, err := sdk.SessionService.LaunchSession(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(descriptor)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List the sessions opened for a task.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		sessions, err := sdk.SessionService.ListTaskSessions(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(sessions)
		return nil
	},
}

func init() {
	sessionCreateCmd.Flags().String("payload", "", "JSON payload handed to the tool")
	sessionCmd.AddCommand(sessionCreateCmd, sessionLaunchCmd, sessionListCmd)
}
