// client_cmd.go holds the client contract subcommands.
package smokeyctl

import (
	"fmt"
	"time"

	"github.com/smokeyworks/smokey/clientservice"
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage client contracts.",
}

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a client contract.",
	RunE:  runClientCreate,
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clients.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		clients, err := sdk.ClientService.ListClients(ctx)
		if err != nil {
			return err
		}
		printOutput(clients)
		return nil
	},
}

var clientGetCmd = &cobra.Command{
	Use:   "get <client-id>",
	Short: "Show one client.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		client, err := sdk.ClientService.GetClient(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(client)
		return nil
	},
}

var clientActivateCmd = &cobra.Command{
	Use:   "activate <client-id>",
	Short: "Activate a pending contract.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		client, err := sdk.ClientService.ActivateClient(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(client)
		return nil
	},
}

var clientCloseCmd = &cobra.Command{
	Use:   "close <client-id>",
	Short: "Close an active contract.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		client, err := sdk.ClientService.CloseClient(ctx, args[0])
		if err != nil {
			return err
		}
		printOutput(client)
		return nil
	},
}

var clientDeleteCmd = &cobra.Command{
	Use:   "delete <client-id>",
	Short: "Delete a non-active client.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, sdk, err := newSDK(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		if err := sdk.ClientService.DeleteClient(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("client removed")
		return nil
	},
}

func init() {
	clientCreateCmd.Flags().String("url", "", "Client site URL (required)")
	clientCreateCmd.Flags().String("tier", "starter", "Plan tier: starter, growth or scale")
	clientCreateCmd.Flags().String("start", "", "Contract start date, YYYY-MM-DD (default: today)")
	clientCreateCmd.Flags().Int("months", 12, "Contract length in months")
	_ = clientCreateCmd.MarkFlagRequired("url")

	clientCmd.AddCommand(clientCreateCmd, clientListCmd, clientGetCmd, clientActivateCmd, clientCloseCmd, clientDeleteCmd)
}

func runClientCreate(cmd *cobra.Command, _ []string) error {
	ctx, cancel, sdk, err := newSDK(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	rawURL, _ := cmd.Flags().GetString("url")
	tier, _ := cmd.Flags().GetString("tier")
	start, _ := cmd.Flags().GetString("start")
	months, _ := cmd.Flags().GetInt("months")

	startDate := time.Now().UTC().Truncate(24 * time.Hour)
	if start != "" {
		startDate, err = time.Parse("2006-01-02", start)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", start, err)
		}
	}

	client, err := sdk.ClientService.CreateClient(ctx, clientservice.CreateClientRequest{
		URL:                  rawURL,
		ContractStartDate:    startDate,
		ContractLengthMonths: months,
		PlanTier:             clientstore.PlanTier(tier),
	})
	if err != nil {
		return err
	}
	printOutput(client)
	return nil
}
