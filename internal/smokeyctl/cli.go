// cli.go holds the smokeyctl entrypoint (Main), root command, and SDK setup.
package smokeyctl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smokeyworks/smokey/clientsdk"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smokeyctl",
	Short: "Operator CLI for the planning engine.",
	Long: `Smokeyctl drives the planning engine over its HTTP API: manage clients,
plans, timelines, checkpoints and the reassessment queue.

  Quickstart:
    smokeyctl client create --url https://example.com --tier starter --start 2026-09-01 --months 12
    smokeyctl client activate <client-id>
    smokeyctl timeline init <client-id>
    smokeyctl plan list <client-id>
    smokeyctl plan execute <plan-id> 1

  Configuration comes from .smokey/config.yaml (base_url, token) or flags.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("server", "", "Engine base URL (default: base_url from .smokey/config.yaml)")
	f.String("token", "", "Bearer token (default: token from .smokey/config.yaml)")

	rootCmd.AddCommand(clientCmd, planCmd, timelineCmd, reassessCmd, sessionCmd)
}

// Main runs the smokeyctl CLI.
func Main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newSDK builds the SDK client from config and flags, with a signal-aware
// context for the lifetime of one command.
func newSDK(cmd *cobra.Command) (context.Context, context.CancelFunc, *clientsdk.Client, error) {
	cfg, err := loadLocalConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	flags := cmd.Root().PersistentFlags()
	if server, _ := flags.GetString("server"); server != "" {
		cfg.BaseURL = server
	}
	if token, _ := flags.GetString("token"); token != "" {
		cfg.Token = token
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sdk, err := clientsdk.NewClient(ctx, clientsdk.Config{BaseURL: cfg.BaseURL, Token: cfg.Token}, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, sdk, nil
}
