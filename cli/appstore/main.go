package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/internal/cli"
)

var (
	configPath   string
	verbose      bool
	outputFormat string
	language     string
	metricsAddr  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appstore",
		Short: "A client for a signed Android app repository",
		Long: `appstore keeps the packages of a device in sync with a signed app
repository:
- Client: sync, install, update and uninstall packages
- Maintenance: release channels, installer sessions and the package cache
- Tooling: sign metadata and pack apks for a repository`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json)")
	cmd.PersistentFlags().StringVar(&language, "lang", "", "language of user messages")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.OutputFormat = &outputFormat
	cli.Language = &language
	cli.MetricsAddr = &metricsAddr

	// Add subcommands
	cmd.AddCommand(
		cli.NewSyncCmd(),
		cli.NewListCmd(),
		cli.NewInfoCmd(),
		cli.NewInstallCmd(),
		cli.NewUninstallCmd(),
		cli.NewUpdateCmd(),
		cli.NewStatusCmd(),
		cli.NewSessionsCmd(),
		cli.NewChannelCmd(),
		cli.NewCacheCmd(),
		cli.NewConfigCmd(),
		cli.NewHooksCmd(),
		cli.NewRepoCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
