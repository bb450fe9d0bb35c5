package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/pkg/cache"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package cache",
		Long:  "Show information about, prune and clean the compressed package cache",
	}

	cmd.AddCommand(
		newCacheInfoCmd(),
		newCachePruneCmd(),
		newCacheCleanCmd(),
	)

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size and content of the package cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(_ context.Context, a *App) error {
				if wantJSON(a.Config) {
					info, err := a.Cache.Info()
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), info)
				}
				return printOperation(cmd, cache.NewOperation(a.Cache).Info)
			})
		},
	}

	return cmd
}

func newCachePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune the package cache",
		Long: `Remove cached versions that are not newer than the installed version,
then versions older than the maximum age, then the oldest versions until
the cache fits the maximum size.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				op := cache.NewOperation(a.Cache)
				return printOperation(cmd, func() (string, error) { return op.Prune(ctx) })
			})
		},
	}

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the package cache",
		Long:  "Remove every cached package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(_ context.Context, a *App) error {
				return printOperation(cmd, cache.NewOperation(a.Cache).Clean)
			})
		},
	}

	return cmd
}

func printOperation(cmd *cobra.Command, op func() (string, error)) error {
	msg, err := op()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
