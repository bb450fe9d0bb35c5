package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/internal/logger"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the package catalog",
		Long: `Download the signed repository metadata, verify it and update the
local catalog. An unchanged repository costs one conditional request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				return runSync(ctx, cmd, a)
			})
		},
	}

	return cmd
}

type syncResult struct {
	Timestamp int64  `json:"timestamp"`
	ETag      string `json:"etag,omitempty"`
	Packages  int    `json:"packages"`
	Outdated  int    `json:"outdated"`
}

func runSync(ctx context.Context, cmd *cobra.Command, a *App) error {
	logger.Debug("Synchronizing repository", logger.Fields{"url": a.Fetcher.URL()})
	if err := a.Store.RequestRepoUpdate(ctx, true, true); err != nil {
		return localize(a.Messages, err)
	}

	var res syncResult
	if err := a.Call(ctx, func() {
		c := a.Store.Catalog()
		res = syncResult{Timestamp: c.Timestamp, ETag: c.ETag, Packages: len(c.Packages), Outdated: a.Store.OutdatedCount()}
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		return printJSON(out, res)
	}
	_, _ = fmt.Fprintf(out, "Repository synchronized: %d packages\n", res.Packages)
	_, _ = fmt.Fprintln(out, a.Messages.Updates(res.Outdated))
	return nil
}
