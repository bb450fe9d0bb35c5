package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/install"
)

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	var (
		check  bool
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "update [PACKAGE...]",
		Short: "Update installed packages",
		Long: `Update outdated packages. Without arguments every outdated package is
updated in groups that share dependencies; the client itself is updated
last. Use --check to only list the pending updates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				if !noSync {
					if err := a.Store.RequestRepoUpdate(ctx, false, false); err != nil {
						logger.Warn(a.Messages.Error(err))
					}
				}
				if check {
					return runUpdateCheck(ctx, cmd, a)
				}
				return runUpdate(ctx, cmd, a, args)
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "List pending updates without installing them")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Use the local catalog without refreshing it")

	return cmd
}

type updateCheck struct {
	Groups [][]string `json:"groups"`
	Self   []string   `json:"self,omitempty"`
	Count  int        `json:"count"`
}

func runUpdateCheck(ctx context.Context, cmd *cobra.Command, a *App) error {
	res := updateCheck{Groups: [][]string{}}
	if err := a.Call(ctx, func() {
		groups, self := a.Installer.OutdatedGroups()
		for _, g := range groups {
			res.Groups = append(res.Groups, g.Names())
		}
		if self != nil {
			res.Self = self.Names()
		}
		res.Count = a.Store.OutdatedCount()
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		return printJSON(out, res)
	}
	_, _ = fmt.Fprintln(out, a.Messages.Updates(res.Count))
	for _, g := range res.Groups {
		_, _ = fmt.Fprintf(out, "  %s\n", strings.Join(g, ", "))
	}
	if res.Self != nil {
		_, _ = fmt.Fprintf(out, "  %s (self, installed last)\n", strings.Join(res.Self, ", "))
	}
	return nil
}

func runUpdate(ctx context.Context, cmd *cobra.Command, a *App, names []string) error {
	var jobs []*install.Job
	var startErr error
	if err := a.Call(ctx, func() {
		if len(names) == 0 {
			jobs = a.Installer.UpdateAll(ctx, true)
			return
		}
		for _, name := range names {
			st := a.Store.State(name)
			if st == nil || !st.IsOutdated() {
				logger.Info("No update available", logger.Fields{"package": name})
				continue
			}
			job, err := a.Installer.StartInstall(ctx, st.Variant(), true, true)
			if err != nil {
				startErr = err
				return
			}
			jobs = append(jobs, job)
		}
	}); err != nil {
		return err
	}
	if startErr != nil {
		for _, j := range jobs {
			j.Cancel()
		}
		return localize(a.Messages, startErr)
	}
	if len(jobs) == 0 && len(a.Reports()) == 0 && !wantJSON(a.Config) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), a.Messages.Updates(0))
		return nil
	}
	err := reportJobs(ctx, cmd, a, jobs)
	if err == nil {
		if reports := a.Reports(); len(reports) > 0 {
			return localize(a.Messages, reports[0])
		}
	}
	return err
}
