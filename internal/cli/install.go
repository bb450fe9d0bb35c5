package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/hooks"
	"github.com/grapheneos/appstore/pkg/install"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "install PACKAGE...",
		Short: "Install packages",
		Long: `Install one or more packages from the catalog.
Missing dependencies are installed in the same installer session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				if !noSync {
					if err := a.Store.RequestRepoUpdate(ctx, false, false); err != nil {
						logger.Warn(a.Messages.Error(err))
					}
				}
				return runInstall(ctx, cmd, a, args)
			})
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Use the local catalog without refreshing it")

	return cmd
}

// progressWriter is where progress bars go, nil for JSON output.
func progressWriter(cmd *cobra.Command, a *App) io.Writer {
	if wantJSON(a.Config) {
		return nil
	}
	return cmd.ErrOrStderr()
}

type jobResult struct {
	Packages []string `json:"packages"`
	Error    string   `json:"error,omitempty"`
}

func runInstall(ctx context.Context, cmd *cobra.Command, a *App, names []string) error {
	jobs := make([]*install.Job, 0, len(names))
	for _, name := range names {
		var (
			job *install.Job
			err error
		)
		if callErr := a.Call(ctx, func() {
			job, err = a.Installer.StartInstallByName(ctx, name, true)
		}); callErr != nil {
			return callErr
		}
		if err != nil {
			return localize(a.Messages, err)
		}
		jobs = append(jobs, job)
	}
	return reportJobs(ctx, cmd, a, jobs)
}

// reportJobs waits for jobs in order and prints one line per job. It
// fails when any job failed.
func reportJobs(ctx context.Context, cmd *cobra.Command, a *App, jobs []*install.Job) error {
	out := cmd.OutOrStdout()
	results := make([]jobResult, 0, len(jobs))
	var firstErr error
	for _, job := range jobs {
		res := jobResult{Packages: job.Packages()}
		if err := trackJob(ctx, progressWriter(cmd, a), job); err != nil {
			err = localize(a.Messages, err)
			res.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			if !wantJSON(a.Config) {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
			}
		} else if !wantJSON(a.Config) {
			_, _ = fmt.Fprintln(out, a.Messages.Success(job.Request()))
		}
		results = append(results, res)
	}
	if wantJSON(a.Config) {
		if err := printJSON(out, results); err != nil {
			return err
		}
	}
	return firstErr
}

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall PACKAGE...",
		Short: "Uninstall packages",
		Long:  "Remove installed packages from the device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				return runUninstall(ctx, cmd, a, args)
			})
		},
	}

	return cmd
}

func runUninstall(ctx context.Context, cmd *cobra.Command, a *App, names []string) error {
	for _, name := range names {
		if err := a.Installer.Uninstall(ctx, name); err != nil {
			return localize(a.Messages, err)
		}
		_ = a.Call(ctx, func() { a.Store.OnPackageChanged(name) })
		a.Hooks.Notify(ctx, hooks.Uninstalled, hooks.Context{Packages: []string{name}})
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), a.Messages.Success(errors.InstallerRequest{
			Packages:  []errors.InstallerPackage{{Name: name, Label: name}},
			Uninstall: true,
		}))
	}
	return nil
}
