package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/pkg/platform"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show client status",
		Long:  "Display the catalog version, pending updates and running installs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				return runStatus(ctx, cmd, a)
			})
		},
	}

	return cmd
}

type statusInfo struct {
	Repository     string `json:"repository"`
	Timestamp      int64  `json:"timestamp"`
	ETag           string `json:"etag,omitempty"`
	Placeholder    bool   `json:"placeholder"`
	Packages       int    `json:"packages"`
	Outdated       int    `json:"outdated"`
	InstallTasks   int    `json:"install_tasks"`
	Sessions       int    `json:"sessions"`
	DefaultChannel string `json:"default_channel"`
	LastUpdate     string `json:"last_update_error,omitempty"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, a *App) error {
	info := statusInfo{Repository: a.Fetcher.URL()}
	if err := a.Call(ctx, func() {
		c := a.Store.Catalog()
		info.Timestamp = c.Timestamp
		info.ETag = c.ETag
		info.Placeholder = c.IsPlaceholder
		info.Packages = len(c.Packages)
		info.Outdated = a.Store.OutdatedCount()
		info.InstallTasks = a.Store.NumberOfInstallTasks()
		info.Sessions = a.Store.NumberOfSessions()
		info.DefaultChannel = a.Store.DefaultChannel().String()
		if err := a.Store.LastRepoUpdateResult(); err != nil {
			info.LastUpdate = a.Messages.Error(err)
		}
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		return printJSON(out, info)
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Repository:\t%s\n", info.Repository)
	if info.Placeholder {
		_, _ = fmt.Fprintln(tw, "Catalog:\tnot synchronized")
	} else {
		_, _ = fmt.Fprintf(tw, "Catalog:\t%d packages, %s\n", info.Packages, time.Unix(info.Timestamp, 0).UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(tw, "Updates:\t%s\n", a.Messages.Updates(info.Outdated))
	_, _ = fmt.Fprintf(tw, "Default channel:\t%s\n", info.DefaultChannel)
	_, _ = fmt.Fprintf(tw, "Install tasks:\t%d\n", info.InstallTasks)
	_, _ = fmt.Fprintf(tw, "Sessions:\t%d\n", info.Sessions)
	if info.LastUpdate != "" {
		_, _ = fmt.Fprintf(tw, "Last sync:\t%s\n", info.LastUpdate)
	}
	return tw.Flush()
}

// NewSessionsCmd creates the sessions command.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List installer sessions",
		Long:  "List the installer sessions the client owns on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(_ context.Context, a *App) error {
				return runSessions(cmd, a)
			})
		},
	}

	cmd.AddCommand(newSessionsAbandonCmd())

	return cmd
}

type sessionRow struct {
	ID        int     `json:"id"`
	Package   string  `json:"package"`
	Committed bool    `json:"committed"`
	Parent    int     `json:"parent,omitempty"`
	Children  []int   `json:"children,omitempty"`
	Progress  float32 `json:"progress"`
}

func runSessions(cmd *cobra.Command, a *App) error {
	infos, err := a.Device.MySessions()
	if err != nil {
		return err
	}
	rows := make([]sessionRow, 0, len(infos))
	for _, info := range infos {
		row := sessionRow{
			ID:        info.ID,
			Package:   info.AppPackageName,
			Committed: info.Committed,
			Children:  info.ChildSessionIDs,
			Progress:  info.Progress,
		}
		if info.ParentSessionID != platform.InvalidSessionID {
			row.Parent = info.ParentSessionID
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No installer sessions")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPACKAGE\tCOMMITTED\tPARENT\tPROGRESS")
	for _, r := range rows {
		pkg := r.Package
		if len(r.Children) > 0 {
			pkg = fmt.Sprintf("(%d children)", len(r.Children))
		}
		parent := "-"
		if r.Parent != 0 {
			parent = strconv.Itoa(r.Parent)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%.0f%%\n", r.ID, pkg, r.Committed, parent, r.Progress*100)
	}
	return tw.Flush()
}

func newSessionsAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon ID...",
		Short: "Abandon installer sessions",
		Long:  "Abandon installer sessions. Abandoning a parent session abandons its children.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid session id %q", arg)
				}
				ids = append(ids, id)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				for _, id := range ids {
					var ok bool
					if err := a.Call(ctx, func() { ok = a.Sessions.Abandon(id) }); err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("unable to abandon session %d", id)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Abandoned session %d\n", id)
				}
				return nil
			})
		},
	}

	return cmd
}
