package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/pkg/cache"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/state"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var (
		installed bool
		updates   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog packages",
		Long: `List the packages of the local catalog with their state.

Use --installed to show installed packages only and --updates to show
packages with an update available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				return runList(ctx, cmd, a, installed, updates)
			})
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "Only installed packages")
	cmd.Flags().BoolVar(&updates, "updates", false, "Only packages with an update available")

	return cmd
}

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info PACKAGE",
		Short: "Show package details",
		Long:  "Display the selected variant, dependencies and apks of a catalog package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				return runInfo(ctx, cmd, a, args[0])
			})
		},
	}

	return cmd
}

type packageRow struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Installed int64  `json:"installed_version,omitempty"`
	Available int64  `json:"available_version"`
	Channel   string `json:"channel"`
	Status    string `json:"status"`
}

func newPackageRow(a *App, st *state.PackageState) packageRow {
	v := st.Variant()
	row := packageRow{
		Name:      st.Name,
		Label:     v.Label,
		Available: v.VersionCode,
		Channel:   a.Store.PreferredChannel(st.Name).String(),
		Status:    st.Display().Kind.String(),
	}
	if st.OSInfo != nil {
		row.Installed = st.OSInfo.VersionCode
	}
	return row
}

func runList(ctx context.Context, cmd *cobra.Command, a *App, installed, updates bool) error {
	var rows []packageRow
	var placeholder bool
	if err := a.Call(ctx, func() {
		placeholder = a.Store.Catalog().IsPlaceholder
		for _, st := range a.Store.CurrentStates() {
			if st.Variant() == nil {
				continue
			}
			if installed && !st.IsInstalled() {
				continue
			}
			if updates && !st.IsOutdated() {
				continue
			}
			rows = append(rows, newPackageRow(a, st))
		}
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		if rows == nil {
			rows = []packageRow{}
		}
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		if placeholder {
			_, _ = fmt.Fprintln(out, "The catalog is empty, run sync first")
		} else {
			_, _ = fmt.Fprintln(out, "No packages found")
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PACKAGE\tLABEL\tINSTALLED\tAVAILABLE\tCHANNEL\tSTATUS")
	for _, r := range rows {
		inst := "-"
		if r.Installed != 0 {
			inst = strconv.FormatInt(r.Installed, 10)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.Name, truncate(r.Label, MaxLabelLength), inst, r.Available, r.Channel, r.Status)
	}
	return tw.Flush()
}

type apkRow struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
}

type packageInfo struct {
	packageRow
	VersionName  string   `json:"version_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	ReleaseNotes string   `json:"release_notes,omitempty"`
	Source       string   `json:"source"`
	Group        string   `json:"group,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Apks         []apkRow `json:"apks"`
	DownloadSize int64    `json:"download_size"`
}

func formatDependency(d catalog.Dependency) string {
	s := d.PackageName
	if d.MinVersion > 0 {
		s += " >= " + strconv.FormatInt(d.MinVersion, 10)
	}
	if d.Has(catalog.SkipIfMissing) {
		s += " (optional)"
	}
	return s
}

func runInfo(ctx context.Context, cmd *cobra.Command, a *App, name string) error {
	var info *packageInfo
	if err := a.Call(ctx, func() {
		st := a.Store.State(name)
		if st == nil || st.Variant() == nil {
			return
		}
		v := st.Variant()
		c := v.Container
		info = &packageInfo{
			packageRow:   newPackageRow(a, st),
			VersionName:  v.VersionName,
			Description:  v.Description,
			ReleaseNotes: v.ReleaseNotes,
			Source:       c.Source.String(),
			DownloadSize: st.DownloadSize(),
		}
		if info.Description == "" {
			info.Description = c.Description
		}
		if c.Group != nil {
			info.Group = c.Group.Name
		}
		for _, d := range v.Dependencies {
			info.Dependencies = append(info.Dependencies, formatDependency(d))
		}
		for _, apk := range v.CollectNeededApks(st.ResourceConfig()) {
			info.Apks = append(info.Apks, apkRow{Name: apk.Name, Type: apk.Type.String(), Size: apk.Size, CompressedSize: apk.CompressedSize})
		}
	}); err != nil {
		return err
	}
	if info == nil {
		return errors.Wrapf(errors.ErrPackageUnknown, "%s", name)
	}

	out := cmd.OutOrStdout()
	if wantJSON(a.Config) {
		return printJSON(out, info)
	}
	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Package:\t%s\n", info.Name)
	_, _ = fmt.Fprintf(tw, "Label:\t%s\n", info.Label)
	_, _ = fmt.Fprintf(tw, "Version:\t%d (%s)\n", info.Available, info.VersionName)
	if info.Installed != 0 {
		_, _ = fmt.Fprintf(tw, "Installed:\t%d\n", info.Installed)
	}
	_, _ = fmt.Fprintf(tw, "Channel:\t%s\n", info.Channel)
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", info.Status)
	_, _ = fmt.Fprintf(tw, "Source:\t%s\n", info.Source)
	if info.Group != "" {
		_, _ = fmt.Fprintf(tw, "Group:\t%s\n", info.Group)
	}
	if len(info.Dependencies) > 0 {
		_, _ = fmt.Fprintf(tw, "Dependencies:\t%s\n", strings.Join(info.Dependencies, ", "))
	}
	_, _ = fmt.Fprintf(tw, "Download size:\t%s\n", cache.FormatBytes(info.DownloadSize))
	if info.Description != "" {
		_, _ = fmt.Fprintf(tw, "Description:\t%s\n", info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(info.Apks) > 0 {
		_, _ = fmt.Fprintln(out, "\nApks:")
		tw = tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
		for _, apk := range info.Apks {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", apk.Name, apk.Type, cache.FormatBytes(apk.CompressedSize))
		}
		return tw.Flush()
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
