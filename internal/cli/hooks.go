package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/pkg/hooks"
)

// NewHooksCmd creates the hooks command with subcommands.
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage event scripts",
		Long: `Tengo scripts in the hooks directory run when install jobs change
phase. A script is named after its event, for example installed.tengo.`,
	}

	cmd.AddCommand(
		newHooksListCmd(),
		newHooksTemplateCmd(),
	)

	return cmd
}

func newHooksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded event scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m := hooks.NewManager(0)
			if err := hooks.LoadDir(m, cfg.HooksDir()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			loaded := make([]string, 0, len(hooks.Events))
			for _, e := range m.Hooks() {
				loaded = append(loaded, string(e))
			}
			if wantJSON(cfg) {
				return printJSON(out, map[string]interface{}{"directory": cfg.HooksDir(), "events": loaded})
			}
			if len(loaded) == 0 {
				_, _ = fmt.Fprintf(out, "No event scripts in %s\n", cfg.HooksDir())
				return nil
			}
			for _, e := range loaded {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", e, filepath.Join(cfg.HooksDir(), e+hooks.ScriptExtension))
			}
			return nil
		},
	}

	return cmd
}

func newHooksTemplateCmd() *cobra.Command {
	names := make([]string, len(hooks.Events))
	for i, e := range hooks.Events {
		names[i] = string(e)
	}

	cmd := &cobra.Command{
		Use:       "template EVENT",
		Short:     "Print a starting script for an event",
		Long:      "Print a starting script for one of: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			event := hooks.Event(args[0])
			if !event.Valid() {
				return hooks.ErrUnsupportedEvent(event)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hooks.Template(event))
			return nil
		},
	}

	return cmd
}
