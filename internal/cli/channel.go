package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
)

// Number of arguments expected by the channel set command.
const channelSetArgs = 2

// NewChannelCmd creates the channel command with subcommands.
func NewChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage release channels",
		Long: `Choose between the alpha, beta and stable release channels.
A package override applies to its whole group when it has one.`,
	}

	cmd.AddCommand(
		newChannelSetCmd(),
		newChannelDefaultCmd(),
	)

	return cmd
}

func newChannelSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set PACKAGE CHANNEL",
		Short: "Override the channel of a package",
		Args:  cobra.ExactArgs(channelSetArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := catalog.ParseReleaseChannel(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				var setErr error
				if err := a.Call(ctx, func() {
					st := a.Store.State(args[0])
					if st == nil || st.Variant() == nil {
						setErr = errors.Wrapf(errors.ErrPackageUnknown, "%s", args[0])
						return
					}
					setErr = a.Store.SetChannelOverride(st, ch)
				}); err != nil {
					return err
				}
				if setErr != nil {
					return localize(a.Messages, setErr)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s now follows the %s channel\n", args[0], ch)
				return nil
			})
		},
	}

	return cmd
}

func newChannelDefaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "default [CHANNEL]",
		Short: "Show or change the default channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *App) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					var ch catalog.ReleaseChannel
					if err := a.Call(ctx, func() { ch = a.Store.DefaultChannel() }); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, ch)
					return nil
				}

				ch, err := catalog.ParseReleaseChannel(args[0])
				if err != nil {
					return err
				}
				var setErr error
				if err := a.Call(ctx, func() { setErr = a.Store.SetDefaultChannel(ch) }); err != nil {
					return err
				}
				if setErr != nil {
					return setErr
				}
				_, _ = fmt.Fprintf(out, "Default channel set to %s\n", ch)
				return nil
			})
		},
	}

	return cmd
}
