package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/duet/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [behaviour]",
		Short: "Print the effective behaviour",
		Long: `Print the behaviour the engine would run with: the schema defaults,
or the given CUE file or directory unified with them.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := config.Default()
			if len(args) == 1 {
				var err error
				if b, err = config.Load(args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to load behaviour", err)
				}
			}

			formatter := rootOpts.formatter(cmd)
			if formatter.Format == "json" {
				return formatter.Success(b)
			}

			w := cmd.OutOrStdout()
			t := b.Timeouts
			fmt.Fprintln(w, "timeouts:")
			fmt.Fprintf(w, "  stop:             %s\n", t.Stop())
			fmt.Fprintf(w, "  find_role:        %s\n", t.FindRole())
			fmt.Fprintf(w, "  pair:             %s\n", t.Pair())
			fmt.Fprintf(w, "  connect_profiles: %s\n", t.ConnectProfiles())
			fmt.Fprintf(w, "  connectable:      %s\n", t.Connectable())
			fmt.Fprintf(w, "advertising:            %s\n", b.Advertising)
			fmt.Fprintf(w, "standalone_advertising: %s\n", b.StandaloneAdvertising)
			fmt.Fprintf(w, "peer_profiles:          %s\n", strings.Join(b.PeerProfiles, ", "))
			return nil
		},
	}

	return cmd
}
