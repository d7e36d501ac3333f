// Package cli is the cartctl command tree: a terminal storefront that drives the
// cart facade against a cart API, keeping the guest cart in a local sqlite slot.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags. Empty values fall back to the client config.
type RootOptions struct {
	Format   string
	APIURL   string
	SlotPath string
	Verbose  bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Drive a storefront cart from the terminal",
		Long: `cartctl keeps a guest cart on this machine and switches to the account cart
after login, merging the guest items into it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "cart API base url")
	cmd.PersistentFlags().StringVar(&opts.SlotPath, "slot", "", "path of the local cart slot")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log client diagnostics to stderr")

	cmd.AddCommand(
		NewShowCommand(opts),
		NewCountCommand(opts),
		NewAddCommand(opts),
		NewUpdateCommand(opts),
		NewRemoveCommand(opts),
		NewClearCommand(opts),
		NewLoginCommand(opts),
		NewSyncCommand(opts),
		NewLogoutCommand(opts),
	)
	return cmd
}
