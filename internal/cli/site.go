package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stockledger/internal/ledger"
)

// NewSiteCommand creates the site command group.
func NewSiteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage the site registry",
	}
	cmd.AddCommand(newSiteAddCommand(rootOpts))
	cmd.AddCommand(newSiteListCommand(rootOpts))
	return cmd
}

func newSiteAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Register a storage site",
		Long: `Register a storage site and print its id.

Site ids are what entries reference; names are for people.

Example:
  stockledger site add "Central Depot"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			site, err := a.store.RegisterSite(commandContext(cmd), args[0])
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(site, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s (%s)\n", site.Name, site.ID)
			})
		},
	}
}

func newSiteListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered sites",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sites, err := a.store.ListSites(commandContext(cmd))
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(sites, func(w io.Writer) { writeSites(w, sites) })
		},
	}
}

func writeSites(w io.Writer, sites []ledger.Site) {
	if len(sites) == 0 {
		fmt.Fprintln(w, "No sites registered.")
		return
	}
	for _, s := range sites {
		fmt.Fprintf(w, "%s  %s\n", s.ID, s.Name)
	}
}
