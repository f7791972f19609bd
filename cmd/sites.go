package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newSitesCmd creates the 'sites' subcommand listing the configured sites.
func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the configured search sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tBASE URL\tCAPABILITIES")
			for _, site := range appInstance.Registry().All() {
				var caps []string
				if site.RequiresJS {
					caps = append(caps, "js")
				}
				if site.RequiresSolver {
					caps = append(caps, "solver")
				}
				if site.Feed != nil {
					caps = append(caps, "feed")
				}
				if site.AltEndpoints != nil {
					caps = append(caps, "endpoints")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					site.Name, site.Kind, site.BaseURL, strings.Join(caps, ","))
			}
			return tw.Flush()
		},
	}
}
