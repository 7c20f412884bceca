package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the configured networks",
	Args:  cobra.NoArgs,
	RunE:  runNetworks,
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

func runNetworks(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "NETWORK\tNAME\tFAMILY\tCHAIN ID\tEXPLORER")

	for _, n := range app.factory.GetSupportedNetworks() {
		info := n.Info()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n, info.DisplayName, info.Family, info.ChainID, info.ExplorerURL)
	}
	return w.Flush()
}
