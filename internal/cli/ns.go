package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	nsCmd := &cobra.Command{
		Use:   "ns",
		Short: "Namespace management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all namespaces with row counts",
		Run:   runNSList,
	}

	nsCmd.AddCommand(listCmd)
	RootCmd.AddCommand(nsCmd)
}

func runNSList(cmd *cobra.Command, args []string) {
	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rows, err := s.ListNamespaces(cmd.Context())
	if err != nil {
		exitErr("list namespaces", err)
	}

	if formatFlag == "text" {
		for _, ns := range rows {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tchats=%d\tshort_term=%d\tlong_term=%d\trules=%d\n",
				ns.NS, ns.Chats, ns.ShortTerm, ns.LongTerm, ns.Rules)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), rows)
}
