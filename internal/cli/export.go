package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the namespace as JSON or YAML",
		Long:  "Dump chat history, both memory tiers and rules for the namespace. Use -f yaml for YAML.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()

	e, err := svc.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	if formatFlag == "yaml" {
		b, err := yaml.Marshal(e)
		if err != nil {
			exitErr("encode yaml", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))
		return
	}
	printJSON(cmd.OutOrStdout(), e)
}
