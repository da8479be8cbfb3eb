package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	injectCmd := &cobra.Command{
		Use:   "inject [query]",
		Short: "Print memories relevant to a query for context injection",
		Long: "Retrieve the memories most relevant to the query and print them wrapped in a " +
			"<system-reminder> block. Prints nothing when auto ingest is off or nothing matches.",
		Run: runInject,
	}
	injectCmd.Flags().Bool("raw", false, "Print the block without the <system-reminder> wrapper")

	promptCmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the conscious working memory block",
		Run:   runPrompt,
	}

	RootCmd.AddCommand(injectCmd, promptCmd)
}

func runInject(cmd *cobra.Command, args []string) {
	raw, _ := cmd.Flags().GetBool("raw")
	query := strings.Join(args, " ")

	cfg := loadConfig()
	svc, s := openService(cfg)
	defer s.Close()
	defer svc.Close()

	if !cfg.AutoIngest || strings.TrimSpace(query) == "" {
		return
	}
	hits, err := svc.RetrieveContext(cmd.Context(), query, 5)
	if err != nil {
		exitErr("inject", err)
	}
	if len(hits) == 0 {
		return
	}
	block := svc.FormatAuto(hits)

	out := cmd.OutOrStdout()
	if raw {
		fmt.Fprintln(out, block)
		return
	}
	fmt.Fprintf(out, "<system-reminder>\n%s\n</system-reminder>\n", block)
}

func runPrompt(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	svc, s := openService(cfg)
	defer s.Close()
	defer svc.Close()

	block, err := svc.ConsciousPrompt(cmd.Context())
	if err != nil {
		exitErr("prompt", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), block)
}
