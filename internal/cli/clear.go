package cli

import (
	"fmt"

	"github.com/rcliao/apogeemind/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored data for the namespace",
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Delete chat history",
		Run:   runClearHistory,
	}
	historyCmd.Flags().String("session", "", "Only delete this session")

	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Delete derived memories",
		Long:  "Delete short-term, long-term or both tiers. Clearing long-term memory also clears extracted rules.",
		Run:   runClearMemory,
	}
	memoryCmd.Flags().StringP("tier", "t", "", "Tier: short_term or long_term (default: both)")

	clearCmd.AddCommand(historyCmd, memoryCmd)
	RootCmd.AddCommand(clearCmd)
}

func runClearHistory(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")

	cfg := loadConfig()
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()

	n, err := svc.ClearHistory(cmd.Context(), session)
	if err != nil {
		exitErr("clear history", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"ns":%q,"deleted":%d}`+"\n", svc.Namespace(), n)
}

func runClearMemory(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")

	cfg := loadConfig()
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()

	counts, err := svc.ClearMemory(cmd.Context(), model.Tier(tier))
	if err != nil {
		exitErr("clear memory", err)
	}
	printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "ns": svc.Namespace(), "deleted": counts})
}
