package cli

import (
	"fmt"

	"github.com/rcliao/apogeemind/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories in one tier",
		Run:   runList,
	}

	cmd.Flags().StringP("tier", "t", string(model.TierShortTerm), "Tier: short_term or long_term")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output memory IDs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var hits []model.SearchHit
	switch model.Tier(tier) {
	case model.TierShortTerm:
		rows, err := s.TopShortTerm(cmd.Context(), cfg.Namespace, limit)
		if err != nil {
			exitErr("list", err)
		}
		for _, r := range rows {
			hits = append(hits, r.Hit())
		}
	case model.TierLongTerm:
		rows, err := s.ListLongTerm(cmd.Context(), cfg.Namespace, limit)
		if err != nil {
			exitErr("list", err)
		}
		for _, r := range rows {
			hits = append(hits, r.Hit())
		}
	default:
		exitErr("list", fmt.Errorf("unknown tier %q", tier))
	}

	if idsOnly {
		for _, h := range hits {
			fmt.Fprintln(cmd.OutOrStdout(), h.MemoryID)
		}
		return
	}

	printJSON(cmd.OutOrStdout(), hits)
}
