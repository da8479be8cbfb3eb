package cli

import (
	"fmt"
	"strings"

	"github.com/rcliao/apogeemind/internal/store"
	"github.com/spf13/cobra"
)

// healthReport is what health prints.
type healthReport struct {
	OK            bool    `json:"ok"`
	DBPath        string  `json:"db_path"`
	Namespace     string  `json:"namespace"`
	SchemaVersion int     `json:"schema_version"`
	FTSEnabled    bool    `json:"fts_enabled"`
	Conscious     bool    `json:"conscious_ingest"`
	Auto          bool    `json:"auto_ingest"`
	STMCapacity   int     `json:"stm_capacity"`
	Threshold     float64 `json:"promotion_threshold"`
	ShortTerm     int     `json:"short_term"`
	LongTerm      int     `json:"long_term"`
	Chats         int     `json:"chats"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the database and show the active configuration",
		Run:   runHealth,
	}
	cmd.Flags().Bool("to-context", false, "Print a one-line summary suitable for context injection")

	RootCmd.AddCommand(cmd)
}

func runHealth(cmd *cobra.Command, args []string) {
	toContext, _ := cmd.Flags().GetBool("to-context")

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.Stats(cmd.Context(), cfg.DBPath)
	if err != nil {
		exitErr("health", err)
	}

	r := healthReport{
		DBPath:        cfg.DBPath,
		Namespace:     cfg.Namespace,
		SchemaVersion: st.SchemaVersion,
		FTSEnabled:    st.FTSEnabled,
		Conscious:     bool(cfg.ConsciousIngest),
		Auto:          bool(cfg.AutoIngest),
		STMCapacity:   cfg.STMCapacity,
		Threshold:     cfg.PromotionThreshold,
	}
	for _, ns := range st.Namespaces {
		if ns.NS == cfg.Namespace {
			r.ShortTerm, r.LongTerm, r.Chats = ns.ShortTerm, ns.LongTerm, ns.Chats
		}
	}
	r.OK = r.SchemaVersion == store.SchemaVersion

	if toContext {
		fmt.Fprintln(cmd.OutOrStdout(), contextLine(r))
		return
	}
	printJSON(cmd.OutOrStdout(), r)
}

func contextLine(r healthReport) string {
	status := "ok"
	if !r.OK {
		status = "degraded"
	}
	search := "fts"
	if !r.FTSEnabled {
		search = "like"
	}
	parts := []string{
		"apogeemind " + status,
		"namespace=" + r.Namespace,
		fmt.Sprintf("short_term=%d/%d", r.ShortTerm, r.STMCapacity),
		fmt.Sprintf("long_term=%d", r.LongTerm),
		"search=" + search,
	}
	return strings.Join(parts, " ")
}
