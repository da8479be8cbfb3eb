package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database",
		Run:   runInit,
	}

	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("init", err)
	}
	defer s.Close()

	st, err := s.Stats(cmd.Context(), cfg.DBPath)
	if err != nil {
		exitErr("init", err)
	}
	printJSON(cmd.OutOrStdout(), map[string]any{
		"ok":             true,
		"db_path":        cfg.DBPath,
		"schema_version": st.SchemaVersion,
		"fts_enabled":    st.FTSEnabled,
	})
}
