// Package cli implements the apogeemind CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rcliao/apogeemind/internal/config"
	"github.com/rcliao/apogeemind/internal/memory"
	"github.com/rcliao/apogeemind/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	nsFlag     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "apogeemind",
	Short: "Tiered persistent memory for conversational agents",
	Long: "Records user/assistant exchanges, derives long-term memories, promotes the important ones " +
		"into a small short-term tier and renders them back as context. SQLite-backed, single binary.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $APOGEEMIND_DB_PATH or ./apogeemind/apogeemind.db)")
	RootCmd.PersistentFlags().StringVarP(&nsFlag, "ns", "n", "", "Namespace (default: $APOGEEMIND_NAMESPACE or code:<cwd>)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if nsFlag != "" {
		cfg.Namespace = nsFlag
	}
	return cfg
}

// newLogger writes JSON logs to stderr; stdout is reserved for command output.
func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func openStore(cfg config.Config) (*store.SQLiteStore, error) {
	var opts []store.Option
	if cfg.DisableFTS {
		opts = append(opts, store.WithoutFTS())
	}
	return store.NewSQLiteStore(cfg.DBPath, opts...)
}

// openService opens the store and builds a Service on top of it. The caller
// closes both.
func openService(cfg config.Config) (*memory.Service, *store.SQLiteStore) {
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	svc, err := memory.NewService(cfg, s, newLogger(cfg))
	if err != nil {
		s.Close()
		exitErr("init service", err)
	}
	return svc, s
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
