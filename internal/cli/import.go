package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rcliao/apogeemind/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import an export into the namespace",
		Long:  "Import a JSON or YAML export (file or stdin). Rows whose IDs already exist are skipped.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	e, err := decodeExport(data)
	if err != nil {
		exitErr("parse export", err)
	}

	cfg := loadConfig()
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()

	imported, err := svc.Import(cmd.Context(), e)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"ns":%q,"imported":%d}`+"\n", svc.Namespace(), imported)
}

// decodeExport accepts JSON, falling back to YAML.
func decodeExport(data []byte) (*model.Export, error) {
	var e model.Export
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, err
		}
		return &e, nil
	}
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
