package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rcliao/apogeemind/internal/memory"
	"github.com/spf13/cobra"
)

// recordInput is the stdin payload accepted by record.
type recordInput struct {
	UserInput  string `json:"user_input"`
	AIOutput   string `json:"ai_output"`
	Model      string `json:"model"`
	SessionID  string `json:"session_id"`
	TokensUsed *int   `json:"tokens_used"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one user/assistant exchange",
		Long: "Record one exchange and derive a memory from it. Text comes from --user/--assistant, " +
			`or from a JSON object on stdin: {"user_input": "...", "ai_output": "..."}.`,
		Run: runRecord,
	}

	cmd.Flags().StringP("user", "u", "", "User message")
	cmd.Flags().StringP("assistant", "a", "", "Assistant reply")
	cmd.Flags().String("model", "", "Model that produced the reply")
	cmd.Flags().String("session", "", "Session ID (default: a fresh one per process)")
	cmd.Flags().Int("tokens", 0, "Tokens used by the exchange")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	in := recordInput{}
	in.UserInput, _ = cmd.Flags().GetString("user")
	in.AIOutput, _ = cmd.Flags().GetString("assistant")
	in.Model, _ = cmd.Flags().GetString("model")
	in.SessionID, _ = cmd.Flags().GetString("session")
	if cmd.Flags().Changed("tokens") {
		n, _ := cmd.Flags().GetInt("tokens")
		in.TokensUsed = &n
	}

	if in.UserInput == "" && in.AIOutput == "" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			if err := json.Unmarshal(b, &in); err != nil {
				exitErr("parse json", err)
			}
		}
	}

	if strings.TrimSpace(in.UserInput) == "" && strings.TrimSpace(in.AIOutput) == "" {
		exitErr("record", fmt.Errorf("an exchange is required (--user/--assistant or stdin)"))
	}

	cfg := loadConfig()
	svc, s := openService(cfg)
	defer s.Close()
	defer svc.Close()

	chatID, err := svc.Record(cmd.Context(), in.UserInput, in.AIOutput, in.Model, memory.Metadata{
		SessionID:  in.SessionID,
		TokensUsed: in.TokensUsed,
	})
	if err != nil {
		exitErr("record", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"chat_id":%q,"ns":%q}`+"\n", chatID, svc.Namespace())
}
