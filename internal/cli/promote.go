package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	promoteCmd := &cobra.Command{
		Use:   "promote",
		Short: "Run one promotion pass now",
		Long:  "Copy eligible long-term memories into the short-term tier, then enforce expiry and capacity.",
		Run:   runPromote,
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the promotion scheduler in the foreground",
		Long:  "Run promotion passes on an interval until interrupted (SIGINT/SIGTERM).",
		Run:   runWatch,
	}
	watchCmd.Flags().Duration("interval", 0, "Pass interval (default: $APOGEEMIND_SCHEDULER_INTERVAL, minimum 60s)")

	RootCmd.AddCommand(promoteCmd, watchCmd)
}

func runPromote(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	// the service would otherwise run a pass of its own at construction
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()
	defer svc.Close()

	n, err := svc.RunPromotion(cmd.Context())
	if err != nil {
		exitErr("promote", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"ns":%q,"promoted":%d}`+"\n", svc.Namespace(), n)
}

func runWatch(cmd *cobra.Command, args []string) {
	interval, _ := cmd.Flags().GetDuration("interval")

	cfg := loadConfig()
	cfg.ConsciousIngest = false
	svc, s := openService(cfg)
	defer s.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	svc.StartScheduler(interval)
	<-sig

	if err := svc.StopScheduler(); err != nil {
		exitErr("stop scheduler", err)
	}
}
