package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/existflow/ironsync/internal/daemon"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground. It drains the operation queue
on an interval, watches server connectivity, and syncs immediately when
the connection comes back. Stop it with Ctrl+C.`,
	RunE: runDaemon,
}

var daemonInterval time.Duration

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Drain interval (default from config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if !cfg.SyncEnabled {
		return fmt.Errorf("sync is disabled; enable it with 'ironsync config set sync true'")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	interval := cfg.SyncInterval
	if daemonInterval > 0 {
		interval = daemonInterval
	}

	d := daemon.New(e.local, e.remote, e.queue, daemon.Config{
		UserID:          cfg.UserID,
		Interval:        interval,
		MaxRetries:      cfg.MaxRetries,
		RetryBackoffMax: 2 * time.Minute,
	})

	monitor := daemon.NewMonitor(cfg.ServerURL+"/health", 0)
	d.SetConnectivityNotifier(monitor.Restored())
	monitor.Start()
	defer monitor.Stop()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Sync daemon running (interval %s). Press Ctrl+C to stop.\n", interval)
	logger.Info("Daemon running", logger.F("interval", interval.String()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping...")
	d.Stop()
	fmt.Println("✓ Daemon stopped")
	return nil
}
