package cli

import (
	"context"
	"fmt"

	"github.com/existflow/ironsync/internal/model"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync tasks with the server",
	Long: `Push queued changes to the server.

Commands:
  ironsync sync              # Drain the operation queue now
  ironsync sync --full       # Full bidirectional reconciliation
  ironsync sync status       # Show sync status`,
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runSyncStatus,
}

// statusCmd is the top-level spelling of `sync status`
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runSyncStatus,
}

var syncFull bool

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Reconcile both directions, not just the queue")
}

func runSync(cmd *cobra.Command, args []string) error {
	if !cfg.SyncEnabled {
		return fmt.Errorf("sync is disabled; enable it with 'ironsync config set sync true'")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	d := e.newDaemon()

	if syncFull {
		fmt.Println("Running full reconciliation...")
		result, err := d.FullSync(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("✓ Pulled %d, pushed %d create(s) and %d update(s)\n",
			result.PulledCreates, result.PushedCreates, result.PushedUpdates)
		if result.Overwritten > 0 || result.Tombstoned > 0 || result.Purged > 0 {
			fmt.Printf("  Remote won %d conflict(s), %d deletion(s) applied, %d purged\n",
				result.Overwritten, result.Tombstoned, result.Purged)
		}
	}

	if err := d.DrainOnce(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	n, err := e.queue.Len(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("✓ All changes synced")
	} else {
		fmt.Printf("⚠ %d operation(s) still queued; will retry on next sync\n", n)
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	stats, err := e.newDaemon().Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read sync status: %w", err)
	}

	fmt.Println(headerStyle.Render("Sync Status"))
	fmt.Printf("  Server:  %s\n", cfg.ServerURL)
	fmt.Printf("  Enabled: %v (sync on write: %v)\n", cfg.SyncEnabled, cfg.SyncOnWrite)
	fmt.Printf("  Queued:  %d operation(s)\n", stats.QueueLen)
	fmt.Printf("  %s %d task(s)\n", renderStatus(model.SyncStatusPending), stats.Pending)
	if stats.Conflicts > 0 {
		fmt.Printf("  %s %d task(s) need attention, see 'ironsync resolve'\n",
			renderStatus(model.SyncStatusConflict), stats.Conflicts)
	}
	if stats.Errors > 0 {
		fmt.Printf("  %s %d task(s) failed to sync\n",
			renderStatus(model.SyncStatusError), stats.Errors)
	}
	return nil
}
