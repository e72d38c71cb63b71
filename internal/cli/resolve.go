package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/queue"
	"github.com/existflow/ironsync/internal/resolver"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <task-id>",
	Short: "Resolve a sync conflict",
	Long: `Resolve a task flagged as conflicted.

Examples:
  ironsync resolve 3f2a...              # show both copies
  ironsync resolve 3f2a... --use local  # keep this device's copy
  ironsync resolve 3f2a... --use remote # take the server's copy
  ironsync resolve 3f2a... --use merge  # later edit wins, new version`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var resolveUse string

func init() {
	resolveCmd.Flags().StringVarP(&resolveUse, "use", "u", "", "Side to keep (local, remote, merge)")
}

func parseStrategy(s string) (resolver.Strategy, error) {
	switch s {
	case "", "manual":
		return resolver.Manual, nil
	case "local":
		return resolver.UseLocal, nil
	case "remote":
		return resolver.UseRemote, nil
	case "merge":
		return resolver.Merge, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (use local, remote or merge)", s)
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	strategy, err := parseStrategy(resolveUse)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	id := args[0]

	localCopy, err := e.local.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if localCopy.SyncStatus != model.SyncStatusConflict {
		return fmt.Errorf("task %s is not in conflict (%s)", id, localCopy.SyncStatus)
	}

	remoteCopy, err := e.remote.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load remote copy: %w", err)
	}

	winner, err := resolver.Resolve(*localCopy, *remoteCopy, strategy)
	var manual *resolver.ManualConflictError
	if errors.As(err, &manual) {
		printConflict(manual.Local, manual.Remote)
		fmt.Println("\nRerun with --use local, --use remote or --use merge.")
		return nil
	}
	if err != nil {
		return err
	}

	// The winner replaces the local copy and is queued so the remote
	// converges on it too. Its version must exceed the remote's or the
	// server would reject the push as a regression.
	if winner.Version <= remoteCopy.Version {
		winner.Version = remoteCopy.Version + 1
	}
	pending := model.SyncStatusPending
	ch := model.ChangesFromTask(winner)
	ch.SyncStatus = &pending
	ch.ForceVersion = true
	if _, err := e.local.Update(ctx, id, ch); err != nil {
		return fmt.Errorf("failed to apply resolution: %w", err)
	}

	prev := remoteCopy.Version
	winner.SyncStatus = pending
	op := queue.Operation{Kind: queue.KindUpdate, TaskID: id, Task: winner, PrevVersion: &prev}
	if err := e.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("failed to queue resolution: %w", err)
	}

	fmt.Printf("✓ Resolved %s using %s (now v%d)\n", id, strategy, winner.Version)
	return nil
}

func printConflict(local, remote model.Task) {
	fmt.Println(headerStyle.Render("Conflicting copies"))
	fmt.Printf("local  v%-3d %s  edited %s\n", local.Version, local.Name,
		local.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("remote v%-3d %s  edited %s\n", remote.Version, remote.Name,
		remote.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
}
