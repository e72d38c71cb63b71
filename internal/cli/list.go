package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/existflow/ironsync/internal/model"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks from the local store.

Examples:
  ironsync list
  ironsync list --done
  ironsync list --status conflict`,
	RunE: runList,
}

var (
	listIncludeDone bool
	listStatus      string
)

func init() {
	listCmd.Flags().BoolVar(&listIncludeDone, "done", false, "Include completed tasks")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by sync status (synced, pending, conflict, error)")
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()

	var tasks []model.Task
	if listStatus != "" {
		status, err := model.ParseSyncStatus(listStatus)
		if err != nil {
			return err
		}
		tasks, err = e.local.GetByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
	} else {
		tasks, err = e.service.GetAllTasks(ctx, cfg.UserID)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
	}

	shown := 0
	for _, t := range tasks {
		if t.Done && !listIncludeDone {
			continue
		}
		printTask(t)
		shown++
	}

	if shown == 0 {
		fmt.Println("No tasks found. Add one with 'ironsync add'.")
		return nil
	}

	fmt.Printf("\n%d task(s)\n", shown)
	return nil
}

func printTask(t model.Task) {
	mark := "[ ]"
	name := t.Name
	if t.Done {
		mark = "[x]"
		name = doneStyle.Render(name)
	}

	fmt.Printf("%s %s %s\n", mark, name, renderStatus(t.SyncStatus))

	details := fmt.Sprintf("    %s  v%d", t.ID, t.Version)
	if t.Frequency != model.FrequencySingle {
		details += "  " + string(t.Frequency)
	}
	if !t.AlarmTime.IsZero() {
		details += "  alarm " + t.AlarmTime.Local().Format(time.RFC822)
	}
	fmt.Println(mutedStyle.Render(details))

	if t.Description != nil && *t.Description != "" {
		fmt.Println(mutedStyle.Render("    " + *t.Description))
	}
	if t.SyncError != nil && *t.SyncError != "" {
		fmt.Println(statusStyles[model.SyncStatusError].Render("    ✗ " + *t.SyncError))
	}
}
