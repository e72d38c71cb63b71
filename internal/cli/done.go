package cli

import (
	"context"
	"fmt"

	"github.com/existflow/ironsync/internal/service"
	"github.com/spf13/cobra"
)

var doneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runDone,
}

var doneUndo bool

func init() {
	doneCmd.Flags().BoolVarP(&doneUndo, "undo", "u", false, "Mark the task as not done instead")
}

func runDone(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	done := !doneUndo
	task, err := e.service.UpdateTask(context.Background(), args[0], service.UpdateTaskInput{
		Done: &done,
	})
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if done {
		fmt.Printf("✓ Completed: %s %s\n", task.Name, renderStatus(task.SyncStatus))
	} else {
		fmt.Printf("↩ Reopened: %s %s\n", task.Name, renderStatus(task.SyncStatus))
	}
	return nil
}
