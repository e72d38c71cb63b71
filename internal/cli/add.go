package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/service"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new task",
	Long: `Add a new task to the local store.

Examples:
  ironsync add "Buy groceries"
  ironsync add "Standup" --alarm 2026-09-01T09:00:00Z --freq daily
  ironsync add "Water plants" --desc "Kitchen and balcony" --freq weekly`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addDescription string
	addAlarm       string
	addFrequency   string
	addInterval    int
)

func init() {
	addCmd.Flags().StringVarP(&addDescription, "desc", "d", "", "Task description")
	addCmd.Flags().StringVar(&addAlarm, "alarm", "", "Alarm time (RFC3339, e.g. 2026-09-01T09:00:00Z)")
	addCmd.Flags().StringVarP(&addFrequency, "freq", "f", "single", "Recurrence (single, daily, weekly, monthly)")
	addCmd.Flags().IntVar(&addInterval, "interval", 0, "Alarm repeat interval in minutes")
}

func runAdd(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	name := strings.Join(args, " ")

	freq, err := model.ParseFrequency(addFrequency)
	if err != nil {
		return err
	}

	alarm := time.Now().UTC()
	if addAlarm != "" {
		alarm, err = time.Parse(time.RFC3339, addAlarm)
		if err != nil {
			return fmt.Errorf("invalid alarm time %q: %w", addAlarm, err)
		}
	}

	in := service.CreateTaskInput{
		Name:          name,
		AlarmTime:     alarm,
		Frequency:     freq,
		AlarmInterval: addInterval,
		UserID:        cfg.UserID,
	}
	if addDescription != "" {
		in.Description = &addDescription
	}

	task, err := e.service.CreateTask(context.Background(), in)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	fmt.Printf("✓ Added task: %s\n", task.Name)
	fmt.Printf("  ID: %s  %s\n", task.ID, renderStatus(task.SyncStatus))
	return nil
}
