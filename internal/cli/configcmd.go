package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Show or change settings.

Commands:
  ironsync config                    # Show current settings
  ironsync config set server <url>   # Set the sync server URL
  ironsync config set token <token>  # Set the API token
  ironsync config set user <id>      # Set the user id
  ironsync config set sync <bool>    # Enable or disable sync
  ironsync config set sync-on-write <bool>
  ironsync config set interval <duration>`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Println(headerStyle.Render("IronSync Configuration"))
	fmt.Printf("  database:      %s\n", cfg.DatabasePath)
	fmt.Printf("  server:        %s\n", cfg.ServerURL)
	if cfg.Token != "" {
		fmt.Printf("  token:         %s\n", maskToken(cfg.Token))
	} else {
		fmt.Println("  token:         (not set)")
	}
	fmt.Printf("  user:          %s\n", cfg.UserID)
	fmt.Printf("  sync:          %v\n", cfg.SyncEnabled)
	fmt.Printf("  sync-on-write: %v\n", cfg.SyncOnWrite)
	fmt.Printf("  interval:      %s\n", cfg.SyncInterval)
	fmt.Printf("  max-retries:   %d\n", cfg.MaxRetries)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	switch key {
	case "server":
		cfg.ServerURL = value
	case "token":
		cfg.Token = value
	case "user":
		cfg.UserID = value
	case "sync":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.SyncEnabled = b
	case "sync-on-write":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.SyncOnWrite = b
	case "interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q (try 30s or 5m)", value)
		}
		cfg.SyncInterval = d
	case "max-retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid retry count %q", value)
		}
		cfg.MaxRetries = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Set %s\n", key)
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
