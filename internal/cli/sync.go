package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SyncCmd returns the sync command: a one-shot manual drain.
func SyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued mutations against the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			stack, err := openDeviceStack(cfg, nil)
			if err != nil {
				return err
			}
			defer stack.Close()

			pending := stack.queue.Len()
			if pending == 0 {
				fmt.Println("Nothing to sync.")
				return nil
			}

			fmt.Printf("Draining %d pending mutation(s)...\n", pending)
			result, err := stack.syncer.Drain(cmd.Context())
			if err != nil {
				return err
			}

			color.Green("  delivered: %d", result.Delivered)
			if result.Retained > 0 {
				color.Yellow("  retained:  %d (will retry)", result.Retained)
			}
			if result.Dropped > 0 {
				color.Red("  dropped:   %d", result.Dropped)
			}
			return nil
		},
	}
}

// StatusCmd returns the status command: prints the device sync status.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the device sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			stack, err := openDeviceStack(cfg, nil)
			if err != nil {
				return err
			}
			defer stack.Close()

			status := stack.syncer.Status()

			fmt.Println("Device sync status")
			fmt.Printf("  pending:   %d\n", stack.queue.Len())
			if status.LastSyncAt != nil {
				fmt.Printf("  last sync: %s\n", time.Unix(*status.LastSyncAt, 0).Format(time.RFC3339))
			} else {
				fmt.Println("  last sync: never")
			}
			if status.IsSyncing {
				color.Cyan("  syncing:   in progress")
			}
			if status.LastError != "" {
				color.Red("  last error: %s", status.LastError)
			} else {
				color.Green("  last error: none")
			}
			return nil
		},
	}
}
