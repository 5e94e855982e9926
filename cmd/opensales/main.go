// Package main provides the opensales CLI: the field API server and
// the device-side sync agent in one binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opensales",
		Short: "OpenSales field-sales platform core",
		Long: `opensales runs the field-sales core: the visit lifecycle API server
and the device agent that buffers mutations while offline and replays
them when connectivity returns.`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.AgentCmd())
	rootCmd.AddCommand(cli.SyncCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
