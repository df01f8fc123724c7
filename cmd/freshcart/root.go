// README: Root command and shared flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"freshcart/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "freshcart",
	Short: "Grocery delivery core: orders, partner dispatch and live tracking",
	Long: `freshcart runs the delivery backend for a single-store grocery service:
order lifecycle with delivery codes, atomic partner assignment, live ETAs from
partner locations and a service-area geofence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); FRESH_* environment variables take precedence")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, seedCmd)
}

func loadConfig() (config.Config, error) {
	return config.LoadFile(cfgFile)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
