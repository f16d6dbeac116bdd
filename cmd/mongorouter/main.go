// Package main implements the mongorouter CLI: configuration checks, dry-run
// routing and the admin HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mongorouter/connectors/config"
)

var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mongorouter",
		Short: "Route MongoDB database names to clusters",
		Long: `mongorouter maps database names to MongoDB clusters using ordered
dbpath patterns. The first cluster whose pattern matches a name serves it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the router configuration file (default $"+config.EnvConfigPath+")")

	resolve := func() (string, error) {
		if configPath != "" {
			return configPath, nil
		}
		if env := os.Getenv(config.EnvConfigPath); env != "" {
			return env, nil
		}
		return "", fmt.Errorf("--config or %s is required", config.EnvConfigPath)
	}

	rootCmd.AddCommand(validateCmd(resolve))
	rootCmd.AddCommand(routeCmd(resolve))
	rootCmd.AddCommand(serveCmd(resolve))
	rootCmd.AddCommand(exampleCmd())

	return rootCmd
}
