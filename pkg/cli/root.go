package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Environment variables read by the commands.
const (
	EnvConfig = "GQLGATE_CONFIG"

	// DefaultConfigFile is used when neither --config nor GQLGATE_CONFIG is set.
	DefaultConfigFile = "gqlgate.yaml"
)

var (
	// Persistent flags available to all subcommands
	configFile string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gqlgate",
	Short: "gqlgate serves a GraphQL API over configured data backends",
	Long: `gqlgate reads a YAML configuration and a GraphQL schema and answers queries
from JSON documents, SQL databases and SPARQL endpoints.

The configuration file defaults to ./gqlgate.yaml and can be set with --config
or the GQLGATE_CONFIG environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	os.Exit(Main())
}

// Main runs the root command with os.Args and returns the exit status.
func Main() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default $GQLGATE_CONFIG or ./gqlgate.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// resolveConfigPath applies the --config, GQLGATE_CONFIG, default order.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultConfigFile
}
