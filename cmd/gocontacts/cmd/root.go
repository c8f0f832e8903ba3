package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// defaultConfigFile is used when --config is not given. A missing default
// file means built-in defaults.
const defaultConfigFile = "gocontacts.yaml"

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
	driver    string
	storePath string
)

var rootCmd = &cobra.Command{
	Use:   "gocontacts",
	Short: "Contact store synchronization engine",
	Long: `gocontacts stores loosely typed contact documents as typed raw records
and reports which contacts were added, removed or modified.

Features:
  - Declarative field mapping with multi-valued fan-out
  - Atomic batch writes with per-contact locking
  - Change detection over store snapshots
  - SQLite, MySQL and in-memory stores`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile,
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Store overrides
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "",
		"Override store driver (sqlite, mysql, memory)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "",
		"Override sqlite database path")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	Driver    string
	StorePath string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Driver:    driver,
		StorePath: storePath,
	}
}
