package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/database"
	"github.com/dbsmedya/gocontacts/internal/mapping"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display detailed version information including build details.`,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	cmd.Printf("gocontacts version %s\n", Version)
	cmd.Printf("  Commit: %s\n", Commit)
	cmd.Printf("  Go version: %s\n", runtime.Version())
	cmd.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	cmd.Printf("  Store drivers: %s, %s, %s\n", database.DriverSQLite, database.DriverMySQL, database.DriverMemory)
	cmd.Printf("  Mapped fields: %d\n", len(mapping.Default().All()))
}
