package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/database"
	"github.com/dbsmedya/gocontacts/internal/detector"
	"github.com/dbsmedya/gocontacts/internal/events"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print contact change events as the store changes",
	Long: `Watch runs the change detector against the configured store and prints
one line per detected change until interrupted. Writes by other processes
are picked up through the file watcher (sqlite) or the poll interval.
Sending SIGCONT forces a full comparison.

Example:
  gocontacts watch --json`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print events as JSON lines")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := database.ShutdownContext(context.Background(), nil)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var listener detector.Listener = events.NewConsolePrinter(cmd.OutOrStdout())
	if watchJSON {
		listener = events.NewJSONWriter(cmd.OutOrStdout(), a.log)
	}

	d, done, err := a.startDetector(ctx, listener)
	if err != nil {
		return err
	}
	a.log.Infof("Watching %d contacts", d.Baseline().IDs.Len())

	return <-done
}
