package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/finder"
)

var (
	findID     string
	findLimit  int
	findPretty bool
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Print stored contacts as documents",
	Long: `Find rebuilds contact documents from the store and prints them as a
JSON array.

Examples:
  gocontacts find
  gocontacts find --id 7
  gocontacts find --limit 10 --pretty`,
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVar(&findID, "id", "", "Contact id to print")
	findCmd.Flags().IntVar(&findLimit, "limit", 0, "Maximum number of contacts (0 for all)")
	findCmd.Flags().BoolVar(&findPretty, "pretty", false, "Indent the output")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.finder.Find(ctx, finder.Options{ID: findID, Limit: findLimit})
	if err != nil {
		return err
	}

	var out []byte
	if findPretty {
		out, err = json.MarshalIndent(docs, "", "  ")
	} else {
		out, err = json.Marshal(docs)
	}
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}
	if docs == nil {
		out = []byte("[]")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
