package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/types"
)

var removeCmd = &cobra.Command{
	Use:   "remove <contact-id>...",
	Short: "Remove contacts and all of their raw records",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

// batchRemover is implemented by stores that delete many contacts in one
// statement.
type batchRemover interface {
	DeleteLogicalRecords(ctx context.Context, ids []int64) (int64, error)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, ok := types.ParseID(arg)
		if !ok {
			return nil, fmt.Errorf("invalid contact id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if br, ok := a.store.(batchRemover); ok {
		n, err := br.DeleteLogicalRecords(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to remove contacts: %w", err)
		}
		cmd.Printf("Removed %d of %d contacts\n", n, len(ids))
		return nil
	}

	for _, id := range ids {
		if err := a.store.DeleteLogicalRecord(ctx, id); err != nil {
			return fmt.Errorf("failed to remove contact %d: %w", id, err)
		}
	}
	cmd.Printf("Removed %d contacts\n", len(ids))
	return nil
}
