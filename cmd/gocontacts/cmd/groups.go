package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/types"
)

var groupsAll bool

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List contact groups",
	Long: `Groups lists the groups that categories resolve to. Deleted and
invisible groups are hidden unless --all is given.`,
	RunE: runGroups,
}

func init() {
	groupsCmd.Flags().BoolVar(&groupsAll, "all", false, "Include deleted and invisible groups")
	rootCmd.AddCommand(groupsCmd)
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	rows := make([][]string, 0, len(list))
	for _, g := range list {
		if !groupsAll && (g.Deleted || !g.Visible) {
			continue
		}
		rows = append(rows, []string{
			types.FormatID(g.ID),
			g.Title,
			g.Account.Name + "/" + g.Account.Type,
			fmt.Sprintf("%t", g.Visible),
			fmt.Sprintf("%t", g.Deleted),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "ACCOUNT", "VISIBLE", "DELETED"}, rows)
	return nil
}
