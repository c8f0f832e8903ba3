package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Save a contact document",
	Long: `Save builds a contact document into the store and prints the stored
document. A document with an "id" of an existing contact updates it; any
other document creates a new contact and the output carries its id.

The document is read from the given file, or from stdin when the file is
omitted or "-".

Example:
  echo '{"name":{"givenNames":["Ada"]}}' | gocontacts save`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)
}

func readDocument(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	if cmd.InOrStdin() == os.Stdin && !stdinIsPipe() {
		return nil, errors.New("no document given: pass a file or pipe JSON to stdin")
	}
	return io.ReadAll(cmd.InOrStdin())
}

func runSave(cmd *cobra.Command, args []string) error {
	data, err := readDocument(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.builder.BuildJSON(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}
