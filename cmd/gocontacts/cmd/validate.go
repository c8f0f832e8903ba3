package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/database"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/verifier"
)

var verifyMethod string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the configured store.

Checks performed:
  - Configuration syntax and required fields
  - Store connectivity
  - Schema creation (when create_schema is set)
  - Field mapping table completeness
  - Default account probe
  - Store integrity (orphaned raw records, unknown type tags,
    duplicated single-valued fields; --verify sha256 adds a digest)

Example:
  gocontacts validate --config gocontacts.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&verifyMethod, "verify", string(verifier.MethodCount),
		"integrity check method (count, sha256, skip)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.Info("Starting validation checks...")

	fmt.Fprintf(out, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(out, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(out, "Store driver: %s\n", a.cfg.Store.Driver)
	if a.cfg.Store.Driver == database.DriverSQLite {
		fmt.Fprintf(out, "Store path: %s\n", a.cfg.Store.Path)
	}
	fmt.Fprintf(out, "Locking: %s\n\n", a.cfg.Locking.Mode)

	if err := a.db.Ping(ctx); err != nil {
		fmt.Fprintf(out, "❌ Store connection failed: %v\n", err)
		return fmt.Errorf("store connection failed: %w", err)
	}
	fmt.Fprintf(out, "✅ Store reachable\n")

	table := mapping.Default()
	fmt.Fprintf(out, "✅ Mapping table: %d fields over %d storage types\n",
		len(table.All()), len(table.StorageTypes()))

	acc, err := a.resolver.DefaultAccount(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ Default account probe failed: %v\n", err)
		return fmt.Errorf("default account probe failed: %w", err)
	}
	fmt.Fprintf(out, "✅ Default account: %s/%s\n\n", acc.Name, acc.Type)

	if a.db.DB != nil {
		if err := runIntegrity(ctx, a, out); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "=== Validation Complete ===")
	return nil
}

func runIntegrity(ctx context.Context, a *app, out io.Writer) error {
	v, err := verifier.NewVerifier(a.db.DB, verifier.VerificationMethod(verifyMethod), a.log)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "=== Store Integrity (%s) ===\n", verifyMethod)
	stats, verr := v.Verify(ctx)
	if stats != nil {
		for _, c := range stats.Checks {
			if c.Passed {
				fmt.Fprintf(out, "✅ %s\n", c.Name)
			} else {
				fmt.Fprintf(out, "❌ %s: %s\n", c.Name, c.ErrorMessage)
			}
		}
		if stats.Method != verifier.MethodSkip {
			fmt.Fprintf(out, "Contacts: %d, raw records: %d\n", stats.Contacts, stats.RawRecords)
		}
		if stats.Digest != "" {
			fmt.Fprintf(out, "Digest: %s\n", stats.Digest)
		}
	}
	fmt.Fprintln(out)
	return verr
}
