package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/ledger"
)

func newExportCommand(dir *string) *cobra.Command {
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write posted operations as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				if output == "" || output == "-" {
					return runExport(cmd.Context(), cmd.OutOrStdout(), a, start, end)
				}
				f, err := os.Create(projectPath(a.dir, output))
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				if err := runExport(cmd.Context(), f, a, start, end); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first operation date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last operation date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")

	return cmd
}

func runExport(ctx context.Context, w io.Writer, a *app, from, to time.Time) error {
	ops, err := a.store.ListOperations(ctx, a.company.ID, from, to)
	if err != nil {
		return err
	}
	return ledger.WriteOperations(w, ops)
}
