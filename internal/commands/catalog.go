package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/store"
)

func newCatalogCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage accounts, articles and counterparties",
	}
	cmd.AddCommand(newCatalogImportCommand(dir), newCatalogExportCommand(dir))
	return cmd
}

func newCatalogImportCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import [catalog-dir]",
		Short: "Load seed CSV files into the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				src := projectPath(a.dir, CatalogDir)
				if len(args) > 0 {
					src = args[0]
				}
				return runCatalogImport(cmd.Context(), cmd.OutOrStdout(), a, src)
			})
		},
	}
}

func runCatalogImport(ctx context.Context, out io.Writer, a *app, src string) error {
	cat, err := catalog.LoadDir(src)
	if err != nil {
		return err
	}
	accounts, articles, counterparties := cat.Accounts(), cat.Articles(), cat.AllCounterparties()
	err = a.store.Transaction(ctx, func(tx *store.Tx) error {
		if err := tx.SaveAccounts(ctx, a.company.ID, accounts); err != nil {
			return err
		}
		if err := tx.SaveArticles(ctx, a.company.ID, articles); err != nil {
			return err
		}
		return tx.SaveCounterparties(ctx, a.company.ID, counterparties)
	})
	if err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	// Rows without an id were assigned one; keep them stable on re-import.
	if err := cat.Save(src); err != nil {
		return fmt.Errorf("writing catalog ids: %w", err)
	}
	fmt.Fprintf(out, "Imported %d accounts, %d articles, %d counterparties\n",
		len(accounts), len(articles), len(counterparties))
	return nil
}

func newCatalogExportCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export [catalog-dir]",
		Short: "Write the stored catalog back to seed CSV files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				dst := projectPath(a.dir, CatalogDir)
				if len(args) > 0 {
					dst = args[0]
				}
				cat, err := a.store.LoadCatalog(cmd.Context(), a.company.ID)
				if err != nil {
					return err
				}
				if err := cat.Save(dst); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote catalog to %s\n", dst)
				return nil
			})
		},
	}
}
