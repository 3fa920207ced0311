package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/config"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

// CatalogDir holds the seed CSV files inside a project.
const CatalogDir = "catalog"

func newInitCommand() *cobra.Command {
	var name string
	var taxID string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new bank import project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), cmd.OutOrStdout(), absDir, name, taxID)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "company name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&taxID, "tax-id", "", "company ИНН (required)")
	_ = cmd.MarkFlagRequired("tax-id")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir, name, taxID string) error {
	if !model.ValidTaxID(taxID) {
		return fmt.Errorf("invalid tax id %q: want 10 or 12 digits", taxID)
	}
	cfgPath := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists in %s", ConfigFile, dir)
	}

	cfg := config.Default(name, taxID)

	// Create directory structure.
	dirs := []string{
		CatalogDir,
		cfg.Import.InboxDir,
		cfg.Import.ProcessedDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write bankimport.yaml.
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Create the database with the company and its starter articles.
	st, err := store.Open(filepath.Join(dir, cfg.Database.Path))
	if err != nil {
		return err
	}
	defer st.Close()

	company := model.Company{Name: name, TaxID: taxID, Active: true}
	articles := catalog.DefaultArticles()
	err = st.Transaction(ctx, func(tx *store.Tx) error {
		if err := tx.CreateCompany(ctx, &company); err != nil {
			return err
		}
		return tx.SaveArticles(ctx, company.ID, articles)
	})
	if err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	// Write seed catalog files for editing and re-import.
	if err := catalog.New(nil, articles, nil).Save(filepath.Join(dir, CatalogDir)); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}

	// Write .gitignore.
	gitignore := cfg.Database.Path + "*\n.env\nlogs/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	fmt.Fprintf(out, "Initialized bank import project at %s (company %s)\n", dir, company.ID)
	return nil
}
