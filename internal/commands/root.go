package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "bankimport",
		Short:   "Import 1C bank statements and match them to the ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&dir, "dir", "C", ".", "project directory")

	rootCmd.AddCommand(
		newInitCommand(),
		newCatalogCommand(&dir),
		newUploadCommand(&dir),
		newScanCommand(&dir),
		newSessionsCommand(&dir),
		newDraftsCommand(&dir),
		newUpdateCommand(&dir),
		newConfirmCommand(&dir),
		newApplyRulesCommand(&dir),
		newPostCommand(&dir),
		newDeleteSessionCommand(&dir),
		newRulesCommand(&dir),
		newExportCommand(&dir),
		newHistoryCommand(&dir),
	)

	return rootCmd
}
