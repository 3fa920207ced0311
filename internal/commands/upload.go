package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/bankimport/internal/auditlog"
	"github.com/cleared-dev/bankimport/internal/importer"
	"github.com/cleared-dev/bankimport/internal/session"
)

func newUploadCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <statement-file>",
		Short: "Import a 1C client-bank statement into a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				res, err := uploadFile(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				printUploadResult(cmd.OutOrStdout(), filepath.Base(args[0]), res)
				return nil
			})
		},
	}
}

func uploadFile(ctx context.Context, a *app, path string) (session.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.UploadResult{}, fmt.Errorf("reading statement: %w", err)
	}
	name := filepath.Base(path)
	res, err := a.sessions.Upload(ctx, a.company.ID, session.UploadRequest{
		FileName: name,
		Data:     data,
	})
	if err != nil {
		return res, err
	}
	a.record(auditlog.ActionUpload, res.Session.ID, fmt.Sprintf("%s: %d imported, %d duplicates, %d errors",
		name, res.Imported, res.Duplicates, res.Errors))
	return res, nil
}

func printUploadResult(out io.Writer, name string, res session.UploadResult) {
	fmt.Fprintf(out, "%s: session %s, %d imported, %d duplicates, %d errors, %d skipped, %d invalid\n",
		name, res.Session.ID, res.Imported, res.Duplicates, res.Errors, res.Skipped, res.Invalid)
	if res.PossibleDuplicates > 0 {
		fmt.Fprintf(out, "  %d documents were already posted before\n", res.PossibleDuplicates)
	}
	for _, ie := range res.ItemErrors {
		fmt.Fprintf(out, "  %s: %s\n", ie.Key, ie.Message)
	}
}

func newScanCommand(dir *string) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Import every statement waiting in the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				return runScan(cmd.Context(), cmd.OutOrStdout(), a, workers)
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "statements imported concurrently")

	return cmd
}

// runScan uploads inbox files concurrently and moves each imported file to
// the processed directory. A failed file stays in the inbox.
func runScan(ctx context.Context, out io.Writer, a *app, workers int) error {
	inbox := projectPath(a.dir, a.cfg.Import.InboxDir)
	processed := projectPath(a.dir, a.cfg.Import.ProcessedDir)

	files, err := importer.Scan(inbox)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "Inbox is empty")
		return nil
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, f := range files {
		g.Go(func() error {
			res, err := uploadFile(ctx, a, f.Path)
			if err == nil {
				err = importer.MarkProcessed(inbox, processed, f.Name)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				a.log.Error().Err(err).Str("file", f.Name).Msg("statement import failed")
				fmt.Fprintf(out, "%s: %v\n", f.Name, err)
				return nil
			}
			printUploadResult(out, f.Name, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d statements failed", failed, len(files))
	}
	return nil
}
