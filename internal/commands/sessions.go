package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/auditlog"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

// dateLayout is the date format accepted by command flags.
const dateLayout = "2006-01-02"

func newSessionsCommand(dir *string) *cobra.Command {
	var (
		status        string
		from, to      string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List import sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.SessionFilter{
				Status: model.SessionStatus(status),
				Limit:  limit,
				Offset: offset,
			}
			switch model.SessionStatus(status) {
			case "", model.SessionDraft, model.SessionConfirmed, model.SessionProcessed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			var err error
			if f.CreatedFrom, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if f.CreatedBefore, err = parseDateFlag("to", to); err != nil {
				return err
			}
			if !f.CreatedBefore.IsZero() {
				f.CreatedBefore = f.CreatedBefore.AddDate(0, 0, 1)
			}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				return runSessions(cmd.Context(), cmd.OutOrStdout(), a, f)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, confirmed, processed)")
	cmd.Flags().StringVar(&from, "from", "", "created on or after date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "created on or before date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")

	return cmd
}

func runSessions(ctx context.Context, out io.Writer, a *app, f store.SessionFilter) error {
	page, err := a.sessions.ListSessions(ctx, a.company.ID, f)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSTATUS\tIMPORTED\tCONFIRMED\tPOSTED\tCREATED")
	for _, s := range page.Sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.FileName, s.Status, s.ImportedCount, s.ConfirmedCount, s.ProcessedCount,
			s.CreatedAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d sessions\n", len(page.Sessions), page.Total)
	return nil
}

func newDeleteSessionCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-session <session-id>",
		Short: "Delete an import session and its drafts",
		Long:  "Delete an import session and its drafts. Operations already posted from it stay in the ledger.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				n, err := a.sessions.DeleteSession(cmd.Context(), a.company.ID, args[0])
				if err != nil {
					return err
				}
				a.record(auditlog.ActionDelete, args[0], fmt.Sprintf("%d rows removed", n))
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s (%d rows)\n", args[0], n)
				return nil
			})
		},
	}
}

func parseDateFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q: %w", name, v, err)
	}
	return t, nil
}
