package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/auditlog"
	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/session"
	"github.com/cleared-dev/bankimport/internal/store"
)

func newDraftsCommand(dir *string) *cobra.Command {
	var (
		confirmed, matched, duplicate, processed bool
		limit, offset                            int
	)

	cmd := &cobra.Command{
		Use:   "drafts <session-id>",
		Short: "List the drafts of an import session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.DraftFilter{Limit: limit, Offset: offset}
			flags := cmd.Flags()
			if flags.Changed("confirmed") {
				f.Confirmed = &confirmed
			}
			if flags.Changed("matched") {
				f.Matched = &matched
			}
			if flags.Changed("duplicate") {
				f.Duplicate = &duplicate
			}
			if flags.Changed("processed") {
				f.Processed = &processed
			}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				return runDrafts(cmd.Context(), cmd.OutOrStdout(), a, args[0], f)
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "only confirmed (or, with =false, unconfirmed) drafts")
	cmd.Flags().BoolVar(&matched, "matched", false, "only fully matched (or unmatched) drafts")
	cmd.Flags().BoolVar(&duplicate, "duplicate", false, "only duplicates (or non-duplicates)")
	cmd.Flags().BoolVar(&processed, "processed", false, "only posted (or unposted) drafts")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")

	return cmd
}

func runDrafts(ctx context.Context, out io.Writer, a *app, sessionID string, f store.DraftFilter) error {
	page, err := a.sessions.ListDrafts(ctx, a.company.ID, sessionID, f)
	if err != nil {
		return err
	}
	cat, err := a.store.LoadCatalog(ctx, a.company.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tNUMBER\tAMOUNT\tTYPE\tCOUNTERPARTY\tARTICLE\tACCOUNT\tBY\tFLAGS")
	for _, d := range page.Drafts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Source.Date.Format(dateLayout), d.Source.Number, d.Source.Amount.StringFixed(2),
			d.Direction, counterpartyLabel(cat, d), articleLabel(cat, d.ArticleID), accountLabel(cat, d.AccountID),
			d.MatchedBy, draftFlags(d))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	c := page.Counts
	fmt.Fprintf(out, "%d drafts: %d confirmed, %d unmatched, %d duplicates, %d posted\n",
		c.Total, c.Confirmed, c.Unmatched, c.Duplicates, c.Processed)
	return nil
}

func counterpartyLabel(cat *catalog.Catalog, d model.ImportedOperation) string {
	if cp, ok := cat.Counterparty(d.CounterpartyID); ok {
		return cp.Name
	}
	if d.CounterpartyID != "" {
		return d.CounterpartyID
	}
	return "-"
}

func articleLabel(cat *catalog.Catalog, id string) string {
	if a, ok := cat.Article(id); ok {
		return a.Name
	}
	if id != "" {
		return id
	}
	return "-"
}

func accountLabel(cat *catalog.Catalog, id string) string {
	if a, ok := cat.Account(id); ok {
		return a.Name
	}
	if id != "" {
		return id
	}
	return "-"
}

// draftFlags renders review state: C confirmed, D duplicate, P posted, L
// locked fields.
func draftFlags(d model.ImportedOperation) string {
	var b strings.Builder
	if d.Confirmed {
		b.WriteByte('C')
	}
	if d.IsDuplicate {
		b.WriteByte('D')
	}
	if d.Processed {
		b.WriteByte('P')
	}
	if len(d.LockedFields) > 0 {
		b.WriteByte('L')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// patchFlags collects the editable draft fields shared by update and confirm.
type patchFlags struct {
	direction    string
	article      string
	counterparty string
	account      string
	currency     string
	unlock       []string
}

func (p *patchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.direction, "direction", "", "income, expense or transfer")
	cmd.Flags().StringVar(&p.article, "article", "", "article id (empty to clear)")
	cmd.Flags().StringVar(&p.counterparty, "counterparty", "", "counterparty id (empty to clear)")
	cmd.Flags().StringVar(&p.account, "account", "", "account id (empty to clear)")
	cmd.Flags().StringVar(&p.currency, "currency", "", "currency code")
	cmd.Flags().StringSliceVar(&p.unlock, "unlock", nil, "fields to release for automatic matching")
}

func (p *patchFlags) patch(cmd *cobra.Command) (session.Patch, error) {
	var out session.Patch
	flags := cmd.Flags()
	if flags.Changed("direction") {
		d, ok := model.ParseDirection(p.direction)
		if !ok {
			return out, fmt.Errorf("unknown direction %q", p.direction)
		}
		out.Direction = &d
	}
	if flags.Changed("article") {
		out.ArticleID = &p.article
	}
	if flags.Changed("counterparty") {
		out.CounterpartyID = &p.counterparty
	}
	if flags.Changed("account") {
		out.AccountID = &p.account
	}
	if flags.Changed("currency") {
		out.Currency = &p.currency
	}
	for _, name := range p.unlock {
		f, ok := model.ParseField(name)
		if !ok {
			return out, fmt.Errorf("unknown field %q", name)
		}
		out.Unlock = append(out.Unlock, f)
	}
	return out, nil
}

func newUpdateCommand(dir *string) *cobra.Command {
	var pf patchFlags
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "update <session-id> <draft-id>",
		Short: "Correct a draft by hand; edited fields are locked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.patch(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("confirmed") {
				p.Confirmed = &confirmed
			}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				res, err := a.sessions.UpdateDraft(cmd.Context(), a.company.ID, args[0], args[1], p)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Updated draft %s (matched by %q)\n", res.Draft.ID, res.Draft.MatchedBy)
				if len(res.Skipped) > 0 {
					fmt.Fprintf(out, "  locked, not changed: %s\n", joinFields(res.Skipped))
				}
				return nil
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "mark the draft confirmed (or unconfirmed)")

	return cmd
}

func newConfirmCommand(dir *string) *cobra.Command {
	var pf patchFlags
	var undo bool

	cmd := &cobra.Command{
		Use:   "confirm <session-id> [draft-id...]",
		Short: "Confirm drafts for posting",
		Long: "Confirm drafts for posting, optionally applying the same corrections to each. " +
			"Without draft ids every unconfirmed, unposted, non-duplicate draft is confirmed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.patch(cmd)
			if err != nil {
				return err
			}
			confirmed := !undo
			p.Confirmed = &confirmed
			return withApp(cmd.Context(), *dir, func(a *app) error {
				return runConfirm(cmd.Context(), cmd.OutOrStdout(), a, args[0], args[1:], p)
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the confirmation instead")

	return cmd
}

func runConfirm(ctx context.Context, out io.Writer, a *app, sessionID string, ids []string, p session.Patch) error {
	if len(ids) == 0 {
		no := false
		page, err := a.sessions.ListDrafts(ctx, a.company.ID, sessionID, store.DraftFilter{
			Confirmed: &no,
			Duplicate: &no,
			Processed: &no,
		})
		if err != nil {
			return err
		}
		for _, d := range page.Drafts {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No drafts to confirm")
		return nil
	}

	res, err := a.sessions.BulkUpdate(ctx, a.company.ID, sessionID, ids, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %d of %d drafts\n", res.Updated, len(ids))
	for id, fields := range res.Skipped {
		fmt.Fprintf(out, "  %s: locked, not changed: %s\n", id, joinFields(fields))
	}
	for _, ie := range res.Errors {
		fmt.Fprintf(out, "  %s: %s\n", ie.Key, ie.Message)
	}
	return nil
}

func newApplyRulesCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "apply-rules <session-id>",
		Short: "Re-run matching over unconfirmed drafts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				res, err := a.sessions.ApplyRules(cmd.Context(), a.company.ID, args[0])
				if err != nil {
					return err
				}
				a.record(auditlog.ActionApplyRules, args[0], fmt.Sprintf("%d checked, %d changed", res.Checked, res.Changed))
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked %d drafts: %d changed, %d fully matched\n", res.Checked, res.Changed, res.Matched)
				for _, ie := range res.Errors {
					fmt.Fprintf(out, "  %s: %s\n", ie.Key, ie.Message)
				}
				return nil
			})
		},
	}
}

func joinFields(fields []model.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
