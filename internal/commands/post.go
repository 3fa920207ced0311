package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/auditlog"
	"github.com/cleared-dev/bankimport/internal/session"
)

func newPostCommand(dir *string) *cobra.Command {
	var learn bool

	cmd := &cobra.Command{
		Use:   "post <session-id> [draft-id...]",
		Short: "Post drafts to the ledger",
		Long: "Post drafts to the ledger. Without draft ids every confirmed, unposted draft of the " +
			"session is posted. Nothing is written if any selected draft fails validation.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := session.ImportRequest{DraftIDs: args[1:], LearnRules: learn}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				res, err := a.sessions.ImportOperations(cmd.Context(), a.company.ID, args[0], req)
				if err != nil {
					return err
				}
				a.record(auditlog.ActionPost, args[0], fmt.Sprintf("%d posted, %d errors, %d rules learned",
					res.Created, res.Errors, res.RulesLearned))
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Posted %d operations, %d errors; session is %s\n",
					res.Created, res.Errors, res.Session.Status)
				if res.RulesLearned > 0 {
					fmt.Fprintf(out, "  learned %d rules\n", res.RulesLearned)
				}
				for _, ie := range res.ItemErrors {
					fmt.Fprintf(out, "  %s: %s\n", ie.Key, ie.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&learn, "learn", false, "store rules from manually classified drafts")

	return cmd
}
