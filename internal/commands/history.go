package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(dir *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the import log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				entries, err := a.audit.Read()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tACTION\tSESSION\tDETAILS")
				for _, e := range entries {
					if e.CompanyID != a.company.ID || (sessionID != "" && e.SessionID != sessionID) {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						e.Timestamp.Local().Format(time.DateTime), e.Action, e.SessionID, e.Details)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "only entries for this session")

	return cmd
}
