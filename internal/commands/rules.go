package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/bankimport/internal/model"
)

func newRulesCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage mapping rules",
	}
	cmd.AddCommand(newRulesListCommand(dir), newRulesAddCommand(dir), newRulesDeleteCommand(dir))
	return cmd
}

func newRulesListCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mapping rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				return runRulesList(cmd.Context(), cmd.OutOrStdout(), a)
			})
		},
	}
}

func runRulesList(ctx context.Context, out io.Writer, a *app) error {
	list, err := a.rules.List(ctx, a.company.ID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tFIELD\tPATTERN\tTARGET\tTARGET ID\tUSED\tLAST USED")
	for _, r := range list {
		last := "-"
		if r.LastUsedAt != nil {
			last = r.LastUsedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.RuleType, r.SourceField, r.Pattern, r.TargetType, r.TargetID, r.UsageCount, last)
	}
	return w.Flush()
}

func newRulesAddCommand(dir *string) *cobra.Command {
	var ruleType, pattern, target, targetID, field string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a mapping rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.MappingRule{
				RuleType:    model.RuleType(ruleType),
				Pattern:     pattern,
				TargetType:  model.TargetType(target),
				TargetID:    targetID,
				SourceField: model.SourceField(field),
			}
			return withApp(cmd.Context(), *dir, func(a *app) error {
				created, err := a.rules.Create(cmd.Context(), a.company.ID, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created rule %s\n", created.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ruleType, "type", string(model.RuleContains), "equals, contains, regex or alias")
	cmd.Flags().StringVar(&pattern, "pattern", "", "text to match (required)")
	_ = cmd.MarkFlagRequired("pattern")
	cmd.Flags().StringVar(&target, "target", "", "article, counterparty, account or operationType (required)")
	_ = cmd.MarkFlagRequired("target")
	cmd.Flags().StringVar(&targetID, "target-id", "", "id of the target entity, or a direction for operationType (required)")
	_ = cmd.MarkFlagRequired("target-id")
	cmd.Flags().StringVar(&field, "field", string(model.SourceDescription), "description, payer, receiver or inn")

	return cmd
}

func newRulesDeleteCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a mapping rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *dir, func(a *app) error {
				if err := a.rules.Delete(cmd.Context(), a.company.ID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", args[0])
				return nil
			})
		},
	}
}
