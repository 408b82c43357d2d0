package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxrules/internal/config"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the rules of a user",
	}

	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesValidateCmd())
	cmd.AddCommand(newRulesCatalogCmd())
	cmd.AddCommand(newRulesSetActiveCmd("enable", true))
	cmd.AddCommand(newRulesSetActiveCmd("disable", false))
	cmd.AddCommand(newRulesDeleteCmd())
	return cmd
}

// withStore loads the configuration and runs fn against the persistent store.
func withStore(fn func(ctx context.Context, st store.Store) error) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := openPersistentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

func newRulesListCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st store.Store) error {
				list, err := st.ListRules(ctx, owner)
				if err != nil {
					return err
				}
				return printRules(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "user", "default", "Owner of the rules")
	return cmd
}

func bindRuleFlags(cmd *cobra.Command, draft *rules.Rule, matchType, actionType *string) {
	cmd.Flags().StringVar(&draft.Name, "name", "", "Rule name")
	cmd.Flags().StringVar(&draft.Description, "description", "", "Rule description")
	cmd.Flags().StringVar(matchType, "match-type", string(rules.MatchSubject), "What to match: sender, subject, body, regex or header")
	cmd.Flags().StringVar(&draft.MatchValue, "match-value", "", "Keywords separated by '|' or a regular expression")
	cmd.Flags().StringVar(actionType, "action", string(rules.ActionTag), "Action: tag, archive, mark_read or move")
	cmd.Flags().StringVar(&draft.ActionValue, "action-value", "", "Label name for tag and move")
	cmd.Flags().IntVar(&draft.Priority, "priority", 0, "Higher priorities are evaluated first")
}

func newRulesAddCmd() *cobra.Command {
	var (
		owner      string
		draft      rules.Rule
		matchType  string
		actionType string
		inactive   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.MatchType = rules.MatchType(matchType)
			draft.ActionType = rules.ActionType(actionType)
			draft.IsActive = !inactive

			return withStore(func(ctx context.Context, st store.Store) error {
				created, err := st.CreateRule(ctx, owner, draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created rule %d (%s)\n", created.ID, created.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "user", "default", "Owner of the rule")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the rule disabled")
	bindRuleFlags(cmd, &draft, &matchType, &actionType)
	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	var (
		draft      rules.Rule
		matchType  string
		actionType string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a rule draft without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.MatchType = rules.MatchType(matchType)
			draft.ActionType = rules.ActionType(actionType)

			problems := rules.Validate(draft)
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Rule is valid")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
			}
			return &rules.ValidationError{Problems: problems}
		},
	}

	bindRuleFlags(cmd, &draft, &matchType, &actionType)
	return cmd
}

func newRulesCatalogCmd() *cobra.Command {
	var patterns bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the built-in rules seeded for new users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !patterns {
				return printRules(cmd.OutOrStdout(), rules.BuiltinRules())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rules.BuiltinPatterns())
		},
	}

	cmd.Flags().BoolVar(&patterns, "patterns", false, "Print the condensed category patterns as JSON")
	return cmd
}

func newRulesSetActiveCmd(use string, active bool) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Set a rule's active flag to %t", active),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st store.Store) error {
				r, err := st.SetActive(ctx, owner, id, active)
				if err != nil {
					return ruleError(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rule %d (%s) active=%t\n", r.ID, r.Name, r.IsActive)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "user", "default", "Owner of the rule")
	return cmd
}

func newRulesDeleteCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st store.Store) error {
				if err := st.DeleteRule(ctx, owner, id); err != nil {
					return ruleError(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "user", "default", "Owner of the rule")
	return cmd
}

func parseRuleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule id %q", s)
	}
	return id, nil
}

func ruleError(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rule %d not found", id)
	}
	return err
}

func printRules(w io.Writer, list []rules.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tACTIVE\tNAME\tMATCH\tACTION")
	for _, r := range list {
		action := string(r.ActionType)
		if r.ActionValue != "" {
			action += ":" + r.ActionValue
		}
		fmt.Fprintf(tw, "%d\t%d\t%t\t%s\t%s=%s\t%s\n",
			r.ID, r.Priority, r.IsActive, r.Name, r.MatchType, truncate(r.MatchValue, 40), action)
	}
	return tw.Flush()
}
