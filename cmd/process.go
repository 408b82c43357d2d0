package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxrules/internal/config"
	"github.com/teemow/inboxrules/internal/google"
	"github.com/teemow/inboxrules/internal/processor"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

func newProcessCmd() *cobra.Command {
	var (
		user   store.User
		max    int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Apply rules to the unread emails of a Gmail inbox",
		Long: `Fetch unread inbox emails, select the highest-priority matching rule for
each one and apply its action. With --dry-run the matches are only printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Google().Validate(); err != nil {
				return err
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			provider, err := newInstrumentation(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = provider.Shutdown(context.Background())
			}()

			proc := newProcessor(cfg, st, provider, slog.Default())

			if dryRun {
				if max <= 0 {
					max = cfg.Processing.PreviewEmails
				}
				results, err := proc.Preview(ctx, user, max)
				if err != nil {
					return err
				}
				return printPreview(cmd.OutOrStdout(), results)
			}

			if max <= 0 {
				max = cfg.Processing.MaxEmails
			}
			summary, err := proc.Process(ctx, user, max)
			fmt.Fprintln(cmd.OutOrStdout(), processor.FormatSummary(summary))
			return err
		},
	}

	cmd.Flags().StringVar(&user.ID, "user", "default", "User whose rules are applied")
	cmd.Flags().StringVar(&user.Email, "email", "", "Email address of the user, used for audit logs")
	cmd.Flags().StringVar(&user.Account, "account", google.DefaultAccount, "Google account name holding the token")
	cmd.Flags().IntVar(&max, "max", 0, "Maximum number of emails to fetch (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only show which rule would apply to each email")
	return cmd
}

func printPreview(w io.Writer, results []rules.MatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tSENDER\tSUBJECT\tRULE\tACTION")
	for _, r := range results {
		rule, action := "-", "-"
		if r.Matched() {
			rule = r.Rule.Name
			action = string(r.Rule.ActionType)
			if r.Rule.ActionValue != "" {
				action += ":" + r.Rule.ActionValue
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Email.ID, r.Email.Sender, truncate(r.Email.Subject, 60), rule, action)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
