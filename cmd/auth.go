package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxrules/internal/config"
	"github.com/teemow/inboxrules/internal/google"
)

func newAuthCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize inboxrules to access a Gmail account",
		Long: `Print the Google consent URL for an account, read the authorization code
from stdin and store the resulting token in the token directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gcfg := cfg.Google()
			if err := gcfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Visit this URL to authorize account %q:\n\n%s\n\nAuthorization code: ", account, gcfg.AuthURL(account))

			code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && strings.TrimSpace(code) == "" {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}

			if err := gcfg.SaveToken(context.Background(), account, strings.TrimSpace(code)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token stored for account %q\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Google account name to authorize")
	return cmd
}
