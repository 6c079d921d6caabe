package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/auth"
)

type tokenOptions struct {
	subject string
	scope   string
	ttl     time.Duration
}

func newTokenCmd(opts *globalOptions) *cobra.Command {
	tok := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the status API",
		Long: `Print a signed bearer token for the status API's POST endpoints, using
api.token_secret from the config file (or WLDDC_API_TOKEN_SECRET).`,
		Example: `  curl -X POST -H "Authorization: Bearer $(wlddc token)" http://127.0.0.1:9477/api/v1/refresh`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.API.TokenSecret == "" {
				return errors.New("api.token_secret is not set")
			}

			token, err := auth.GenerateToken(tok.subject, tok.scope, cfg.API.TokenSecret, tok.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tok.subject, "subject", "cli", "Who the token is for, shown in API logs")
	cmd.Flags().StringVar(&tok.scope, "scope", auth.ScopeControl, "Token scope")
	cmd.Flags().DurationVar(&tok.ttl, "ttl", auth.DefaultTTL, "Token lifetime")
	return cmd
}
