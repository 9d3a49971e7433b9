package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-connector/internal/auth"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// newTokenCmd issues a bearer token for the status API, signed with the
// configured api.jwt_secret.
func newTokenCmd(configFlag *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a status API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath(*configFlag))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is not set (set MQTTCONNECT_JWT_SECRET)")
			}

			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.API.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "role: viewer or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
