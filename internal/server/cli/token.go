package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/docsync/internal/server/handlers"
)

func (a *App) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a docsync client",
		Example: `  docsync-server token --subject laptop --ttl 720h --jwt-secret "$SECRET"
  docsync --token "$(docsync-server token --subject laptop)" status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := a.v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("--jwt-secret is required")
			}
			subject := a.v.GetString("subject")
			if subject == "" {
				return errors.New("--subject is required")
			}
			ttl := a.v.GetDuration("ttl")
			if ttl <= 0 {
				return fmt.Errorf("invalid --ttl %s: must be positive", ttl)
			}

			token, _, err := handlers.GenerateAccessToken(handlers.JWTConfig{
				Secret:         []byte(secret),
				AccessTokenTTL: ttl,
			}, subject)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			a.logger.Info("Access token issued", "subject", subject, "expires_at", time.Now().Add(ttl).Format(time.RFC3339))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("subject", "", "Client name stored in the token")
	cmd.Flags().Duration("ttl", 30*24*time.Hour, "Token lifetime")
	cmd.Flags().String("jwt-secret", "", "HMAC secret shared with 'docsync-server serve'")
	return cmd
}
