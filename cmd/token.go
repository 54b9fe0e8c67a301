package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blogem/devkb/config"
	"github.com/blogem/devkb/services"
)

var tokenEmail string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a local account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return mintToken(cmd.Context(), cfg, logger, tokenEmail, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email of the local account")
	tokenCmd.MarkFlagRequired("email")
}

// mintToken prints a token for the account registered under email
func mintToken(ctx context.Context, cfg *config.Config, logger *slog.Logger, email string, out io.Writer) error {
	if !cfg.TokensEnabled() {
		return errors.New("SECRET_KEY is not set")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	principal, err := a.services.Auth.LookupPrincipal(ctx, email)
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("no local account for %s", email)
	}
	if err != nil {
		return err
	}

	token, expiresAt, err := a.services.Auth.IssueToken(principal)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	logger.Info("token issued", "actor", principal.ID, "expires_at", expiresAt)
	return nil
}
