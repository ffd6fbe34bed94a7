package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"parcelwatch/internal/mail"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			oauthCfg, err := mail.LoadOAuthConfig(cfg.Gmail.CredentialsPath)
			if err != nil {
				return fmt.Errorf("load gmail credentials: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL in your browser and approve read-only access:")
			fmt.Fprintln(out)
			fmt.Fprintln(out, mail.AuthURL(oauthCfg))
			fmt.Fprintln(out)
			fmt.Fprint(out, "Enter the authorization code: ")

			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read authorization code: %w", err)
			}
			code := strings.TrimSpace(line)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			if _, err := mail.Exchange(cmd.Context(), oauthCfg, code, cfg.Gmail.TokenPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.Gmail.TokenPath)
			return nil
		},
	}
}
