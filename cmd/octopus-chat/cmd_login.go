package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"octopus/internal/infra/postgrest"
	"octopus/internal/infra/security"
)

var (
	loginEmail    string
	loginPassword string
	loginToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache the session",
	Long: `Sign in with email and password against the Supabase project, or store an
existing access token with --token. The principal is cached in the session
file until 'octopus-chat logout'.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sessions.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "existing access token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(loginToken)
	if token == "" {
		if loginEmail == "" || loginPassword == "" {
			return fmt.Errorf("--email and --password are required without --token")
		}
		if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for password sign-in")
		}
		client := postgrest.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.StoreTimeout)
		res, err := client.SignIn(cmd.Context(), strings.TrimSpace(loginEmail), loginPassword)
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		token = res.AccessToken
	}
	p, err := security.ParseUnverified(token)
	if err != nil {
		return err
	}
	if err := sessions.Save(p); err != nil {
		return err
	}
	logger.Debug("session cached", "user_id", p.UserID, "role", p.Role)
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s).\n", p.UserID, p.Role)
	return nil
}
