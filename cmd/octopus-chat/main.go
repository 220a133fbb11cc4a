package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"octopus/internal/app/session"
	"octopus/internal/infra/config"
	"octopus/internal/infra/obs"
)

var (
	cfg      config.ClientConfig
	logger   *slog.Logger
	sessions *session.Store
	tzFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "octopus-chat",
	Short: "Read and answer Octopus marketplace conversations",
	Long: `octopus-chat is a terminal client for the Octopus creator/company inbox.

Sign in once with 'octopus-chat login', then list conversations with
'octopus-chat inbox' and open one with 'octopus-chat thread <counterparty>'.
Set OCTOPUS_API_ADDR to talk to an octopus server over gRPC; otherwise the
client reads the Supabase project directly with your access token.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		loaded, err := config.LoadClient()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = obs.NewLoggerTo(cmd.ErrOrStderr(), cfg.Env, os.Getenv("LOG_LEVEL"))
		path := cfg.SessionPath
		if path == "" {
			if path, err = session.DefaultPath(); err != nil {
				return fmt.Errorf("resolve session path: %w", err)
			}
		}
		sessions = session.NewStore(path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tzFlag, "tz", "", "IANA time zone for day headers (default: local)")
	rootCmd.AddCommand(loginCmd, logoutCmd, inboxCmd, threadCmd, sendCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
