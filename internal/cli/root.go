// Package cli implements economyctl, the operator command line for the
// economy ledger. Commands run against the same store the API server uses.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/omega-realm/economy/internal/app"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/models"
)

var rootCmd = &cobra.Command{
	Use:   "economyctl",
	Short: "Operate the Omega Realm token economy",
	Long: `economyctl performs operator tasks against the economy store:
schema migration, balance adjustments, bans and platform statistics.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment. Logs go to stderr so command
// output stays machine readable.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg); err != nil {
		return nil, err
	}
	logrus.SetOutput(os.Stderr)
	return cfg, nil
}

// withApp builds the services for the duration of one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func resolve(ctx context.Context, a *app.App, username string) (*models.Account, error) {
	account, err := a.Store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", username, err)
	}
	return account, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
