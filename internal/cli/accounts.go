package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/omega-realm/economy/internal/app"
	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/models"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountListCmd)
	rootCmd.AddCommand(adjustCmd)
	rootCmd.AddCommand(statsCmd)

	accountCreateCmd.Flags().Int64("balance", 0, "Starting balance")
	accountListCmd.Flags().Int("limit", 50, "Maximum accounts to list")
	accountListCmd.Flags().Int("offset", 0, "Accounts to skip")
	adjustCmd.Flags().String("operator", "", "Username of the operator making the change (required)")
	adjustCmd.Flags().String("note", "", "Audit note")
	_ = adjustCmd.MarkFlagRequired("operator")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect and create accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create USERNAME",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		balance, _ := cmd.Flags().GetInt64("balance")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account := &models.Account{Username: args[0], Balance: balance}
			if err := a.Store.CreateAccount(ctx, account); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), account)
		})
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show USERNAME",
	Short: "Show an account and its recent ledger records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			history, err := a.Engine.History(ctx, account.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"account": account,
				"rank":    a.Engine.Rank(ctx, account.ID),
				"history": history,
			})
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		if limit < 1 || offset < 0 {
			return fmt.Errorf("limit must be positive and offset non-negative")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			accounts, err := a.Engine.Accounts(ctx, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accounts)
		})
	},
}

var adjustCmd = &cobra.Command{
	Use:   "adjust USERNAME BALANCE",
	Short: "Set an account's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		balance, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid balance %q", args[1])
		}
		operator, _ := cmd.Flags().GetString("operator")
		note, _ := cmd.Flags().GetString("note")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			target, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			op, err := resolve(ctx, a, operator)
			if err != nil {
				return err
			}
			record, err := a.Engine.AdminAdjust(ctx, ledger.AdjustRequest{
				TargetID:   target.ID,
				OperatorID: op.ID,
				NewBalance: balance,
				Note:       note,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show platform statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Engine.Stats(ctx)
			if err != nil {
				return err
			}
			out := map[string]any{"store": stats}
			if a.Redis != nil {
				cache := map[string]int64{}
				if n, err := a.Redis.LeaderboardSize(ctx); err == nil {
					cache["leaderboard_size"] = n
				}
				if n, err := a.Redis.BannedAccountsCount(ctx); err == nil {
					cache["cached_banned_accounts"] = n
				}
				out["cache"] = cache
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}
