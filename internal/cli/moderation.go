package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omega-realm/economy/internal/app"
	"github.com/omega-realm/economy/internal/moderation"
)

func init() {
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(unbanCmd)
	rootCmd.AddCommand(bansCmd)
	rootCmd.AddCommand(sweepBansCmd)

	banCmd.Flags().String("operator", "", "Username of the operator issuing the ban (required)")
	banCmd.Flags().StringP("reason", "r", "", "Reason shown to the player (required)")
	banCmd.Flags().Duration("duration", 0, "Ban length, e.g. 72h; zero bans indefinitely")
	_ = banCmd.MarkFlagRequired("operator")
	_ = banCmd.MarkFlagRequired("reason")

	unbanCmd.Flags().String("operator", "", "Username of the operator lifting the ban (required)")
	_ = unbanCmd.MarkFlagRequired("operator")
}

var banCmd = &cobra.Command{
	Use:   "ban USERNAME",
	Short: "Ban an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")
		reason, _ := cmd.Flags().GetString("reason")
		duration, _ := cmd.Flags().GetDuration("duration")
		if duration < 0 {
			return fmt.Errorf("duration must not be negative")
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			target, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			op, err := resolve(ctx, a, operator)
			if err != nil {
				return err
			}
			req := moderation.BanRequest{AccountID: target.ID, OperatorID: op.ID, Reason: reason}
			if duration > 0 {
				ms := duration.Milliseconds()
				req.DurationMs = &ms
			}
			ban, err := a.Moderation.Ban(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ban)
		})
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban USERNAME",
	Short: "Lift every active ban on an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			target, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			op, err := resolve(ctx, a, operator)
			if err != nil {
				return err
			}
			if err := a.Moderation.Unban(ctx, target.ID, op.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unbanned\n", target.Username)
			return nil
		})
	},
}

var bansCmd = &cobra.Command{
	Use:   "bans USERNAME",
	Short: "List an account's ban history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			target, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			bans, err := a.Moderation.ListBans(ctx, target.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), bans)
		})
	},
}

var sweepBansCmd = &cobra.Command{
	Use:   "sweep-bans",
	Short: "Lift timed bans that have elapsed",
	Long: `Lift bans whose expiry has passed. An account stays banned while any
other active ban on it has not elapsed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			start := time.Now()
			lifted, err := a.Moderation.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lifted %d ban(s) in %s\n", len(lifted), time.Since(start).Round(time.Millisecond))
			for _, id := range lifted {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}
