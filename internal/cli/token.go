package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omega-realm/economy/internal/app"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Bool("admin", false, "Grant the admin claim")
}

var tokenCmd = &cobra.Command{
	Use:   "token USERNAME",
	Short: "Mint an access token for local testing",
	Long: `Mint a signed access token for an existing account using JWT_SECRET.
Intended for development; production tokens come from the login service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := resolve(ctx, a, args[0])
			if err != nil {
				return err
			}
			token, err := a.Issuer.GenerateAccessToken(account.ID, account.Username, admin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		})
	},
}
