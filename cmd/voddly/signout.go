package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signoutCmd = &cobra.Command{
	Use:   "signout <account-id>",
	Short: "Remove all cached secret material for an account",
	Long: `Signout clears the cached passphrase and master key for the
account, in memory and on disk, before returning. The next credential
request will prompt again.`,
	Example: `  voddly signout acc-123`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSignout,
}

func init() {
	rootCmd.AddCommand(signoutCmd)
}

func runSignout(cmd *cobra.Command, args []string) error {
	accountID := args[0]

	if err := apiClient.SignOut(accountID); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":    true,
			"account_id": accountID,
		})
		return nil
	}

	printSuccess("Signed out %s", accountID)
	return nil
}
