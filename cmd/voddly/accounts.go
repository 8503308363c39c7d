package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accessible accounts and their sources",
	Example: `  voddly accounts
  voddly accounts --json`,
	RunE: runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	accounts, err := apiClient.Accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	type sourceInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type accountInfo struct {
		ID      string       `json:"id"`
		Name    string       `json:"name"`
		Sources []sourceInfo `json:"sources"`
	}

	var out []accountInfo
	for _, account := range accounts {
		sources, _, err := apiClient.Accounts.GetSources(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("list sources for %s: %w", account.ID, err)
		}

		info := accountInfo{ID: account.ID, Name: account.Name}
		for _, source := range sources {
			info.Sources = append(info.Sources, sourceInfo{ID: source.ID, Name: source.Name})
		}
		out = append(out, info)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"accounts": out})
		return nil
	}

	if len(out) == 0 {
		printWarning("No accounts found")
		return nil
	}

	for _, account := range out {
		printInfo("%s (%s)", account.Name, account.ID)
		if len(account.Sources) == 0 {
			fmt.Println("  no sources")
			continue
		}
		for _, source := range account.Sources {
			fmt.Printf("  %s  %s\n", source.ID, source.Name)
		}
	}

	return nil
}
