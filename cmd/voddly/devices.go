package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "device <account-id>",
	Short: "Show device registration and cache status for an account",
	Example: `  voddly device acc-123
  voddly device acc-123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	accountID := args[0]

	status := apiClient.Devices.Status(accountID)
	passRemaining := apiClient.Passphrases.TimeRemaining(accountID)
	keyRemaining := apiClient.MasterKeys.TimeRemaining(accountID)

	if jsonOutput {
		printJSON(map[string]interface{}{
			"account_id":          accountID,
			"device_id":           apiClient.Devices.DeviceID(),
			"status":              status.String(),
			"passphrase_cached":   passRemaining > 0,
			"passphrase_ttl_secs": int(passRemaining.Seconds()),
			"master_key_cached":   keyRemaining > 0,
			"master_key_ttl_secs": int(keyRemaining.Seconds()),
		})
		return nil
	}

	printInfo("Device %s", apiClient.Devices.DeviceID())
	fmt.Printf("  Registration: %s\n", status)
	fmt.Printf("  Passphrase:   %s\n", describeTTL(passRemaining))
	fmt.Printf("  Master key:   %s\n", describeTTL(keyRemaining))

	return nil
}

func describeTTL(remaining time.Duration) string {
	if remaining <= 0 {
		return "not cached"
	}
	return fmt.Sprintf("cached, %s remaining", remaining.Round(time.Second))
}
