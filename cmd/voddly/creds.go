package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ejkkan/voddly-sub005/internal/services/credentials"
)

var credsCmd = &cobra.Command{
	Use:   "creds <source-id>",
	Short: "Decrypt and print connection details for a source",
	Long: `Creds unwraps the account master key with your passphrase and
decrypts the source's connection details. Nothing is written to disk in
plaintext; only the passphrase and unwrapped key are cached, each for a
bounded time.`,
	Example: `  voddly creds src-123
  voddly creds src-123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCreds,
}

var credsShowPassword bool

func init() {
	rootCmd.AddCommand(credsCmd)

	credsCmd.Flags().BoolVar(&credsShowPassword, "show-password", false,
		"Print the source password instead of masking it")
}

func runCreds(cmd *cobra.Command, args []string) error {
	sourceID := args[0]
	ctx := context.Background()

	if !jsonOutput {
		apiClient.Credentials.SetProgress(func(fraction float64, status string) {
			fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", status, fraction*100)
			if fraction >= 1 {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	creds, err := apiClient.Credentials.GetSourceCredentials(ctx, sourceID, &credentials.Options{})
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Failed to resolve credentials: %v", err)
		}
		return err
	}

	password := creds.Password
	if !credsShowPassword {
		password = "********"
	}

	if jsonOutput {
		out := map[string]interface{}{
			"success":  true,
			"server":   creds.Server,
			"username": creds.Username,
			"password": password,
		}
		if creds.ContainerExtension != "" {
			out["container_extension"] = creds.ContainerExtension
		}
		printJSON(out)
		return nil
	}

	printSuccess("Credentials for %s", sourceID)
	fmt.Printf("  Server:   %s\n", creds.Server)
	fmt.Printf("  Username: %s\n", creds.Username)
	fmt.Printf("  Password: %s\n", password)
	if creds.ContainerExtension != "" {
		fmt.Printf("  Format:   %s\n", creds.ContainerExtension)
	}

	return nil
}
