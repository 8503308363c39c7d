package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ejkkan/voddly-sub005/internal/client"
	"github.com/ejkkan/voddly-sub005/internal/config"
	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/services/credentials"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "voddly",
	Short: "Voddly credential tool",
	Long: `Voddly resolves encrypted streaming source credentials.

Source connection details are stored encrypted under a master key that
only your passphrase can unwrap; this tool never sees or stores them in
plaintext beyond the moment of use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			_ = apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func setup() error {
	loader := config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	apiClient, err = client.New(cfg, credentials.PromptFunc(terminalPrompt), logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if token := os.Getenv("VODDLY_TOKEN"); token != "" {
		apiClient.SetToken(token)
	}

	return nil
}

// terminalPrompt reads a passphrase from the terminal without echo.
func terminalPrompt(ctx context.Context, accountID string, opts credentials.PromptOptions) (string, error) {
	if !jsonOutput {
		if opts.AccountName != "" {
			fmt.Fprintf(os.Stderr, "%s (%s)\n", opts.Title, opts.AccountName)
		} else {
			fmt.Fprintln(os.Stderr, opts.Title)
		}
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	return string(passphrase), nil
}

func printSuccess(format string, args ...interface{}) {
	color.Green(format, args...)
}

func printError(format string, args ...interface{}) {
	color.Red(format, args...)
}

func printWarning(format string, args ...interface{}) {
	color.Yellow(format, args...)
}

func printInfo(format string, args ...interface{}) {
	color.Cyan(format, args...)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("Failed to encode JSON: %v", err)
		return
	}
	fmt.Println(string(data))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("Error: %v", err)
		os.Exit(1)
	}
}
