// notescript-cli is the command-line interface for the NoteScript service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notescript-cli",
		Short: "NoteScript CLI",
		Long:  "Command-line interface for running scripts against NoteScript vaults.",
	}

	// Global flags
	rootCmd.PersistentFlags().String("server", getEnvDefault("NOTESCRIPT_SERVER_URL", "http://localhost:8080"), "NoteScript server URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("NOTESCRIPT_TOKEN"), "Authentication token")

	// Add commands
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newCapabilitiesCmd())
	rootCmd.AddCommand(newVaultCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newWatchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
