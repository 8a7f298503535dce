package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sdctl",
	Short: "Operator tool for the drawing service",
	Long: `sdctl manages credits, the shared generation config and developer tokens.

Examples:
  sdctl credits grant --user u-1 --amount 50
  sdctl credits show --user u-1
  sdctl config set --url http://sd:7860 --frequency 5
  sdctl token sign --user u-1 --ttl 24h`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(creditsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
}
