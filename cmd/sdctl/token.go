package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Developer bearer tokens",
}

var tokenSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a bearer token for a user with JWT_SECRET",
	RunE:  runTokenSign,
}

func init() {
	tokenCmd.AddCommand(tokenSignCmd)
	tokenSignCmd.Flags().String("user", "", "user id placed in the subject")
	tokenSignCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	_ = tokenSignCmd.MarkFlagRequired("user")
}

func runTokenSign(cmd *cobra.Command, args []string) error {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	userID, _ := cmd.Flags().GetString("user")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	token, err := middleware.SignToken(secret, os.Getenv("JWT_ISSUER"), strings.TrimSpace(userID), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
