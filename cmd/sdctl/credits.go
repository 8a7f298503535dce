package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/credit"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and grant drawing credits",
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add credits to a user, creating the user when missing",
	RunE:  runCreditsGrant,
}

var creditsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a user's balance",
	RunE:  runCreditsShow,
}

func init() {
	creditsCmd.AddCommand(creditsGrantCmd)
	creditsCmd.AddCommand(creditsShowCmd)

	creditsGrantCmd.Flags().String("user", "", "user id")
	creditsGrantCmd.Flags().Int("amount", 0, "credits to add")
	_ = creditsGrantCmd.MarkFlagRequired("user")
	_ = creditsGrantCmd.MarkFlagRequired("amount")

	creditsShowCmd.Flags().String("user", "", "user id")
	_ = creditsShowCmd.MarkFlagRequired("user")
}

func runCreditsGrant(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	amount, _ := cmd.Flags().GetInt("amount")
	return withLedger(cmd.Context(), func(ctx context.Context, l *credit.Ledger) error {
		balance, err := l.Grant(ctx, strings.TrimSpace(userID), amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s balance=%d\n", userID, balance)
		return nil
	})
}

func runCreditsShow(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	return withLedger(cmd.Context(), func(ctx context.Context, l *credit.Ledger) error {
		balance, err := l.Balance(ctx, strings.TrimSpace(userID))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s balance=%d\n", userID, balance)
		return nil
	})
}

func withLedger(ctx context.Context, fn func(context.Context, *credit.Ledger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return fn(ctx, credit.NewLedger(infra.NewSQLRunner(pool, logger), logger))
}
