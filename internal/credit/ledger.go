// Package credit owns the per-user drawing balance.
package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/sqlinline"
)

// MinimumBalance is the balance a user must hold before any drawing is
// accepted. It is independent of the per-drawing cost.
const MinimumBalance = 5

// Ledger debits and reads balances through a single conditional statement
// so concurrent requests can never both pass the threshold check.
type Ledger struct {
	db     infra.SQLExecutor
	logger zerolog.Logger
}

func NewLedger(db infra.SQLExecutor, logger zerolog.Logger) *Ledger {
	return &Ledger{db: db, logger: infra.Component(logger, "credit")}
}

// CheckAndDebit subtracts debitAmount when the balance is at least
// requiredMinimum. Nothing is written on rejection.
func (l *Ledger) CheckAndDebit(ctx context.Context, userID string, requiredMinimum, debitAmount int) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrUserNotFound
	}
	if debitAmount < 0 {
		return fmt.Errorf("%w: negative debit %d", domain.ErrInvalidParams, debitAmount)
	}

	var remaining int
	err := l.db.QueryRow(ctx, sqlinline.QDebitFrequency, userID, requiredMinimum, debitAmount).Scan(&remaining)
	if err == nil {
		l.logger.Info().Str("user_id", userID).Int("debit", debitAmount).Int("remaining", remaining).Msg("credit debited")
		return nil
	}
	if !infra.IsNoRows(err) {
		return fmt.Errorf("credit: debit %s: %w", userID, err)
	}
	return l.classify(ctx, userID, requiredMinimum)
}

// classify explains why the conditional debit matched no row.
func (l *Ledger) classify(ctx context.Context, userID string, requiredMinimum int) error {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	user := domain.User{ID: userID, Frequency: balance}
	if !user.CanAfford(requiredMinimum) {
		l.logger.Info().Str("user_id", userID).Int("balance", balance).Int("required", requiredMinimum).Msg("credit rejected")
	} else {
		// The balance was topped up between the two statements; the
		// request still lost the race and is rejected without retrying.
		l.logger.Warn().Str("user_id", userID).Int("balance", balance).Msg("credit changed during debit")
	}
	return domain.ErrInsufficientCredit
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QSelectFrequency, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("credit: balance %s: %w", userID, err)
	}
	return balance, nil
}

// Grant adds amount to the balance, creating the user row when missing.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("credit: user id is required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant must be positive", domain.ErrInvalidParams)
	}
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QGrantFrequency, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("credit: grant %s: %w", userID, err)
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Int("balance", balance).Msg("credit granted")
	return balance, nil
}

var _ domain.CreditRepository = (*Ledger)(nil)
