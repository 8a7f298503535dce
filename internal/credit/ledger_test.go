package credit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

// memoryDB evaluates the ledger statements against an in-memory table,
// applying the conditional update under one lock like the database would.
type memoryDB struct {
	mu        sync.Mutex
	balances  map[string]int
	failWith  error
	debits    int32
	lookups   int32
	lastDebit []any
}

func newMemoryDB(balances map[string]int) *memoryDB {
	return &memoryDB{balances: balances}
}

func (m *memoryDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", query)
}

func (m *memoryDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (m *memoryDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if m.failWith != nil {
		return stubRow{scan: func(...any) error { return m.failWith }}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch query {
	case sqlinline.QDebitFrequency:
		atomic.AddInt32(&m.debits, 1)
		m.lastDebit = args
		id, min, cost := args[0].(string), args[1].(int), args[2].(int)
		balance, ok := m.balances[id]
		if !ok || balance < min {
			return stubRow{scan: func(...any) error { return pgx.ErrNoRows }}
		}
		m.balances[id] = balance - cost
		remaining := m.balances[id]
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}
	case sqlinline.QSelectFrequency:
		atomic.AddInt32(&m.lookups, 1)
		balance, ok := m.balances[args[0].(string)]
		if !ok {
			return stubRow{scan: func(...any) error { return pgx.ErrNoRows }}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = balance
			return nil
		}}
	case sqlinline.QGrantFrequency:
		id, amount := args[0].(string), args[1].(int)
		m.balances[id] += amount
		balance := m.balances[id]
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = balance
			return nil
		}}
	}
	return stubRow{scan: func(...any) error { return fmt.Errorf("unexpected query: %s", query) }}
}

func (m *memoryDB) balance(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id]
}

func TestCheckAndDebitSubtractsExactAmount(t *testing.T) {
	db := newMemoryDB(map[string]int{"u1": 10})
	ledger := NewLedger(db, zerolog.Nop())

	require.NoError(t, ledger.CheckAndDebit(context.Background(), "u1", MinimumBalance, 3))
	require.Equal(t, 7, db.balance("u1"))
	require.Equal(t, []any{"u1", MinimumBalance, 3}, db.lastDebit)
	require.EqualValues(t, 0, db.lookups)
}

func TestCheckAndDebitAllowsBalanceBelowCostAboveMinimum(t *testing.T) {
	db := newMemoryDB(map[string]int{"u1": 5})
	ledger := NewLedger(db, zerolog.Nop())

	require.NoError(t, ledger.CheckAndDebit(context.Background(), "u1", MinimumBalance, 8))
	require.Equal(t, -3, db.balance("u1"))
}

func TestCheckAndDebitRejectsBelowMinimum(t *testing.T) {
	for _, balance := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("balance=%d", balance), func(t *testing.T) {
			db := newMemoryDB(map[string]int{"u1": balance})
			ledger := NewLedger(db, zerolog.Nop())

			err := ledger.CheckAndDebit(context.Background(), "u1", MinimumBalance, 1)
			require.ErrorIs(t, err, domain.ErrInsufficientCredit)
			require.Equal(t, balance, db.balance("u1"))
		})
	}
}

func TestCheckAndDebitUnknownUser(t *testing.T) {
	db := newMemoryDB(map[string]int{})
	ledger := NewLedger(db, zerolog.Nop())

	err := ledger.CheckAndDebit(context.Background(), "ghost", MinimumBalance, 1)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	err = ledger.CheckAndDebit(context.Background(), "  ", MinimumBalance, 1)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	require.EqualValues(t, 1, db.debits)
}

func TestCheckAndDebitConcurrentRequestsDebitOnce(t *testing.T) {
	db := newMemoryDB(map[string]int{"u1": 5})
	ledger := NewLedger(db, zerolog.Nop())

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded int32
		rejected  int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.CheckAndDebit(context.Background(), "u1", MinimumBalance, 5)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, domain.ErrInsufficientCredit):
				atomic.AddInt32(&rejected, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, succeeded)
	require.EqualValues(t, workers-1, rejected)
	require.Equal(t, 0, db.balance("u1"))
}

func TestCheckAndDebitWrapsDatabaseErrors(t *testing.T) {
	boom := errors.New("connection reset")
	db := newMemoryDB(nil)
	db.failWith = boom
	ledger := NewLedger(db, zerolog.Nop())

	err := ledger.CheckAndDebit(context.Background(), "u1", MinimumBalance, 1)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, domain.ErrInsufficientCredit)
}

func TestGrantAndBalance(t *testing.T) {
	db := newMemoryDB(map[string]int{})
	ledger := NewLedger(db, zerolog.Nop())

	balance, err := ledger.Grant(context.Background(), "u1", 20)
	require.NoError(t, err)
	require.Equal(t, 20, balance)

	balance, err = ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 20, balance)

	_, err = ledger.Grant(context.Background(), "u1", 0)
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = ledger.Balance(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
