package domain

import "context"

// CreditRepository mutates and reads user balances.
type CreditRepository interface {
	CheckAndDebit(ctx context.Context, userID string, requiredMinimum, debitAmount int) error
	Balance(ctx context.Context, userID string) (int, error)
	Grant(ctx context.Context, userID string, amount int) (int, error)
}

// ControlNetRepository reads the control-net catalog.
type ControlNetRepository interface {
	ByType(ctx context.Context, selector int) (*ControlNetProfile, error)
	List(ctx context.Context) ([]ControlNetProfile, error)
}

// DrawingRepository persists and reads drawings.
type DrawingRepository interface {
	Record(ctx context.Context, d NewDrawing) (string, error)
	Get(ctx context.Context, drawingID, userID string) (*Drawing, error)
}
