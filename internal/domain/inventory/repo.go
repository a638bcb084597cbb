package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error)

	// Stock mutations. Decrease fails with InsufficientStockError
	// rather than letting quantity go negative; both are single
	// atomic statements so concurrent orders cannot oversell.
	IncreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error)
	DecreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error)
	SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error

	// Scans used by the reconciler.
	ListLowStock(ctx context.Context) ([]*Medicine, error)
	CountLowStock(ctx context.Context) (int, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*Medicine, error)
	CountExpiringBetween(ctx context.Context, from, to time.Time) (int, error)
}
