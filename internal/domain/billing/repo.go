package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByPrescriptionID(ctx context.Context, prescriptionID uuid.UUID) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Bill, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Bill, int, error)
	GetItems(ctx context.Context, billID uuid.UUID) ([]*BillItem, error)

	// Reconciliation queries: PENDING pay-on-pickup bills created
	// before the cutoff.
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*Bill, error)
	CountExpiredPending(ctx context.Context, cutoff time.Time) (int, error)

	// Reporting over PAID bills.
	TotalRevenue(ctx context.Context, start, end time.Time) (float64, error)
	BillCount(ctx context.Context, start, end time.Time) (int, error)
}
