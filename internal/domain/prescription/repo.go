package prescription

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Prescription, int, error)
	GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]*PrescriptionItem, error)
}
