package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rxcare/rxcare/internal/platform/clock"
)

type Service struct {
	medicines MedicineRepository
	clock     clock.Clock
}

func NewService(medicines MedicineRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{medicines: medicines, clock: clk}
}

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative")
	}
	if m.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if m.ReorderLevel < 0 {
		return fmt.Errorf("reorder_level must not be negative")
	}
	m.Active = true
	return s.medicines.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative")
	}
	return s.medicines.Update(ctx, m)
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	return s.medicines.Delete(ctx, id)
}

func (s *Service) SearchMedicines(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.Search(ctx, params, limit, offset)
}

// Restock adds received stock to a medicine and returns the new
// on-hand quantity.
func (s *Service) Restock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("restock amount must be positive, got %d", amount)
	}
	return s.medicines.IncreaseStock(ctx, id, amount)
}

// Deduct removes dispensed stock. It returns InsufficientStockError
// when fewer than amount units are on hand.
func (s *Service) Deduct(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}
	return s.medicines.DecreaseStock(ctx, id, amount)
}

// AdjustQuantity overwrites the on-hand quantity, e.g. after a
// physical stock count.
func (s *Service) AdjustQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative, got %d", quantity)
	}
	return s.medicines.SetQuantity(ctx, id, quantity)
}

// IsAvailable reports whether at least quantity unexpired units of an
// active medicine are on hand.
func (s *Service) IsAvailable(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !m.Active || m.IsExpired(s.clock.Now()) {
		return false, nil
	}
	return m.Quantity >= quantity, nil
}

// Snapshot returns the medicine's current price for billing.
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID) (*PriceSnapshot, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PriceSnapshot{MedicineID: m.ID, Name: m.Name, UnitPrice: m.UnitPrice}, nil
}

func (s *Service) ListLowStock(ctx context.Context) ([]*Medicine, error) {
	return s.medicines.ListLowStock(ctx)
}

func (s *Service) CountLowStock(ctx context.Context) (int, error) {
	return s.medicines.CountLowStock(ctx)
}

// ListExpiringWithin returns medicines whose expiry date falls within
// the next `days` days. Already-expired stock is excluded; the alert
// covers upcoming expiry only.
func (s *Service) ListExpiringWithin(ctx context.Context, days int) ([]*Medicine, error) {
	if days < 0 {
		return nil, fmt.Errorf("days must not be negative, got %d", days)
	}
	now := s.clock.Now()
	return s.medicines.ListExpiringBetween(ctx, now, now.AddDate(0, 0, days))
}

func (s *Service) CountExpiringWithin(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", days)
	}
	now := s.clock.Now()
	return s.medicines.CountExpiringBetween(ctx, now, now.AddDate(0, 0, days))
}
