package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rxcare/rxcare/internal/platform/clock"
)

type mockMedicineRepo struct {
	medicines map[uuid.UUID]*Medicine
}

func newMockMedicineRepo() *mockMedicineRepo {
	return &mockMedicineRepo{medicines: make(map[uuid.UUID]*Medicine)}
}

func (m *mockMedicineRepo) Create(ctx context.Context, med *Medicine) error {
	med.ID = uuid.New()
	cp := *med
	m.medicines[med.ID] = &cp
	return nil
}

func (m *mockMedicineRepo) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	med, ok := m.medicines[id]
	if !ok {
		return nil, ErrMedicineNotFound
	}
	cp := *med
	return &cp, nil
}

func (m *mockMedicineRepo) Update(ctx context.Context, med *Medicine) error {
	existing, ok := m.medicines[med.ID]
	if !ok {
		return ErrMedicineNotFound
	}
	quantity := existing.Quantity
	cp := *med
	cp.Quantity = quantity
	m.medicines[med.ID] = &cp
	return nil
}

func (m *mockMedicineRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.medicines, id)
	return nil
}

func (m *mockMedicineRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	var items []*Medicine
	for _, med := range m.medicines {
		items = append(items, med)
	}
	return items, len(items), nil
}

func (m *mockMedicineRepo) IncreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	med, ok := m.medicines[id]
	if !ok {
		return 0, ErrMedicineNotFound
	}
	med.Quantity += amount
	return med.Quantity, nil
}

func (m *mockMedicineRepo) DecreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	med, ok := m.medicines[id]
	if !ok {
		return 0, ErrMedicineNotFound
	}
	if med.Quantity < amount {
		return 0, &InsufficientStockError{MedicineID: id, Available: med.Quantity, Requested: amount}
	}
	med.Quantity -= amount
	return med.Quantity, nil
}

func (m *mockMedicineRepo) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	med, ok := m.medicines[id]
	if !ok {
		return ErrMedicineNotFound
	}
	med.Quantity = quantity
	return nil
}

func (m *mockMedicineRepo) ListLowStock(ctx context.Context) ([]*Medicine, error) {
	var items []*Medicine
	for _, med := range m.medicines {
		if med.IsLowStock() {
			items = append(items, med)
		}
	}
	return items, nil
}

func (m *mockMedicineRepo) CountLowStock(ctx context.Context) (int, error) {
	items, _ := m.ListLowStock(ctx)
	return len(items), nil
}

func (m *mockMedicineRepo) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*Medicine, error) {
	var items []*Medicine
	for _, med := range m.medicines {
		if med.ExpiryDate != nil && med.ExpiryDate.After(from) && !med.ExpiryDate.After(to) {
			items = append(items, med)
		}
	}
	return items, nil
}

func (m *mockMedicineRepo) CountExpiringBetween(ctx context.Context, from, to time.Time) (int, error) {
	items, _ := m.ListExpiringBetween(ctx, from, to)
	return len(items), nil
}

func TestCreateMedicine_Validation(t *testing.T) {
	svc := NewService(newMockMedicineRepo(), nil)
	ctx := context.Background()

	if err := svc.CreateMedicine(ctx, &Medicine{UnitPrice: 1}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.CreateMedicine(ctx, &Medicine{Name: "Paracetamol", UnitPrice: -1}); err == nil {
		t.Error("expected error for negative price")
	}
	if err := svc.CreateMedicine(ctx, &Medicine{Name: "Paracetamol", Quantity: -5}); err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestDeduct_InsufficientStock(t *testing.T) {
	repo := newMockMedicineRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	med := &Medicine{Name: "Amoxicillin", UnitPrice: 4.5, Quantity: 3}
	if err := svc.CreateMedicine(ctx, med); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Deduct(ctx, med.ID, 5); err == nil {
		t.Fatal("expected insufficient stock error")
	} else {
		var insufficient *InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if insufficient.Available != 3 || insufficient.Requested != 5 {
			t.Errorf("unexpected error detail %+v", insufficient)
		}
	}

	// A failed deduction must not change the ledger.
	got, err := svc.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 3 {
		t.Errorf("expected quantity 3 after failed deduct, got %d", got.Quantity)
	}
}

func TestDeduct_ExactStock(t *testing.T) {
	repo := newMockMedicineRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	med := &Medicine{Name: "Cetirizine", UnitPrice: 2, Quantity: 5}
	if err := svc.CreateMedicine(ctx, med); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	quantity, err := svc.Deduct(ctx, med.ID, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quantity != 0 {
		t.Errorf("expected quantity 0, got %d", quantity)
	}
}

func TestRestock_RejectsNonPositive(t *testing.T) {
	svc := NewService(newMockMedicineRepo(), nil)

	if _, err := svc.Restock(context.Background(), uuid.New(), 0); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := svc.Restock(context.Background(), uuid.New(), -3); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestIsAvailable(t *testing.T) {
	repo := newMockMedicineRepo()
	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(repo, fake)
	ctx := context.Background()

	expired := fake.Now().AddDate(0, 0, -1)
	fresh := fake.Now().AddDate(0, 6, 0)

	inStock := &Medicine{Name: "Ibuprofen", UnitPrice: 3, Quantity: 10, ExpiryDate: &fresh}
	if err := svc.CreateMedicine(ctx, inStock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale := &Medicine{Name: "Old Syrup", UnitPrice: 3, Quantity: 10, ExpiryDate: &expired}
	if err := svc.CreateMedicine(ctx, stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := svc.IsAvailable(ctx, inStock.ID, 10)
	if err != nil || !ok {
		t.Errorf("expected available, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.IsAvailable(ctx, inStock.ID, 11)
	if err != nil || ok {
		t.Errorf("expected unavailable beyond stock, got ok=%v err=%v", ok, err)
	}
	// Expired stock is never available regardless of quantity.
	ok, err = svc.IsAvailable(ctx, stale.ID, 1)
	if err != nil || ok {
		t.Errorf("expected expired medicine unavailable, got ok=%v err=%v", ok, err)
	}
	if _, err := svc.IsAvailable(ctx, uuid.New(), 1); !errors.Is(err, ErrMedicineNotFound) {
		t.Errorf("expected ErrMedicineNotFound, got %v", err)
	}
}

func TestListExpiringWithin(t *testing.T) {
	repo := newMockMedicineRepo()
	fake := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(repo, fake)
	ctx := context.Background()

	soon := fake.Now().AddDate(0, 0, 10)
	later := fake.Now().AddDate(0, 0, 90)
	already := fake.Now().AddDate(0, 0, -5)

	for _, m := range []*Medicine{
		{Name: "Soon", UnitPrice: 1, ExpiryDate: &soon},
		{Name: "Later", UnitPrice: 1, ExpiryDate: &later},
		{Name: "Already", UnitPrice: 1, ExpiryDate: &already},
		{Name: "NoExpiry", UnitPrice: 1},
	} {
		if err := svc.CreateMedicine(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := svc.ListExpiringWithin(ctx, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Already-expired stock is excluded; only "Soon" qualifies.
	if len(items) != 1 {
		t.Fatalf("expected 1 expiring medicine, got %d", len(items))
	}
	if items[0].Name != "Soon" {
		t.Errorf("unexpected medicine %s", items[0].Name)
	}

	if _, err := svc.ListExpiringWithin(ctx, -1); err == nil {
		t.Error("expected error for negative horizon")
	}
}

func TestLowStock(t *testing.T) {
	repo := newMockMedicineRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	low := &Medicine{Name: "Low", UnitPrice: 1, Quantity: 2, ReorderLevel: 5}
	atLevel := &Medicine{Name: "AtLevel", UnitPrice: 1, Quantity: 5, ReorderLevel: 5}
	healthy := &Medicine{Name: "Healthy", UnitPrice: 1, Quantity: 50, ReorderLevel: 5}
	for _, m := range []*Medicine{low, atLevel, healthy} {
		if err := svc.CreateMedicine(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Quantity equal to the reorder level counts as low.
	items, err := svc.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 low-stock medicines, got %d", len(items))
	}

	n, err := svc.CountLowStock(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected count 2, got %d err=%v", n, err)
	}
}

func TestSnapshot(t *testing.T) {
	repo := newMockMedicineRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	med := &Medicine{Name: "Azithromycin", UnitPrice: 12.5, Quantity: 20}
	if err := svc.CreateMedicine(ctx, med); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := svc.Snapshot(ctx, med.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.UnitPrice != 12.5 || snap.Name != "Azithromycin" || snap.MedicineID != med.ID {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
