package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxcare/rxcare/internal/domain/billing"
	"github.com/rxcare/rxcare/internal/domain/identity"
	"github.com/rxcare/rxcare/internal/domain/inventory"
	"github.com/rxcare/rxcare/internal/domain/prescription"
	"github.com/rxcare/rxcare/internal/platform/clock"
	"github.com/rxcare/rxcare/internal/platform/notification"
)

type fakeBillStore struct {
	bills   map[uuid.UUID]*billing.Bill
	blockOn chan struct{}
}

func newFakeBillStore() *fakeBillStore {
	return &fakeBillStore{bills: make(map[uuid.UUID]*billing.Bill)}
}

func (f *fakeBillStore) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*billing.Bill, error) {
	if f.blockOn != nil {
		<-f.blockOn
	}
	var out []*billing.Bill
	for _, b := range f.bills {
		if b.PaymentStatus == billing.StatusPending && b.PaymentType == billing.PaymentOnPickup && b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBillStore) CountExpiredPending(ctx context.Context, cutoff time.Time) (int, error) {
	items, err := f.ListExpiredPending(ctx, cutoff)
	return len(items), err
}

func (f *fakeBillStore) Cancel(ctx context.Context, id uuid.UUID, note string) (*billing.Bill, error) {
	b, ok := f.bills[id]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	b.PaymentStatus = billing.StatusCancelled
	b.Notes = &note
	return b, nil
}

type fakePrescriptionStore struct {
	rejected map[uuid.UUID]string
	failOn   uuid.UUID
}

func (f *fakePrescriptionStore) Reject(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error) {
	if id == f.failOn {
		return nil, errors.New("prescription store unavailable")
	}
	f.rejected[id] = reason
	return &prescription.Prescription{ID: id, Status: prescription.StatusRejected, RejectionReason: &reason}, nil
}

type fakeStock struct {
	quantities map[uuid.UUID]int
}

func (f *fakeStock) Restock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	f.quantities[id] += amount
	return f.quantities[id], nil
}

// fakeTx snapshots the stock map and restores it when the unit of
// work fails, mirroring the rollback a real transaction provides.
type fakeTx struct {
	stock *fakeStock
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	before := make(map[uuid.UUID]int, len(f.stock.quantities))
	for k, v := range f.stock.quantities {
		before[k] = v
	}
	if err := fn(ctx); err != nil {
		f.stock.quantities = before
		return err
	}
	return nil
}

type fakeScanner struct {
	medicines []*inventory.Medicine
	now       time.Time
}

func (f *fakeScanner) ListLowStock(ctx context.Context) ([]*inventory.Medicine, error) {
	var out []*inventory.Medicine
	for _, m := range f.medicines {
		if m.IsLowStock() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeScanner) CountLowStock(ctx context.Context) (int, error) {
	items, _ := f.ListLowStock(ctx)
	return len(items), nil
}

func (f *fakeScanner) ListExpiringWithin(ctx context.Context, days int) ([]*inventory.Medicine, error) {
	horizon := f.now.AddDate(0, 0, days)
	var out []*inventory.Medicine
	for _, m := range f.medicines {
		if m.ExpiryDate != nil && m.ExpiryDate.After(f.now) && !m.ExpiryDate.After(horizon) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeScanner) CountExpiringWithin(ctx context.Context, days int) (int, error) {
	items, _ := f.ListExpiringWithin(ctx, days)
	return len(items), nil
}

type fakeUsers struct {
	byRole map[string][]*identity.User
}

func (f *fakeUsers) ListByRole(ctx context.Context, role string) ([]*identity.User, error) {
	return f.byRole[role], nil
}

type fixture struct {
	svc           *Service
	bills         *fakeBillStore
	prescriptions *fakePrescriptionStore
	stock         *fakeStock
	scanner       *fakeScanner
	users         *fakeUsers
	notifier      *notification.MockDispatcher
	clock         *clock.Fake
}

func newFixture() *fixture {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		bills:         newFakeBillStore(),
		prescriptions: &fakePrescriptionStore{rejected: make(map[uuid.UUID]string)},
		stock:         &fakeStock{quantities: make(map[uuid.UUID]int)},
		scanner:       &fakeScanner{now: now},
		users:         &fakeUsers{byRole: make(map[string][]*identity.User)},
		notifier:      &notification.MockDispatcher{},
		clock:         clock.NewFake(now),
	}
	f.svc = NewService(
		f.bills, f.prescriptions, f.stock, f.scanner, f.users, f.notifier,
		&fakeTx{stock: f.stock}, f.clock, zerolog.Nop(), 3, 30)
	return f
}

func (f *fixture) addBill(ageDays int, items ...*billing.BillItem) *billing.Bill {
	b := &billing.Bill{
		ID:             uuid.New(),
		BillNumber:     fmt.Sprintf("BILL-TEST-%d", len(f.bills.bills)+1),
		PrescriptionID: uuid.New(),
		CustomerID:     uuid.New(),
		PaymentStatus:  billing.StatusPending,
		PaymentType:    billing.PaymentOnPickup,
		CreatedAt:      f.clock.Now().AddDate(0, 0, -ageDays),
		Items:          items,
	}
	f.bills.bills[b.ID] = b
	return b
}

func TestExpiredBillReconciliation_CancelsAndRestocks(t *testing.T) {
	f := newFixture()
	medX := uuid.New()
	f.stock.quantities[medX] = 10

	b := f.addBill(4, &billing.BillItem{MedicineID: medX, Quantity: 3})

	result, err := f.svc.RunExpiredBillReconciliation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched != 1 || result.Cancelled != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.stock.quantities[medX] != 13 {
		t.Errorf("expected MedX restocked to 13, got %d", f.stock.quantities[medX])
	}
	if b.PaymentStatus != billing.StatusCancelled {
		t.Errorf("expected bill CANCELLED, got %s", b.PaymentStatus)
	}
	reason, ok := f.prescriptions.rejected[b.PrescriptionID]
	if !ok || reason == "" {
		t.Error("expected prescription rejected with a non-empty reason")
	}
	if result.Outcomes[0].Restocked != 3 {
		t.Errorf("expected outcome restocked=3, got %d", result.Outcomes[0].Restocked)
	}
}

func TestExpiredBillReconciliation_RecentBillUntouched(t *testing.T) {
	f := newFixture()
	medX := uuid.New()
	f.stock.quantities[medX] = 10

	b := f.addBill(1, &billing.BillItem{MedicineID: medX, Quantity: 3})

	result, err := f.svc.RunExpiredBillReconciliation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched != 0 {
		t.Errorf("expected no matching bills, got %d", result.Matched)
	}
	if b.PaymentStatus != billing.StatusPending {
		t.Errorf("bill inside grace period must stay PENDING, got %s", b.PaymentStatus)
	}
	if f.stock.quantities[medX] != 10 {
		t.Errorf("expected stock unchanged at 10, got %d", f.stock.quantities[medX])
	}
}

func TestExpiredBillReconciliation_PartialFailure(t *testing.T) {
	f := newFixture()
	medA, medB, medC := uuid.New(), uuid.New(), uuid.New()
	f.stock.quantities[medA] = 0
	f.stock.quantities[medB] = 0
	f.stock.quantities[medC] = 0

	b1 := f.addBill(5, &billing.BillItem{MedicineID: medA, Quantity: 2})
	b2 := f.addBill(5, &billing.BillItem{MedicineID: medB, Quantity: 2})
	b3 := f.addBill(5, &billing.BillItem{MedicineID: medC, Quantity: 2})
	f.prescriptions.failOn = b2.PrescriptionID

	result, err := f.svc.RunExpiredBillReconciliation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched != 3 || result.Cancelled != 2 || result.Failed != 1 {
		t.Fatalf("expected 3 matched / 2 cancelled / 1 failed, got %+v", result)
	}

	if b1.PaymentStatus != billing.StatusCancelled || b3.PaymentStatus != billing.StatusCancelled {
		t.Error("expected the two healthy bills fully cancelled")
	}
	if f.stock.quantities[medA] != 2 || f.stock.quantities[medC] != 2 {
		t.Error("expected the two healthy bills fully restocked")
	}

	// The failed record is left exactly as it was.
	if b2.PaymentStatus != billing.StatusPending {
		t.Errorf("failed bill must stay PENDING, got %s", b2.PaymentStatus)
	}
	if f.stock.quantities[medB] != 0 {
		t.Errorf("failed bill's restock must be rolled back, got %d", f.stock.quantities[medB])
	}
	for _, out := range result.Outcomes {
		if out.BillID == b2.ID {
			if out.Err == "" || out.Restocked != 0 {
				t.Errorf("failed outcome should carry the error and no restock, got %+v", out)
			}
		}
	}
}

func TestExpiredBillReconciliation_ConcurrentRunRejected(t *testing.T) {
	f := newFixture()
	f.bills.blockOn = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.svc.RunExpiredBillReconciliation(context.Background())
	}()

	// Wait until the first run holds the job lock inside the list call.
	f.bills.blockOn <- struct{}{}
	f.bills.blockOn = nil

	// Queue a second trigger while the first is mid-flight. The first
	// goroutine is past the blocking receive but still inside the job.
	if _, err := f.svc.RunExpiredBillReconciliation(context.Background()); err != nil && !errors.Is(err, ErrJobRunning) {
		t.Fatalf("expected ErrJobRunning or completion, got %v", err)
	}
	<-done
}

func TestCountPendingExpiredBills(t *testing.T) {
	f := newFixture()
	med := uuid.New()
	f.addBill(5, &billing.BillItem{MedicineID: med, Quantity: 1})
	f.addBill(1, &billing.BillItem{MedicineID: med, Quantity: 1})

	n, err := f.svc.CountPendingExpiredBills(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pending expired bill, got %d", n)
	}
}

func staffUsers(f *fixture, admins, pharmacists int) {
	for i := 0; i < admins; i++ {
		f.users.byRole[identity.RoleAdmin] = append(f.users.byRole[identity.RoleAdmin],
			&identity.User{ID: uuid.New(), Role: identity.RoleAdmin})
	}
	for i := 0; i < pharmacists; i++ {
		f.users.byRole[identity.RolePharmacist] = append(f.users.byRole[identity.RolePharmacist],
			&identity.User{ID: uuid.New(), Role: identity.RolePharmacist})
	}
}

func TestLowStockScan_LevelTriggered(t *testing.T) {
	f := newFixture()
	staffUsers(f, 1, 2)

	medY := &inventory.Medicine{ID: uuid.New(), Name: "MedY", Quantity: 3, ReorderLevel: 10}
	f.scanner.medicines = []*inventory.Medicine{medY}

	result, err := f.svc.RunLowStockScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Flagged != 1 {
		t.Fatalf("expected MedY flagged, got %d", result.Flagged)
	}
	if result.Notified != 3 {
		t.Errorf("expected 3 notifications (1 admin + 2 pharmacists), got %d", result.Notified)
	}

	// Restocking to 5 leaves it at or below the reorder level, so the
	// next run flags it again. The scan is a threshold check, not an
	// edge-triggered alert.
	medY.Quantity = 5
	result, err = f.svc.RunLowStockScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Flagged != 1 {
		t.Errorf("expected MedY still flagged at quantity 5, got %d", result.Flagged)
	}
}

func TestLowStockScan_NotificationFailuresDoNotAbort(t *testing.T) {
	f := newFixture()
	staffUsers(f, 2, 0)
	f.notifier.ShouldFail = true
	f.notifier.FailError = "smtp down"

	f.scanner.medicines = []*inventory.Medicine{
		{ID: uuid.New(), Name: "MedY", Quantity: 1, ReorderLevel: 10},
	}

	result, err := f.svc.RunLowStockScan(context.Background())
	if err != nil {
		t.Fatalf("scan must not fail on delivery errors: %v", err)
	}
	if result.Failed != 2 || result.Notified != 0 {
		t.Errorf("expected 2 failed deliveries, got %+v", result)
	}
	if len(f.notifier.Calls()) != 2 {
		t.Errorf("expected every recipient attempted, got %d calls", len(f.notifier.Calls()))
	}
}

func TestExpiryScan_UpcomingOnly(t *testing.T) {
	f := newFixture()
	staffUsers(f, 1, 0)

	soon := f.clock.Now().AddDate(0, 0, 10)
	far := f.clock.Now().AddDate(0, 0, 90)
	past := f.clock.Now().AddDate(0, 0, -1)
	f.scanner.medicines = []*inventory.Medicine{
		{ID: uuid.New(), Name: "Soon", Quantity: 5, ExpiryDate: &soon},
		{ID: uuid.New(), Name: "Far", Quantity: 5, ExpiryDate: &far},
		{ID: uuid.New(), Name: "Past", Quantity: 5, ExpiryDate: &past},
	}

	result, err := f.svc.RunExpiryScan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Flagged != 1 {
		t.Fatalf("expected only the 10-day medicine flagged, got %d", result.Flagged)
	}
	calls := f.notifier.Calls()
	if len(calls) != 1 || calls[0].Category != notification.CategoryExpiry {
		t.Errorf("expected one expiry notification, got %+v", calls)
	}
}
