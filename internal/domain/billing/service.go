package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxcare/rxcare/internal/domain/inventory"
	"github.com/rxcare/rxcare/internal/domain/prescription"
	"github.com/rxcare/rxcare/internal/platform/clock"
)

// MedicineCatalog supplies price snapshots at bill-generation time.
// inventory.Service satisfies it.
type MedicineCatalog interface {
	Snapshot(ctx context.Context, medicineID uuid.UUID) (*inventory.PriceSnapshot, error)
}

type Service struct {
	bills   BillRepository
	catalog MedicineCatalog
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewService(bills BillRepository, catalog MedicineCatalog, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{bills: bills, catalog: catalog, clock: clk, logger: logger}
}

// GenerateFromPrescription creates the bill for an approved
// prescription, snapshotting current catalog prices into the line
// items. Idempotent: if the prescription already has a bill, its id is
// returned unchanged. A prescription without items yields a
// zero-amount bill.
func (s *Service) GenerateFromPrescription(ctx context.Context, p *prescription.Prescription) (uuid.UUID, error) {
	if existing, err := s.bills.GetByPrescriptionID(ctx, p.ID); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, ErrBillNotFound) {
		return uuid.Nil, err
	}

	bill := &Bill{
		BillNumber:     s.newBillNumber(),
		PrescriptionID: p.ID,
		CustomerID:     p.CustomerID,
		PaymentStatus:  StatusPending,
		PaymentType:    PaymentOnPickup,
	}
	for _, item := range p.Items {
		snap, err := s.catalog.Snapshot(ctx, item.MedicineID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("medicine %s: %w", item.MedicineID, err)
		}
		bill.Items = append(bill.Items, &BillItem{
			MedicineID:   snap.MedicineID,
			MedicineName: snap.Name,
			Quantity:     item.Quantity,
			UnitPrice:    snap.UnitPrice,
			TotalPrice:   snap.UnitPrice * float64(item.Quantity),
		})
	}
	bill.ComputeTotals()

	if err := s.bills.Create(ctx, bill); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info().
		Str("bill_id", bill.ID.String()).
		Str("prescription_id", p.ID.String()).
		Float64("total", bill.TotalAmount).
		Msg("bill generated")
	return bill.ID, nil
}

// newBillNumber derives a human-readable bill number from the clock.
func (s *Service) newBillNumber() string {
	now := s.clock.Now()
	return fmt.Sprintf("BILL-%s-%06d", now.Format("20060102"), now.UnixNano()%1000000)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

func (s *Service) GetByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Bill, error) {
	return s.bills.GetByPrescriptionID(ctx, prescriptionID)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return s.bills.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Bill, int, error) {
	if _, ok := allowedStatusNext[status]; !ok {
		return nil, 0, fmt.Errorf("invalid payment status: %s", status)
	}
	return s.bills.ListByStatus(ctx, status, limit, offset)
}

var validPaymentMethods = map[string]bool{
	"CASH": true, "CARD": true, "UPI": true, "NET_BANKING": true, "WALLET": true,
}

// MarkAsPaid settles a PENDING bill. Paying a non-PENDING bill fails.
func (s *Service) MarkAsPaid(ctx context.Context, id uuid.UUID, method string) (*Bill, error) {
	if !validPaymentMethods[method] {
		return nil, fmt.Errorf("invalid payment method: %s", method)
	}
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != StatusPending {
		return nil, &InvalidStatusError{From: b.PaymentStatus, To: StatusPaid}
	}
	now := s.clock.Now()
	b.PaymentStatus = StatusPaid
	b.PaymentMethod = &method
	b.PaidAt = &now
	return b, s.bills.Update(ctx, b)
}

// UpdateStatus applies a payment-status change after consulting the
// transition table. Moving to PAID stamps the payment time so revenue
// reports pick the bill up regardless of which path settled it.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.PaymentStatus, status) {
		return nil, &InvalidStatusError{From: b.PaymentStatus, To: status}
	}
	b.PaymentStatus = status
	if status == StatusPaid && b.PaidAt == nil {
		now := s.clock.Now()
		b.PaidAt = &now
	}
	return b, s.bills.Update(ctx, b)
}

// SetPaymentType switches between ONLINE and PAY_ON_PICKUP. Allowed
// only while the bill is PENDING.
func (s *Service) SetPaymentType(ctx context.Context, id uuid.UUID, paymentType string) (*Bill, error) {
	if paymentType != PaymentOnline && paymentType != PaymentOnPickup {
		return nil, fmt.Errorf("invalid payment type: %s", paymentType)
	}
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != StatusPending {
		return nil, fmt.Errorf("payment type is locked once bill is %s", b.PaymentStatus)
	}
	b.PaymentType = paymentType
	return b, s.bills.Update(ctx, b)
}

// Cancel moves a PENDING bill to CANCELLED with an audit note. Used by
// the reconciler for expired pickups.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, note string) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.PaymentStatus, StatusCancelled) {
		return nil, &InvalidStatusError{From: b.PaymentStatus, To: StatusCancelled}
	}
	b.PaymentStatus = StatusCancelled
	if note != "" {
		if b.Notes != nil && *b.Notes != "" {
			note = *b.Notes + "; " + note
		}
		b.Notes = &note
	}
	return b, s.bills.Update(ctx, b)
}

// CalculateTotal previews the charge for a prescription using current
// catalog prices, without persisting anything.
func (s *Service) CalculateTotal(ctx context.Context, p *prescription.Prescription) (float64, error) {
	var total float64
	for _, item := range p.Items {
		snap, err := s.catalog.Snapshot(ctx, item.MedicineID)
		if err != nil {
			return 0, fmt.Errorf("medicine %s: %w", item.MedicineID, err)
		}
		total += snap.UnitPrice * float64(item.Quantity)
	}
	return total, nil
}

func (s *Service) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*Bill, error) {
	return s.bills.ListExpiredPending(ctx, cutoff)
}

func (s *Service) CountExpiredPending(ctx context.Context, cutoff time.Time) (int, error) {
	return s.bills.CountExpiredPending(ctx, cutoff)
}

func (s *Service) TotalRevenue(ctx context.Context, start, end time.Time) (float64, error) {
	return s.bills.TotalRevenue(ctx, start, end)
}

func (s *Service) BillCount(ctx context.Context, start, end time.Time) (int, error) {
	return s.bills.BillCount(ctx, start, end)
}
