package prescription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxcare/rxcare/internal/domain/inventory"
)

// BillGenerator creates a bill for an approved prescription. The call
// is idempotent: re-approval returns the existing bill id.
type BillGenerator interface {
	GenerateFromPrescription(ctx context.Context, p *Prescription) (uuid.UUID, error)
}

// StockChecker is the slice of the inventory service the workflow
// needs: availability checks and price snapshots.
type StockChecker interface {
	IsAvailable(ctx context.Context, medicineID uuid.UUID, quantity int) (bool, error)
	Snapshot(ctx context.Context, medicineID uuid.UUID) (*inventory.PriceSnapshot, error)
}

type Service struct {
	prescriptions PrescriptionRepository
	stock         StockChecker
	bills         BillGenerator
	logger        zerolog.Logger
}

func NewService(prescriptions PrescriptionRepository, stock StockChecker, logger zerolog.Logger) *Service {
	return &Service{prescriptions: prescriptions, stock: stock, logger: logger}
}

// SetBillGenerator attaches the billing engine. Wired after
// construction because billing also depends on prescription types.
func (s *Service) SetBillGenerator(bills BillGenerator) {
	s.bills = bills
}

func (s *Service) Create(ctx context.Context, p *Prescription) error {
	if p.CustomerID == uuid.Nil {
		return fmt.Errorf("customer_id is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for _, item := range p.Items {
		if item.MedicineID == uuid.Nil {
			return fmt.Errorf("medicine_id is required on every item")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item quantity must be positive, got %d", item.Quantity)
		}
		snap, err := s.stock.Snapshot(ctx, item.MedicineID)
		if err != nil {
			return fmt.Errorf("medicine %s: %w", item.MedicineID, err)
		}
		item.UnitPrice = snap.UnitPrice
		item.TotalPrice = snap.UnitPrice * float64(item.Quantity)
	}
	p.Status = StatusPending
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Prescription, int, error) {
	if _, ok := allowedNext[status]; !ok {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.prescriptions.ListByStatus(ctx, status, limit, offset)
}

// Review applies a pharmacist decision to a PENDING prescription.
// Approval generates the bill; rejection and clarification requests
// both reject, recording note as the rejection reason.
func (s *Service) Review(ctx context.Context, id, pharmacistID uuid.UUID, decision, note string) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch decision {
	case DecisionApprove:
		if !CanTransition(p.Status, StatusApproved) {
			return nil, &InvalidTransitionError{From: p.Status, To: StatusApproved}
		}
		p.Status = StatusApproved
		p.PharmacistID = &pharmacistID
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return nil, err
		}
		if s.bills != nil {
			billID, err := s.bills.GenerateFromPrescription(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("prescription approved but bill generation failed: %w", err)
			}
			s.logger.Info().
				Str("prescription_id", p.ID.String()).
				Str("bill_id", billID.String()).
				Msg("prescription approved, bill generated")
		}
		return p, nil

	case DecisionReject, DecisionClarification:
		if !CanTransition(p.Status, StatusRejected) {
			return nil, &InvalidTransitionError{From: p.Status, To: StatusRejected}
		}
		if note == "" {
			note = "rejected by pharmacist"
			if decision == DecisionClarification {
				note = "clarification required"
			}
		}
		p.Status = StatusRejected
		p.PharmacistID = &pharmacistID
		p.RejectionReason = &note
		return p, s.prescriptions.Update(ctx, p)

	default:
		return nil, fmt.Errorf("invalid decision: %s", decision)
	}
}

// MarkDispensed moves an APPROVED prescription to DISPENSED.
func (s *Service) MarkDispensed(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.transition(ctx, id, StatusDispensed)
}

// Complete moves a DISPENSED prescription to COMPLETED.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// Reject force-rejects a prescription with a reason. Used by the
// reconciler when an expired bill is cancelled.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, StatusRejected) {
		return nil, &InvalidTransitionError{From: p.Status, To: StatusRejected}
	}
	p.Status = StatusRejected
	p.RejectionReason = &reason
	return p, s.prescriptions.Update(ctx, p)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, to) {
		return nil, &InvalidTransitionError{From: p.Status, To: to}
	}
	p.Status = to
	if err := s.prescriptions.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	return p, nil
}

// AssignPharmacist annotates the prescription with a reviewer. It does
// not change status.
func (s *Service) AssignPharmacist(ctx context.Context, id, pharmacistID uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p.PharmacistID = &pharmacistID
	return s.prescriptions.Update(ctx, p)
}

// CanBeFulfilled reports whether every item passes the availability
// check. Advisory only: approval is not blocked by a false result.
func (s *Service) CanBeFulfilled(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	for _, item := range p.Items {
		ok, err := s.stock.IsAvailable(ctx, item.MedicineID, item.Quantity)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
