// Package reconcile runs the recurring housekeeping jobs: cancelling
// expired pay-on-pickup bills (restoring their stock), flagging
// low-stock medicines, and alerting on upcoming expiry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

// ErrJobRunning is returned when a job is triggered while a previous
// invocation of the same job is still in flight. Manual triggers and
// the scheduler share the same per-job lock, so the same bill set can
// never be reconciled twice concurrently.
var ErrJobRunning = errors.New("job is already running")

// BillStore is the slice of the billing service the reconciler needs.
type BillStore interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*billing.Bill, error)
	CountExpiredPending(ctx context.Context, cutoff time.Time) (int, error)
	Cancel(ctx context.Context, id uuid.UUID, note string) (*billing.Bill, error)
}

// PrescriptionStore rejects the prescription behind a cancelled bill.
type PrescriptionStore interface {
	Reject(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error)
}

// StockAdjuster restores quantities for cancelled bill items.
type StockAdjuster interface {
	Restock(ctx context.Context, id uuid.UUID, amount int) (int, error)
}

// MedicineScanner feeds the low-stock and expiry scans.
type MedicineScanner interface {
	ListLowStock(ctx context.Context) ([]*inventory.Medicine, error)
	CountLowStock(ctx context.Context) (int, error)
	ListExpiringWithin(ctx context.Context, days int) ([]*inventory.Medicine, error)
	CountExpiringWithin(ctx context.Context, days int) (int, error)
}

// UserDirectory resolves the staff recipients for scan alerts.
type UserDirectory interface {
	ListByRole(ctx context.Context, role string) ([]*identity.User, error)
}

// TxRunner groups one bill's restock, rejection, and cancellation into
// a single unit of work.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outcome records the result for one bill in a reconciliation batch.
type Outcome struct {
	BillID         uuid.UUID `json:"bill_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	Restocked      int       `json:"restocked"`
	Err            string    `json:"error,omitempty"`
}

// BatchResult is the typed summary of one reconciliation run.
type BatchResult struct {
	Matched   int       `json:"matched"`
	Cancelled int       `json:"cancelled"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
	Summary   string    `json:"summary"`
}

// ScanResult summarizes one low-stock or expiry scan.
type ScanResult struct {
	Flagged  int    `json:"flagged"`
	Notified int    `json:"notified"`
	Failed   int    `json:"failed"`
	Summary  string `json:"summary"`
}

type Service struct {
	bills         BillStore
	prescriptions PrescriptionStore
	stock         StockAdjuster
	scanner       MedicineScanner
	users         UserDirectory
	notifier      notification.Dispatcher
	tx            TxRunner
	clock         clock.Clock
	logger        zerolog.Logger

	gracePeriodDays int
	expiryAlertDays int

	expiredMu  sync.Mutex
	lowStockMu sync.Mutex
	expiryMu   sync.Mutex
}

func NewService(
	bills BillStore,
	prescriptions PrescriptionStore,
	stock StockAdjuster,
	scanner MedicineScanner,
	users UserDirectory,
	notifier notification.Dispatcher,
	tx TxRunner,
	clk clock.Clock,
	logger zerolog.Logger,
	gracePeriodDays, expiryAlertDays int,
) *Service {
	return &Service{
		bills:           bills,
		prescriptions:   prescriptions,
		stock:           stock,
		scanner:         scanner,
		users:           users,
		notifier:        notifier,
		tx:              tx,
		clock:           clk,
		logger:          logger,
		gracePeriodDays: gracePeriodDays,
		expiryAlertDays: expiryAlertDays,
	}
}

// RunExpiredBillReconciliation cancels pay-on-pickup bills that stayed
// PENDING past the grace period. Each bill is its own unit of work:
// stock restore, prescription rejection, and bill cancellation either
// all apply or none do, and one bad record never aborts the batch.
func (s *Service) RunExpiredBillReconciliation(ctx context.Context) (*BatchResult, error) {
	if !s.expiredMu.TryLock() {
		return nil, ErrJobRunning
	}
	defer s.expiredMu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -s.gracePeriodDays)
	expired, err := s.bills.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expired bills: %w", err)
	}

	result := &BatchResult{Matched: len(expired)}
	reason := fmt.Sprintf("cancelled by system: not picked up within %d days", s.gracePeriodDays)

	for _, b := range expired {
		out := Outcome{BillID: b.ID, PrescriptionID: b.PrescriptionID}
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, item := range b.Items {
				if _, err := s.stock.Restock(ctx, item.MedicineID, item.Quantity); err != nil {
					return fmt.Errorf("restocking medicine %s: %w", item.MedicineID, err)
				}
				out.Restocked += item.Quantity
			}
			if _, err := s.prescriptions.Reject(ctx, b.PrescriptionID, reason); err != nil {
				return fmt.Errorf("rejecting prescription %s: %w", b.PrescriptionID, err)
			}
			if _, err := s.bills.Cancel(ctx, b.ID, reason); err != nil {
				return fmt.Errorf("cancelling bill %s: %w", b.ID, err)
			}
			return nil
		})
		if err != nil {
			out.Restocked = 0
			out.Err = err.Error()
			result.Failed++
			s.logger.Error().Err(err).
				Str("bill_id", b.ID.String()).
				Str("bill_number", b.BillNumber).
				Msg("expired bill reconciliation failed for record")
		} else {
			result.Cancelled++
			s.logger.Info().
				Str("bill_id", b.ID.String()).
				Int("restocked", out.Restocked).
				Msg("expired bill cancelled and restocked")
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	result.Summary = fmt.Sprintf(
		"expired bill reconciliation: %d matched, %d cancelled, %d failed",
		result.Matched, result.Cancelled, result.Failed)
	s.logger.Info().
		Int("matched", result.Matched).
		Int("cancelled", result.Cancelled).
		Int("failed", result.Failed).
		Msg("expired bill reconciliation finished")
	return result, nil
}

// CountPendingExpiredBills reports how many bills the next
// reconciliation run would pick up.
func (s *Service) CountPendingExpiredBills(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.gracePeriodDays)
	return s.bills.CountExpiredPending(ctx, cutoff)
}

// RunLowStockScan notifies every admin and pharmacist about each
// medicine at or below its reorder level. The scan is level-triggered:
// a medicine that stays low is flagged on every run.
func (s *Service) RunLowStockScan(ctx context.Context) (*ScanResult, error) {
	if !s.lowStockMu.TryLock() {
		return nil, ErrJobRunning
	}
	defer s.lowStockMu.Unlock()

	meds, err := s.scanner.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing low-stock medicines: %w", err)
	}

	result := &ScanResult{Flagged: len(meds)}
	if len(meds) > 0 {
		staff, err := s.staffRecipients(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range meds {
			title := fmt.Sprintf("Low stock: %s", m.Name)
			msg := fmt.Sprintf("%s is down to %d units (reorder level %d)", m.Name, m.Quantity, m.ReorderLevel)
			n, f := s.fanOut(ctx, staff, title, msg, notification.CategoryInventory)
			result.Notified += n
			result.Failed += f
		}
	}

	result.Summary = fmt.Sprintf(
		"low-stock scan: %d medicines flagged, %d notifications sent, %d failed",
		result.Flagged, result.Notified, result.Failed)
	s.logger.Info().
		Int("flagged", result.Flagged).
		Int("notified", result.Notified).
		Int("failed", result.Failed).
		Msg("low-stock scan finished")
	return result, nil
}

// RunExpiryScan notifies staff about medicines expiring within the
// alert horizon. Already-expired stock is not alerted.
func (s *Service) RunExpiryScan(ctx context.Context) (*ScanResult, error) {
	if !s.expiryMu.TryLock() {
		return nil, ErrJobRunning
	}
	defer s.expiryMu.Unlock()

	meds, err := s.scanner.ListExpiringWithin(ctx, s.expiryAlertDays)
	if err != nil {
		return nil, fmt.Errorf("listing expiring medicines: %w", err)
	}

	result := &ScanResult{Flagged: len(meds)}
	if len(meds) > 0 {
		staff, err := s.staffRecipients(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range meds {
			title := fmt.Sprintf("Expiring soon: %s", m.Name)
			msg := fmt.Sprintf("%s expires on %s", m.Name, m.ExpiryDate.Format("2006-01-02"))
			n, f := s.fanOut(ctx, staff, title, msg, notification.CategoryExpiry)
			result.Notified += n
			result.Failed += f
		}
	}

	result.Summary = fmt.Sprintf(
		"expiry scan: %d medicines flagged, %d notifications sent, %d failed",
		result.Flagged, result.Notified, result.Failed)
	s.logger.Info().
		Int("flagged", result.Flagged).
		Int("notified", result.Notified).
		Int("failed", result.Failed).
		Msg("expiry scan finished")
	return result, nil
}

// CountLowStock reports how many medicines are at or below reorder level.
func (s *Service) CountLowStock(ctx context.Context) (int, error) {
	return s.scanner.CountLowStock(ctx)
}

// CountExpiringWithin reports how many medicines expire within days.
func (s *Service) CountExpiringWithin(ctx context.Context, days int) (int, error) {
	return s.scanner.CountExpiringWithin(ctx, days)
}

func (s *Service) staffRecipients(ctx context.Context) ([]*identity.User, error) {
	admins, err := s.users.ListByRole(ctx, identity.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	pharmacists, err := s.users.ListByRole(ctx, identity.RolePharmacist)
	if err != nil {
		return nil, fmt.Errorf("listing pharmacists: %w", err)
	}
	return append(admins, pharmacists...), nil
}

// fanOut delivers one notification per recipient. A failed delivery
// is logged and skipped, never retried inline.
func (s *Service) fanOut(ctx context.Context, recipients []*identity.User, title, msg, category string) (sent, failed int) {
	for _, u := range recipients {
		if err := s.notifier.Notify(ctx, u.ID, title, msg, category, notification.PriorityHigh); err != nil {
			failed++
			s.logger.Error().Err(err).
				Str("user_id", u.ID.String()).
				Str("title", title).
				Msg("notification delivery failed")
			continue
		}
		sent++
	}
	return sent, failed
}
