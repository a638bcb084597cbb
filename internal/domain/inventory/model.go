package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMedicineNotFound is returned when a medicine id does not exist.
var ErrMedicineNotFound = errors.New("medicine not found")

// InsufficientStockError is returned when a decrement would take the
// on-hand quantity below zero. The ledger never goes negative.
type InsufficientStockError struct {
	MedicineID uuid.UUID
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s: have %d, need %d",
		e.MedicineID, e.Available, e.Requested)
}

// Medicine maps to the medicine table.
type Medicine struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Description  *string    `db:"description" json:"description,omitempty"`
	Manufacturer *string    `db:"manufacturer" json:"manufacturer,omitempty"`
	Category     *string    `db:"category" json:"category,omitempty"`
	BatchNumber  *string    `db:"batch_number" json:"batch_number,omitempty"`
	UnitPrice    float64    `db:"unit_price" json:"unit_price"`
	Quantity     int        `db:"quantity" json:"quantity"`
	ReorderLevel int        `db:"reorder_level" json:"reorder_level"`
	Active       bool       `db:"active" json:"active"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether the on-hand quantity is at or below the
// reorder level.
func (m *Medicine) IsLowStock() bool {
	return m.Quantity <= m.ReorderLevel
}

// IsExpired reports whether the medicine's expiry date has passed.
func (m *Medicine) IsExpired(now time.Time) bool {
	return m.ExpiryDate != nil && m.ExpiryDate.Before(now)
}

// PriceSnapshot captures the unit price of a medicine at bill time so
// later catalog updates do not change issued bills.
type PriceSnapshot struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Name       string    `json:"name"`
	UnitPrice  float64   `json:"unit_price"`
}
