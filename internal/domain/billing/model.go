package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBillNotFound is returned when a bill id does not exist.
var ErrBillNotFound = errors.New("bill not found")

// Payment statuses. PAID and CANCELLED are terminal.
const (
	StatusPending       = "PENDING"
	StatusPaid          = "PAID"
	StatusPartiallyPaid = "PARTIALLY_PAID"
	StatusCancelled     = "CANCELLED"
)

// Payment types.
const (
	PaymentOnline   = "ONLINE"
	PaymentOnPickup = "PAY_ON_PICKUP"
)

var allowedStatusNext = map[string][]string{
	StatusPending:       {StatusPaid, StatusPartiallyPaid, StatusCancelled},
	StatusPartiallyPaid: {StatusPaid, StatusCancelled},
	StatusPaid:          {},
	StatusCancelled:     {},
}

// InvalidStatusError reports a disallowed payment-status change.
type InvalidStatusError struct {
	From string
	To   string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid bill status transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether the payment-status machine allows
// from -> to.
func CanTransition(from, to string) bool {
	for _, next := range allowedStatusNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Bill maps to the bill table. Each prescription owns at most one
// bill.
type Bill struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	BillNumber     string      `db:"bill_number" json:"bill_number"`
	PrescriptionID uuid.UUID   `db:"prescription_id" json:"prescription_id"`
	CustomerID     uuid.UUID   `db:"customer_id" json:"customer_id"`
	PaymentStatus  string      `db:"payment_status" json:"payment_status"`
	PaymentType    string      `db:"payment_type" json:"payment_type"`
	PaymentMethod  *string     `db:"payment_method" json:"payment_method,omitempty"`
	Subtotal       float64     `db:"subtotal" json:"subtotal"`
	Discount       float64     `db:"discount" json:"discount"`
	Tax            float64     `db:"tax" json:"tax"`
	TotalAmount    float64     `db:"total_amount" json:"total_amount"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	PaidAt         *time.Time  `db:"paid_at" json:"paid_at,omitempty"`
	Items          []*BillItem `db:"-" json:"items,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// ComputeTotals derives subtotal from the line items and enforces
// totalAmount = subtotal - discount + tax.
func (b *Bill) ComputeTotals() {
	b.Subtotal = 0
	for _, item := range b.Items {
		b.Subtotal += item.TotalPrice
	}
	b.TotalAmount = b.Subtotal - b.Discount + b.Tax
}

// IsTerminal reports whether no further status changes are possible.
func (b *Bill) IsTerminal() bool {
	return len(allowedStatusNext[b.PaymentStatus]) == 0
}

// BillItem maps to the bill_item table. UnitPrice is the catalog price
// at generation time; later price changes never touch issued bills.
type BillItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	BillID       uuid.UUID `db:"bill_id" json:"bill_id"`
	MedicineID   uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName string    `db:"medicine_name" json:"medicine_name"`
	Quantity     int       `db:"quantity" json:"quantity"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	TotalPrice   float64   `db:"total_price" json:"total_price"`
}
