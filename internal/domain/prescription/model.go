package prescription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Prescription lifecycle statuses.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusDispensed = "DISPENSED"
	StatusCompleted = "COMPLETED"
	StatusRejected  = "REJECTED"
)

// Pharmacist review decisions.
const (
	DecisionApprove       = "APPROVE"
	DecisionReject        = "REJECT"
	DecisionClarification = "NEEDS_CLARIFICATION"
)

// allowedNext is the prescription state machine. REJECTED and
// COMPLETED are terminal.
var allowedNext = map[string][]string{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusDispensed, StatusRejected},
	StatusDispensed: {StatusCompleted, StatusRejected},
	StatusCompleted: {},
	StatusRejected:  {},
}

// InvalidTransitionError reports a disallowed status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid prescription transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Prescription maps to the prescription table. RejectionReason is set
// only when the prescription is REJECTED.
type Prescription struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	CustomerID      uuid.UUID           `db:"customer_id" json:"customer_id"`
	PharmacistID    *uuid.UUID          `db:"pharmacist_id" json:"pharmacist_id,omitempty"`
	Status          string              `db:"status" json:"status"`
	DoctorName      *string             `db:"doctor_name" json:"doctor_name,omitempty"`
	Notes           *string             `db:"notes" json:"notes,omitempty"`
	RejectionReason *string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Items           []*PrescriptionItem `db:"-" json:"items,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further transitions are possible.
func (p *Prescription) IsTerminal() bool {
	return len(allowedNext[p.Status]) == 0
}

// PrescriptionItem maps to the prescription_item table. UnitPrice is
// snapshotted from the catalog when the prescription is created.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPrice      float64   `db:"unit_price" json:"unit_price"`
	TotalPrice     float64   `db:"total_price" json:"total_price"`
	Dosage         *string   `db:"dosage" json:"dosage,omitempty"`
}
