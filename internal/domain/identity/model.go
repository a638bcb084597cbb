package identity

import (
	"time"

	"github.com/google/uuid"
)

// Roles recognized by the service. Admins and pharmacists receive
// operational alerts; customers place orders.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCustomer   = "customer"
)

// User maps to the app_user table.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsStaff reports whether the user should receive operational alerts.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RolePharmacist
}
