package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockUserRepo) Update(ctx context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var items []*User
	for _, u := range m.users {
		items = append(items, u)
	}
	return items, len(items), nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role string) ([]*User, error) {
	var items []*User
	for _, u := range m.users {
		if u.Role == role && u.Active {
			items = append(items, u)
		}
	}
	return items, nil
}

func TestCreateUser_Validation(t *testing.T) {
	svc := NewService(newMockUserRepo())
	ctx := context.Background()

	if err := svc.CreateUser(ctx, &User{Email: "a@b.com"}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.CreateUser(ctx, &User{Name: "Asha"}); err == nil {
		t.Error("expected error for missing email")
	}
	if err := svc.CreateUser(ctx, &User{Name: "Asha", Email: "not-an-email"}); err == nil {
		t.Error("expected error for malformed email")
	}
	if err := svc.CreateUser(ctx, &User{Name: "Asha", Email: "a@b.com", Role: "wizard"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestCreateUser_DefaultsToCustomer(t *testing.T) {
	svc := NewService(newMockUserRepo())

	u := &User{Name: "Asha", Email: "asha@example.com"}
	if err := svc.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != RoleCustomer {
		t.Errorf("expected default role customer, got %s", u.Role)
	}
	if !u.Active {
		t.Error("expected new user to be active")
	}
}

func TestListByRole_OnlyActiveStaff(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	pharm := &User{Name: "Ravi", Email: "ravi@example.com", Role: RolePharmacist}
	if err := svc.CreateUser(ctx, pharm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cust := &User{Name: "Meena", Email: "meena@example.com", Role: RoleCustomer}
	if err := svc.CreateUser(ctx, cust); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gone := &User{Name: "Old", Email: "old@example.com", Role: RolePharmacist}
	if err := svc.CreateUser(ctx, gone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeactivateUser(ctx, gone.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	staff, err := svc.ListByRole(ctx, RolePharmacist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(staff) != 1 {
		t.Fatalf("expected 1 active pharmacist, got %d", len(staff))
	}
	if staff[0].Email != "ravi@example.com" {
		t.Errorf("unexpected staff member %s", staff[0].Email)
	}

	if _, err := svc.ListByRole(ctx, "wizard"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestUser_IsStaff(t *testing.T) {
	if !(&User{Role: RoleAdmin}).IsStaff() {
		t.Error("admin should be staff")
	}
	if !(&User{Role: RolePharmacist}).IsStaff() {
		t.Error("pharmacist should be staff")
	}
	if (&User{Role: RoleCustomer}).IsStaff() {
		t.Error("customer should not be staff")
	}
}
