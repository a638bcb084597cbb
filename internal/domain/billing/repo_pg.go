package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxcare/rxcare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

func (r *billRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const billCols = `id, bill_number, prescription_id, customer_id, payment_status, payment_type,
	payment_method, subtotal, discount, tax, total_amount, notes, paid_at, created_at, updated_at`

func (r *billRepoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.PrescriptionID, &b.CustomerID, &b.PaymentStatus,
		&b.PaymentType, &b.PaymentMethod, &b.Subtotal, &b.Discount, &b.Tax, &b.TotalAmount,
		&b.Notes, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBillNotFound
	}
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill (id, bill_number, prescription_id, customer_id, payment_status,
			payment_type, payment_method, subtotal, discount, tax, total_amount, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.BillNumber, b.PrescriptionID, b.CustomerID, b.PaymentStatus,
		b.PaymentType, b.PaymentMethod, b.Subtotal, b.Discount, b.Tax, b.TotalAmount, b.Notes)
	if err != nil {
		return err
	}
	for _, item := range b.Items {
		item.ID = uuid.New()
		item.BillID = b.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bill_item (id, bill_id, medicine_id, medicine_name, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, item.BillID, item.MedicineID, item.MedicineName,
			item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return fmt.Errorf("insert bill item: %w", err)
		}
	}
	return nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.GetItems(ctx, id)
	return b, err
}

func (r *billRepoPG) GetByPrescriptionID(ctx context.Context, prescriptionID uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM bill WHERE prescription_id = $1`, prescriptionID))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.GetItems(ctx, b.ID)
	return b, err
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill SET payment_status=$2, payment_type=$3, payment_method=$4,
			subtotal=$5, discount=$6, tax=$7, total_amount=$8, notes=$9, paid_at=$10,
			updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.PaymentStatus, b.PaymentType, b.PaymentMethod,
		b.Subtotal, b.Discount, b.Tax, b.TotalAmount, b.Notes, b.PaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *billRepoPG) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return r.list(ctx, `customer_id = $1`, customerID, limit, offset)
}

func (r *billRepoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Bill, int, error) {
	return r.list(ctx, `payment_status = $1`, status, limit, offset)
}

func (r *billRepoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Bill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bill WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+billCols+` FROM bill WHERE `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *billRepoPG) GetItems(ctx context.Context, billID uuid.UUID) ([]*BillItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, medicine_id, medicine_name, quantity, unit_price, total_price
		FROM bill_item WHERE bill_id = $1`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BillItem
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.MedicineID, &item.MedicineName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *billRepoPG) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+billCols+` FROM bill
		WHERE payment_status = $1 AND payment_type = $2 AND created_at < $3
		ORDER BY created_at`, StatusPending, PaymentOnPickup, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range bills {
		if b.Items, err = r.GetItems(ctx, b.ID); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (r *billRepoPG) CountExpiredPending(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM bill
		WHERE payment_status = $1 AND payment_type = $2 AND created_at < $3`,
		StatusPending, PaymentOnPickup, cutoff).Scan(&n)
	return n, err
}

func (r *billRepoPG) TotalRevenue(ctx context.Context, start, end time.Time) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0) FROM bill
		WHERE payment_status = $1 AND paid_at >= $2 AND paid_at < $3`,
		StatusPaid, start, end).Scan(&total)
	return total, err
}

func (r *billRepoPG) BillCount(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM bill
		WHERE payment_status = $1 AND paid_at >= $2 AND paid_at < $3`,
		StatusPaid, start, end).Scan(&n)
	return n, err
}
