package inventory

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

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medicineCols = `id, name, description, manufacturer, category, batch_number,
	unit_price, quantity, reorder_level, active, expiry_date, created_at, updated_at`

func (r *medicineRepoPG) scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Manufacturer, &m.Category, &m.BatchNumber,
		&m.UnitPrice, &m.Quantity, &m.ReorderLevel, &m.Active, &m.ExpiryDate, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMedicineNotFound
	}
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicine (id, name, description, manufacturer, category, batch_number,
			unit_price, quantity, reorder_level, active, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.Name, m.Description, m.Manufacturer, m.Category, m.BatchNumber,
		m.UnitPrice, m.Quantity, m.ReorderLevel, m.Active, m.ExpiryDate)
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET name=$2, description=$3, manufacturer=$4, category=$5,
			batch_number=$6, unit_price=$7, reorder_level=$8, active=$9, expiry_date=$10, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Description, m.Manufacturer, m.Category,
		m.BatchNumber, m.UnitPrice, m.ReorderLevel, m.Active, m.ExpiryDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicineNotFound
	}
	return nil
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	return err
}

func (r *medicineRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	where := "TRUE"
	args := []interface{}{}
	n := 0
	addFilter := func(clause, value string) {
		n++
		where += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, value)
	}

	if v := params["name"]; v != "" {
		addFilter("name ILIKE", "%"+v+"%")
	}
	if v := params["category"]; v != "" {
		addFilter("category =", v)
	}
	if v := params["manufacturer"]; v != "" {
		addFilter("manufacturer =", v)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM medicine WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		medicineCols, where, n+1, n+2), dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *medicineRepoPG) IncreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	var quantity int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING quantity`, id, amount).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMedicineNotFound
	}
	return quantity, err
}

func (r *medicineRepoPG) DecreaseStock(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	// Guarded decrement: the WHERE clause makes overselling impossible
	// even with concurrent writers.
	var quantity int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity`, id, amount).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		m, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		return 0, &InsufficientStockError{MedicineID: id, Available: m.Quantity, Requested: amount}
	}
	return quantity, err
}

func (r *medicineRepoPG) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET quantity = $2, updated_at = NOW() WHERE id = $1`, id, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicineNotFound
	}
	return nil
}

func (r *medicineRepoPG) ListLowStock(ctx context.Context) ([]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+` FROM medicine WHERE quantity <= reorder_level ORDER BY quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *medicineRepoPG) CountLowStock(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medicine WHERE quantity <= reorder_level`).Scan(&n)
	return n, err
}

func (r *medicineRepoPG) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*Medicine, error) {
	// Already-expired stock is excluded; only upcoming expiry alerts.
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+` FROM medicine
		WHERE expiry_date IS NOT NULL AND expiry_date > $1 AND expiry_date <= $2
		ORDER BY expiry_date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *medicineRepoPG) CountExpiringBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medicine WHERE expiry_date IS NOT NULL AND expiry_date > $1 AND expiry_date <= $2`,
		from, to).Scan(&n)
	return n, err
}

func (r *medicineRepoPG) collect(rows pgx.Rows) ([]*Medicine, error) {
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
