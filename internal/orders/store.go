package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dkoval/storefront/internal/catalog"
	"github.com/dkoval/storefront/internal/domain"
)

// SQLStore persists orders in postgres, sharing the schema (and the
// placement transaction) with the catalog repository.
type SQLStore struct {
	db      *sql.DB
	catalog *catalog.Repository
}

func NewSQLStore(db *sql.DB, catalogRepo *catalog.Repository) *SQLStore {
	return &SQLStore{db: db, catalog: catalogRepo}
}

func (s *SQLStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = dbTx.Rollback() }()

	if err := fn(&sqlTx{tx: dbTx, catalog: s.catalog}); err != nil {
		return err
	}

	return dbTx.Commit()
}

type sqlTx struct {
	tx      *sql.Tx
	catalog *catalog.Repository
}

func (t *sqlTx) ProductsByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	return t.catalog.FindProductsByIDs(ctx, t.tx, ids)
}

func (t *sqlTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	err := t.catalog.DecrementStock(ctx, t.tx, productID, quantity)
	if errors.Is(err, catalog.ErrInsufficientStock) {
		return ErrInsufficientStock
	}
	return err
}

func (t *sqlTx) CouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon := &domain.Coupon{}
	err := t.tx.QueryRowContext(ctx, `
		SELECT code, percent_off, amount_off, is_active
		FROM coupons
		WHERE code = $1
	`, code).Scan(&coupon.Code, &coupon.PercentOff, &coupon.AmountOff, &coupon.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return coupon, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.New().String()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, subtotal, delivery, discount, total,
			first_name, last_name, phone, email, company, notes, delivery_type, address_id, track_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, '', $17)
	`, order.ID, order.OrderNumber, order.UserID, order.Status,
		order.Subtotal, order.Delivery, order.Discount, order.Total,
		order.FirstName, order.LastName, order.Phone, order.Email,
		order.Company, order.Notes, order.DeliveryType, order.AddressID, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, price, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, item.ProductID, item.VariantID, item.Quantity, item.Price, item.Total)
		if err != nil {
			return err
		}
	}

	initial := domain.OrderLog{
		Status:    order.Status,
		Comment:   "order placed",
		CreatedBy: order.UserID,
		CreatedAt: order.CreatedAt,
	}
	if err := insertOrderLog(ctx, t.tx, order.ID, initial); err != nil {
		return err
	}
	order.Logs = []domain.OrderLog{initial}

	return nil
}

func insertOrderLog(ctx context.Context, tx *sql.Tx, orderID string, log domain.OrderLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_logs (id, order_id, status, comment, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), orderID, log.Status, log.Comment, log.CreatedBy, log.CreatedAt)
	return err
}

const orderColumns = `id, order_number, user_id, status, subtotal, delivery, discount, total,
	first_name, last_name, phone, email, company, notes, delivery_type, address_id, track_number, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status,
		&o.Subtotal, &o.Delivery, &o.Discount, &o.Total,
		&o.FirstName, &o.LastName, &o.Phone, &o.Email,
		&o.Company, &o.Notes, &o.DeliveryType, &o.AddressID, &o.TrackNumber, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, variant_id, quantity, price, total
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.VariantID, &item.Quantity, &item.Price, &item.Total); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logRows, err := s.db.QueryContext(ctx, `
		SELECT status, comment, created_by, created_at
		FROM order_logs
		WHERE order_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logRows.Close() }()

	for logRows.Next() {
		var log domain.OrderLog
		if err := logRows.Scan(&log.Status, &log.Comment, &log.CreatedBy, &log.CreatedAt); err != nil {
			return nil, err
		}
		order.Logs = append(order.Logs, log)
	}

	return order, logRows.Err()
}

func (s *SQLStore) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, variant_id, quantity, price, total
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.VariantID, &item.Quantity, &item.Price, &item.Total); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *orderMap[id])
	}

	return result, nil
}

// UpdateStatus validates the transition against the current status, applies
// it and appends the audit log row in one transaction. Items are never
// touched after placement; only status, track number and notes move.
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, comment, trackNumber, updatedBy string) (*domain.Order, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbTx.Rollback() }()

	var current domain.OrderStatus
	err = dbTx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !current.CanTransitionTo(status) {
		return nil, fmt.Errorf("%s -> %s: %w", current, status, ErrInvalidTransition)
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, track_number = COALESCE(NULLIF($3, ''), track_number)
		WHERE id = $1
	`, id, status, trackNumber)
	if err != nil {
		return nil, err
	}

	log := domain.OrderLog{
		Status:    status,
		Comment:   comment,
		CreatedBy: updatedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := insertOrderLog(ctx, dbTx, id, log); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}
