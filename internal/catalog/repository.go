package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dkoval/storefront/internal/domain"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCyclicParent      = errors.New("parent change would create a cycle")
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// repository methods can run standalone or inside the order placement
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB {
	return r.db
}

const productColumns = `id, sku, slug, name, price, stock, is_active, is_in_stock, stock_status, category_id, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.SKU, &p.Slug, &p.Name, &p.Price, &p.Stock,
		&p.IsActive, &p.IsInStock, &p.StockStatus, &p.CategoryID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// FindProductsByIDs loads products for the given ids on q, which may be a
// transaction. Missing ids are simply absent from the result map.
func (r *Repository) FindProductsByIDs(ctx context.Context, q Querier, ids []string) (map[string]*domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	return products, rows.Err()
}

// DecrementStock applies a conditional decrement: the WHERE clause both
// checks and consumes stock in one statement, so two concurrent orders can
// never drive stock negative. The stock_status projection is recomputed by
// the same statement. Returns ErrInsufficientStock when the guard fails.
func (r *Repository) DecrementStock(ctx context.Context, q Querier, productID string, quantity int) error {
	var (
		newStock int
		inStock  bool
	)
	err := q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock, is_in_stock
	`, productID, quantity).Scan(&newStock, &inStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInsufficientStock
		}
		return err
	}

	status := domain.DeriveStockStatus(newStock, inStock)
	_, err = q.ExecContext(ctx, `
		UPDATE products SET stock_status = $2 WHERE id = $1
	`, productID, status)
	return err
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	p.StockStatus = domain.DeriveStockStatus(p.Stock, p.IsInStock)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, slug, name, price, stock, is_active, is_in_stock, stock_status, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, p.ID, p.SKU, p.Slug, p.Name, p.Price, p.Stock, p.IsActive, p.IsInStock, p.StockStatus, p.CategoryID, now)
	return err
}

// SetStock is the admin path for direct stock edits. The derived status is
// persisted in the same statement that mutates stock, so it cannot go
// stale.
func (r *Repository) SetStock(ctx context.Context, productID string, stock int, inStock bool) (*domain.Product, error) {
	status := domain.DeriveStockStatus(stock, inStock)
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, is_in_stock = $3, stock_status = $4, updated_at = NOW()
		WHERE id = $1
	`, productID, stock, inStock, status)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrProductNotFound
	}

	return r.GetProduct(ctx, productID)
}

// ListProductsByCategory widens the category filter to the whole active
// subtree before querying.
func (r *Repository) ListProductsByCategory(ctx context.Context, categoryID string) ([]domain.Product, error) {
	ids, err := r.SubtreeIDs(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE category_id = ANY($1) AND is_active
		ORDER BY created_at DESC
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

// SubtreeIDs expands a category id to itself plus all active descendants,
// one query per tree level. The visited set makes the walk terminate even
// if bad data introduces a parent cycle.
func (r *Repository) SubtreeIDs(ctx context.Context, categoryID string) ([]string, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND is_active)
	`, categoryID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCategoryNotFound
	}

	visited := map[string]bool{categoryID: true}
	ids := []string{categoryID}
	frontier := []string{categoryID}

	for len(frontier) > 0 {
		rows, err := r.db.QueryContext(ctx, `
			SELECT id FROM categories
			WHERE parent_id = ANY($1) AND is_active
		`, pq.Array(frontier))
		if err != nil {
			return nil, err
		}

		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			if visited[id] {
				continue
			}
			visited[id] = true
			ids = append(ids, id)
			next = append(next, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()

		frontier = next
	}

	return ids, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, parent_id, is_active, sort_order, created_at
		FROM categories
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.ParentID, &c.IsActive, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, c *domain.Category) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, slug, name, parent_id, is_active, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Slug, c.Name, c.ParentID, c.IsActive, c.SortOrder, c.CreatedAt)
	return err
}

// UpdateCategoryParent re-parents a category after checking the move does
// not introduce a cycle: walking up from the new parent must never reach
// the category being moved.
func (r *Repository) UpdateCategoryParent(ctx context.Context, categoryID string, parentID *string) error {
	if parentID != nil {
		if *parentID == categoryID {
			return ErrCyclicParent
		}
		cyclic, err := r.reachesFromAncestors(ctx, *parentID, categoryID)
		if err != nil {
			return err
		}
		if cyclic {
			return ErrCyclicParent
		}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE categories SET parent_id = $2 WHERE id = $1
	`, categoryID, parentID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *Repository) reachesFromAncestors(ctx context.Context, startID, targetID string) (bool, error) {
	current := startID
	seen := map[string]bool{}
	for {
		if seen[current] {
			// Pre-existing cycle in the data; the move is unsafe either way.
			return true, nil
		}
		seen[current] = true

		var parent sql.NullString
		err := r.db.QueryRowContext(ctx, `
			SELECT parent_id FROM categories WHERE id = $1
		`, current).Scan(&parent)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, fmt.Errorf("category %s: %w", current, ErrCategoryNotFound)
			}
			return false, err
		}

		if !parent.Valid {
			return false, nil
		}
		if parent.String == targetID {
			return true, nil
		}
		current = parent.String
	}
}
