package domain

import "time"

// StockStatus is a coarse availability tier derived from the numeric stock
// count. It is persisted alongside stock as a denormalized projection and
// must be recomputed on every stock mutation; it is never the source of
// truth.
type StockStatus string

const (
	StockStatusNone   StockStatus = "none"
	StockStatusFew    StockStatus = "few"
	StockStatusEnough StockStatus = "enough"
	StockStatusMany   StockStatus = "many"
)

// DeriveStockStatus maps a stock count and availability flag to a tier.
// Products flagged unavailable are "none" no matter how much stock the
// count claims.
func DeriveStockStatus(stock int, inStock bool) StockStatus {
	if !inStock || stock <= 0 {
		return StockStatusNone
	}
	switch {
	case stock <= 2:
		return StockStatusFew
	case stock <= 10:
		return StockStatusEnough
	default:
		return StockStatusMany
	}
}

type Product struct {
	ID          string      `json:"id"`
	SKU         string      `json:"sku"`
	Slug        string      `json:"slug"`
	Name        string      `json:"name"`
	Price       int64       `json:"price"`
	Stock       int         `json:"stock"`
	IsActive    bool        `json:"is_active"`
	IsInStock   bool        `json:"is_in_stock"`
	StockStatus StockStatus `json:"stock_status"`
	CategoryID  string      `json:"category_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
