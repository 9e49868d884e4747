package domain

import "time"

// Category is a node in the catalog tree. ParentID is nil for root
// categories. The parent graph is expected to be a forest; re-parenting is
// validated against cycles at write time.
type Category struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	IsActive  bool      `json:"is_active"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}
