package domain

import "time"

// OrderPlacedEvent is published to Kafka after an order commits. Consumers
// only get a snapshot; the database row is authoritative.
type OrderPlacedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	Total       int64       `json:"total"`
	Items       []OrderItem `json:"items"`
	Timestamp   time.Time   `json:"timestamp"`
}
