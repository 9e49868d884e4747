package domain

import "time"

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the allowed status graph: the happy path moves
// forward one step at a time, cancellation is absorbing and only reachable
// before shipping.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type DeliveryType string

const (
	DeliveryPickup    DeliveryType = "pickup"
	DeliveryCourier   DeliveryType = "courier"
	DeliveryTransport DeliveryType = "transport"
)

// Delivery fees in minor currency units. Pickup is free.
const (
	courierFee   int64 = 1500
	transportFee int64 = 2900
)

func (d DeliveryType) Valid() bool {
	switch d {
	case DeliveryPickup, DeliveryCourier, DeliveryTransport:
		return true
	}
	return false
}

func (d DeliveryType) Fee() int64 {
	switch d {
	case DeliveryCourier:
		return courierFee
	case DeliveryTransport:
		return transportFee
	default:
		return 0
	}
}

type Order struct {
	ID           string       `json:"id"`
	OrderNumber  string       `json:"order_number"`
	UserID       string       `json:"user_id"`
	Status       OrderStatus  `json:"status"`
	Subtotal     int64        `json:"subtotal"`
	Delivery     int64        `json:"delivery"`
	Discount     int64        `json:"discount"`
	Total        int64        `json:"total"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Phone        string       `json:"phone"`
	Email        string       `json:"email"`
	Company      string       `json:"company,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	DeliveryType DeliveryType `json:"delivery_type"`
	AddressID    *string      `json:"address_id,omitempty"`
	TrackNumber  string       `json:"track_number,omitempty"`
	Items        []OrderItem  `json:"items"`
	Logs         []OrderLog   `json:"logs,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// OrderItem is a line snapshot: Price is the unit price at placement time
// and never tracks later product edits. Total = Price * Quantity.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     int64   `json:"price"`
	Total     int64   `json:"total"`
}

// OrderLog is one append-only entry of an order's status history.
type OrderLog struct {
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment,omitempty"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// Coupon backs promo codes at placement time. Either PercentOff or
// AmountOff is set, never both.
type Coupon struct {
	Code       string `json:"code"`
	PercentOff int    `json:"percent_off"`
	AmountOff  int64  `json:"amount_off"`
	IsActive   bool   `json:"is_active"`
}

// Discount computes the coupon's value against a subtotal, capped so the
// order total can never go negative.
func (c Coupon) Discount(subtotal int64) int64 {
	if !c.IsActive {
		return 0
	}
	if c.PercentOff > 0 {
		return subtotal * int64(c.PercentOff) / 100
	}
	if c.AmountOff > subtotal {
		return subtotal
	}
	return c.AmountOff
}
