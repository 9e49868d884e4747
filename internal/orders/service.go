package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dkoval/storefront/internal/domain"
)

// Tx is the unit of work PlaceOrder runs inside. The SQL implementation
// backs every call with the same database transaction, so a failure
// anywhere rolls back the order, its items, the status log and all stock
// decrements together.
type Tx interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	CouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	DecrementStock(ctx context.Context, productID string, quantity int) error
}

type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Publisher emits order events; a nil Publisher disables eventing.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type CartLine struct {
	ProductID string
	VariantID *string
	Quantity  int
}

type PlaceOrderInput struct {
	UserID       string
	Lines        []CartLine
	FirstName    string
	LastName     string
	Phone        string
	Email        string
	Company      string
	Notes        string
	DeliveryType domain.DeliveryType
	AddressID    *string
	PromoCode    string
}

type Service struct {
	store        Store
	producer     Publisher
	logger       *slog.Logger
	ordersPlaced metric.Int64Counter
	orderValue   metric.Int64Histogram
}

func NewService(store Store, producer Publisher, logger *slog.Logger) (*Service, error) {
	meter := otel.Meter("orders")

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Number of successfully placed orders"))
	if err != nil {
		return nil, err
	}

	value, err := meter.Int64Histogram("orders.value",
		metric.WithDescription("Order totals in minor currency units"),
		metric.WithUnit("{cents}"))
	if err != nil {
		return nil, err
	}

	return &Service{
		store:        store,
		producer:     producer,
		logger:       logger,
		ordersPlaced: placed,
		orderValue:   value,
	}, nil
}

// PlaceOrder validates the cart against live catalog state, snapshots unit
// prices, computes totals and persists the order, its items, the initial
// status log entry and every stock decrement in one transaction. Either
// everything commits or nothing does. The order.placed event is published
// after commit; publish failures are logged and never fail the order.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	ids := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, lineErr(line.ProductID, line.Quantity, errors.New("quantity must be positive"))
		}
		ids = append(ids, line.ProductID)
	}

	order := &domain.Order{
		OrderNumber:  newOrderNumber(time.Now().UTC()),
		UserID:       input.UserID,
		Status:       domain.OrderStatusNew,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Phone:        input.Phone,
		Email:        input.Email,
		Company:      input.Company,
		Notes:        input.Notes,
		DeliveryType: input.DeliveryType,
		AddressID:    input.AddressID,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		products, err := tx.ProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}

		var subtotal int64
		items := make([]domain.OrderItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			product, ok := products[line.ProductID]
			if !ok {
				return lineErr(line.ProductID, line.Quantity, ErrProductNotFound)
			}
			if !product.IsActive || !product.IsInStock {
				return lineErr(line.ProductID, line.Quantity, ErrProductUnavailable)
			}
			if product.Stock < line.Quantity {
				return lineErr(line.ProductID, line.Quantity, ErrInsufficientStock)
			}

			item := domain.OrderItem{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
				Price:     product.Price,
				Total:     product.Price * int64(line.Quantity),
			}
			subtotal += item.Total
			items = append(items, item)
		}

		order.Items = items
		order.Subtotal = subtotal
		order.Delivery = input.DeliveryType.Fee()
		order.Discount = s.resolveDiscount(ctx, tx, input.PromoCode, subtotal)
		order.Total = order.Subtotal + order.Delivery - order.Discount

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				// The conditional update lost a race with a concurrent
				// order; surface it as the same error the precondition
				// check would have produced.
				return lineErr(item.ProductID, item.Quantity, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ordersPlaced.Add(ctx, 1,
		metric.WithAttributes(attribute.String("delivery_type", string(order.DeliveryType))))
	s.orderValue.Record(ctx, order.Total)

	s.publishPlaced(ctx, order)

	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total", order.Total,
		"lines", len(order.Items))

	return order, nil
}

// resolveDiscount looks the promo code up inside the placement transaction.
// Unknown or inactive codes are ignored rather than failing the order.
func (s *Service) resolveDiscount(ctx context.Context, tx Tx, code string, subtotal int64) int64 {
	if code == "" {
		return 0
	}

	coupon, err := tx.CouponByCode(ctx, code)
	if err != nil {
		s.logger.Error("failed to look up promo code", "error", err, "code", code)
		return 0
	}
	if coupon == nil || !coupon.IsActive {
		s.logger.Info("promo code ignored", "code", code)
		return 0
	}

	return coupon.Discount(subtotal)
}

func (s *Service) publishPlaced(ctx context.Context, order *domain.Order) {
	if s.producer == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Email:       order.Email,
		FirstName:   order.FirstName,
		Total:       order.Total,
		Items:       order.Items,
		Timestamp:   order.CreatedAt,
	}

	if err := s.producer.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
	}
}

const numberCharset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// newOrderNumber builds a customer-facing reference from the date plus a
// random suffix. The orders.order_number column is UNIQUE, so the unlikely
// collision fails the insert instead of producing two orders sharing a
// number.
func newOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = numberCharset[rand.Intn(len(numberCharset))]
	}
	return "SO-" + now.Format("20060102") + "-" + string(suffix)
}
