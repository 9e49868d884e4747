package domain

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to OrderStatus
	}{
		{OrderStatusNew, OrderStatusProcessing},
		{OrderStatusNew, OrderStatusCancelled},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusProcessing, OrderStatusCancelled},
		{OrderStatusShipped, OrderStatusDelivered},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransitionTo(tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct {
		from, to OrderStatus
	}{
		{OrderStatusNew, OrderStatusShipped},
		{OrderStatusNew, OrderStatusDelivered},
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusDelivered, OrderStatusProcessing},
		{OrderStatusCancelled, OrderStatusNew},
		{OrderStatusCancelled, OrderStatusProcessing},
		{OrderStatusDelivered, OrderStatusDelivered},
	}
	for _, tr := range forbidden {
		if tr.from.CanTransitionTo(tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestDeliveryFee(t *testing.T) {
	if got := DeliveryPickup.Fee(); got != 0 {
		t.Errorf("pickup fee = %d, want 0", got)
	}
	if got := DeliveryCourier.Fee(); got == 0 {
		t.Error("courier fee should be nonzero")
	}
	if got := DeliveryTransport.Fee(); got == 0 {
		t.Error("transport fee should be nonzero")
	}
}

func TestCouponDiscount(t *testing.T) {
	t.Run("percent off", func(t *testing.T) {
		c := Coupon{Code: "SPRING10", PercentOff: 10, IsActive: true}
		if got := c.Discount(10000); got != 1000 {
			t.Errorf("discount = %d, want 1000", got)
		}
	})

	t.Run("amount off capped at subtotal", func(t *testing.T) {
		c := Coupon{Code: "WELCOME", AmountOff: 5000, IsActive: true}
		if got := c.Discount(3000); got != 3000 {
			t.Errorf("discount = %d, want 3000", got)
		}
	})

	t.Run("inactive coupon is worthless", func(t *testing.T) {
		c := Coupon{Code: "EXPIRED", PercentOff: 50}
		if got := c.Discount(10000); got != 0 {
			t.Errorf("discount = %d, want 0", got)
		}
	})
}
