package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dkoval/storefront/internal/domain"
)

// Handler fans an order.placed event out into notifications: a
// confirmation email to the customer and an alert to the ops inbox. Both
// are best-effort; the order itself committed long before this runs.
type Handler struct {
	emailServiceURL string
	opsEmail        string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(emailServiceURL, opsEmail string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		opsEmail:        opsEmail,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "order_number", event.OrderNumber)

	if err := h.sendConfirmation(ctx, event); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
	}

	if err := h.sendOpsAlert(ctx, event); err != nil {
		h.logger.Error("failed to send ops alert", "error", err, "order_id", event.OrderID)
	}

	return nil
}

func (h *Handler) sendConfirmation(ctx context.Context, event domain.OrderPlacedEvent) error {
	var units int
	for _, item := range event.Items {
		units += item.Quantity
	}

	return h.sendEmail(ctx, map[string]string{
		"to":      event.Email,
		"subject": "Order confirmation " + event.OrderNumber,
		"body": fmt.Sprintf("Hi %s, we received your order %s (%d items). We will be in touch once it ships.",
			event.FirstName, event.OrderNumber, units),
	})
}

func (h *Handler) sendOpsAlert(ctx context.Context, event domain.OrderPlacedEvent) error {
	return h.sendEmail(ctx, map[string]string{
		"to":      h.opsEmail,
		"subject": "New order " + event.OrderNumber,
		"body": fmt.Sprintf("Order %s from user %s, %d lines, total %d.",
			event.OrderNumber, event.UserID, len(event.Items), event.Total),
	})
}

func (h *Handler) sendEmail(ctx context.Context, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
