// Package worker reacts to checkout events published by the bookstore API.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/messaging"
)

const (
	sentKeyPrefix = "worker:confirmation-sent:"
	sentKeyTTL    = 7 * 24 * time.Hour
)

// ConfirmationHandler emails the customer a summary of each placed order.
// With a redis client it remembers which orders were already confirmed, so
// a redelivered event does not send a second email.
type ConfirmationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	redis           *redis.Client
	logger          *slog.Logger
}

func NewConfirmationHandler(emailServiceURL string, client *http.Client, rdb *redis.Client, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		httpClient:      client,
		redis:           rdb,
		logger:          logger,
	}
}

func (h *ConfirmationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w: %w", messaging.ErrDiscard, err)
	}
	if event.OrderID == "" || event.Email == "" {
		return fmt.Errorf("order placed event without order id or email: %w", messaging.ErrDiscard)
	}

	log := h.logger.With("order_id", event.OrderID, "user_id", event.UserID)
	log.InfoContext(ctx, "processing order placed event")

	if h.alreadySent(ctx, event.OrderID) {
		log.InfoContext(ctx, "confirmation already sent")
		return nil
	}

	if err := h.sendEmail(ctx, confirmationEmail(event)); err != nil {
		log.ErrorContext(ctx, "failed to send confirmation email", "error", err)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.markSent(ctx, event.OrderID)
	log.InfoContext(ctx, "order confirmation sent", "to", event.Email)
	return nil
}

func (h *ConfirmationHandler) alreadySent(ctx context.Context, orderID string) bool {
	if h.redis == nil {
		return false
	}
	n, err := h.redis.Exists(ctx, sentKeyPrefix+orderID).Result()
	if err != nil {
		h.logger.WarnContext(ctx, "confirmation lookup failed", "error", err, "order_id", orderID)
		return false
	}
	return n > 0
}

func (h *ConfirmationHandler) markSent(ctx context.Context, orderID string) {
	if h.redis == nil {
		return
	}
	if err := h.redis.Set(ctx, sentKeyPrefix+orderID, time.Now().UTC().Format(time.RFC3339), sentKeyTTL).Err(); err != nil {
		h.logger.WarnContext(ctx, "failed to record sent confirmation", "error", err, "order_id", orderID)
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// maxListedItems keeps the body under the email service's size limit even
// with 300-character titles; the rest of the order is summarized.
const maxListedItems = 50

func confirmationEmail(event domain.OrderPlacedEvent) emailMessage {
	var b strings.Builder
	name := event.Username
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\nThank you for your order %s.\n\n", name, event.OrderID)
	for i, item := range event.Items {
		if i == maxListedItems {
			fmt.Fprintf(&b, "  ...and %d more items\n", len(event.Items)-maxListedItems)
			break
		}
		fmt.Fprintf(&b, "  %s x%d  %s\n", item.Title, item.Quantity, item.TotalPrice().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", event.Total.StringFixed(2))

	return emailMessage{
		To:      event.Email,
		Subject: "Order confirmation " + event.OrderID,
		Body:    b.String(),
	}
}

func (h *ConfirmationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The email service rejected the message itself; retrying cannot help.
		return fmt.Errorf("email service returned status %d: %w", resp.StatusCode, messaging.ErrDiscard)
	default:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
}
