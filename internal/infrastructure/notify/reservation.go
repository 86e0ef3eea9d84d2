// Package notify pushes invoice status changes to the external
// reservation system. Delivery is best effort: failures are logged,
// never propagated into the triggering request.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultNotifyTimeout = 5 * time.Second

// tokenHeader carries the shared secret on outbound sync calls.
const tokenHeader = "X-Sync-Token"

// StatusUpdate describes one invoice status change for the remote side.
type StatusUpdate struct {
	ReservationID string    `json:"reservation_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationClient posts status updates to the reservation system.
type ReservationClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewReservationClient creates a ReservationClient
func NewReservationClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *ReservationClient {
	if timeout == 0 {
		timeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NotifyStatus sends one status update. Errors are logged and
// swallowed; the caller fires this from a goroutine and moves on.
func (c *ReservationClient) NotifyStatus(ctx context.Context, reservationID, invoiceNumber, status string) {
	update := StatusUpdate{
		ReservationID: reservationID,
		InvoiceNumber: invoiceNumber,
		Status:        status,
		OccurredAt:    time.Now().UTC(),
	}
	if err := c.post(ctx, update); err != nil {
		c.logger.Warn("reservation status sync failed",
			zap.String("reservation_id", update.ReservationID),
			zap.String("status", update.Status),
			zap.Error(err))
		return
	}
	c.logger.Info("reservation status synced",
		zap.String("reservation_id", update.ReservationID),
		zap.String("status", update.Status))
}

func (c *ReservationClient) post(ctx context.Context, update StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/reservations/%s/invoice-status", c.baseURL, update.ReservationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
