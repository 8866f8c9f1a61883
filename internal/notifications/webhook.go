package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geocoder89/invoicehub/internal/domain/invoice"
)

const (
	EventInvoiceOverdue  = "INVOICE_OVERDUE"
	EventPaymentReminder = "PAYMENT_REMINDER"
)

type OverdueEvent struct {
	Type        string    `json:"type"`
	InvoiceID   string    `json:"invoiceId"`
	Amount      float64   `json:"amount"`
	Recipient   string    `json:"recipient"`
	DueDate     time.Time `json:"dueDate"`
	DaysOverdue int       `json:"daysOverdue"`
	UserID      string    `json:"userId"`
	UserEmail   string    `json:"userEmail"`
	UserName    string    `json:"userName"`
}

type ReminderEvent struct {
	Type      string         `json:"type"`
	InvoiceID string         `json:"invoiceId"`
	Amount    float64        `json:"amount"`
	Recipient string         `json:"recipient"`
	DueDate   time.Time      `json:"dueDate"`
	Status    invoice.Status `json:"status"`
	UserID    string         `json:"userId"`
	UserEmail string         `json:"userEmail"`
	UserName  string         `json:"userName"`
}

type WebhookPoster interface {
	Post(ctx context.Context, event any) error
}

// HTTPWebhook POSTs events as JSON to a single configured URL, e.g. a Zapier
// catch hook. Any non-2xx answer is an error.
type HTTPWebhook struct {
	url    string
	client *http.Client
}

func NewHTTPWebhook(url string, client *http.Client) *HTTPWebhook {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPWebhook{url: url, client: client}
}

func (w *HTTPWebhook) Post(ctx context.Context, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
