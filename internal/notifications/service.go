// Package notifications runs the overdue and reminder workflows: it renders
// the email, sends it, posts the optional webhook event and, for overdue
// invoices, moves the status on.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/observability"
	"github.com/geocoder89/invoicehub/internal/validation"
	"golang.org/x/sync/errgroup"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

type InvoiceSource interface {
	ListOverdueCandidates(ctx context.Context, userID string) ([]invoice.Invoice, error)
	Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error)
	MarkOverdue(ctx context.Context, userID, id string) error
}

type OverdueResult struct {
	// Candidates is how many invoices matched before any sends.
	Candidates         int
	NotifiedInvoiceIDs []string
}

type ReminderResult struct {
	InvoiceID string
}

type Service struct {
	invoices InvoiceSource
	mailer   Mailer
	webhook  WebhookPoster // nil when no endpoint is configured
	validate *validation.Validator
	logger   *slog.Logger
	prom     *observability.Prom
	now      func() time.Time
}

func NewService(invoices InvoiceSource, mailer Mailer, webhook WebhookPoster, logger *slog.Logger, prom *observability.Prom) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		invoices: invoices,
		mailer:   mailer,
		webhook:  webhook,
		validate: validation.New(),
		logger:   logger,
		prom:     prom,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TriggerOverdue notifies recipientEmail about every invoice of p that is due
// and past its due date, one goroutine per invoice. Failures are isolated per
// invoice: a failed email or status update leaves that invoice out of the
// result, a failed webhook is only logged.
func (s *Service) TriggerOverdue(ctx context.Context, p auth.Principal, recipientEmail string) (OverdueResult, error) {
	candidates, err := s.invoices.ListOverdueCandidates(ctx, p.UserID)
	if err != nil {
		return OverdueResult{}, fmt.Errorf("list overdue candidates: %w", err)
	}

	res := OverdueResult{Candidates: len(candidates), NotifiedInvoiceIDs: []string{}}
	if len(candidates) == 0 {
		return res, nil
	}

	// a started batch runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	emailErr := s.validate.Var("email", recipientEmail, "required,email")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, inv := range candidates {
		g.Go(func() error {
			if !s.notifyOverdue(ctx, p, inv, recipientEmail, emailErr, now) {
				return nil
			}
			mu.Lock()
			res.NotifiedInvoiceIDs = append(res.NotifiedInvoiceIDs, inv.InvoiceID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "overdue notifications processed",
		"user_id", p.UserID,
		"candidates", len(candidates),
		"notified", len(res.NotifiedInvoiceIDs),
	)

	return res, nil
}

func (s *Service) notifyOverdue(ctx context.Context, p auth.Principal, inv invoice.Invoice, to string, emailErr error, now time.Time) bool {
	log := s.logger.With("user_id", p.UserID, "invoice_id", inv.InvoiceID)

	if emailErr != nil {
		log.WarnContext(ctx, "overdue notification skipped: invalid recipient", "err", emailErr)
		return false
	}

	if err := s.sendEmail(ctx, "overdue", overdueEmail(inv, to, p.Name)); err != nil {
		log.ErrorContext(ctx, "overdue email failed", "err", err)
		return false
	}

	s.postWebhook(ctx, log, "overdue", OverdueEvent{
		Type:        EventInvoiceOverdue,
		InvoiceID:   inv.InvoiceID,
		Amount:      inv.Amount,
		Recipient:   to,
		DueDate:     inv.DueDate,
		DaysOverdue: inv.DaysOverdue(now),
		UserID:      p.UserID,
		UserEmail:   p.Email,
		UserName:    p.Name,
	})

	if err := s.invoices.MarkOverdue(ctx, p.UserID, inv.ID); err != nil {
		log.ErrorContext(ctx, "mark overdue failed", "err", err)
		return false
	}

	return true
}

// TriggerReminder emails a payment reminder for one owned invoice. Unlike the
// overdue batch every step up to the email is a hard failure; the status is
// never touched.
func (s *Service) TriggerReminder(ctx context.Context, p auth.Principal, invoiceID, recipientEmail string) (ReminderResult, error) {
	if err := s.validate.Var("email", recipientEmail, "required,email"); err != nil {
		return ReminderResult{}, err
	}

	inv, err := s.invoices.Get(ctx, p.UserID, invoice.LookupInvoiceID(invoiceID))
	if err != nil {
		return ReminderResult{}, err
	}

	ctx = context.WithoutCancel(ctx)

	if err := s.sendEmail(ctx, "reminder", reminderEmail(inv, recipientEmail, p.Name)); err != nil {
		return ReminderResult{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	log := s.logger.With("user_id", p.UserID, "invoice_id", inv.InvoiceID)
	s.postWebhook(ctx, log, "reminder", ReminderEvent{
		Type:      EventPaymentReminder,
		InvoiceID: inv.InvoiceID,
		Amount:    inv.Amount,
		Recipient: recipientEmail,
		DueDate:   inv.DueDate,
		Status:    inv.Status,
		UserID:    p.UserID,
		UserEmail: p.Email,
		UserName:  p.Name,
	})

	return ReminderResult{InvoiceID: inv.InvoiceID}, nil
}

func (s *Service) sendEmail(ctx context.Context, kind string, msg Message) error {
	start := time.Now()
	err := s.mailer.Send(ctx, msg)
	s.prom.ObserveNotification("email", kind, time.Since(start), err)
	return err
}

func (s *Service) postWebhook(ctx context.Context, log *slog.Logger, kind string, event any) {
	if s.webhook == nil {
		return
	}

	start := time.Now()
	err := s.webhook.Post(ctx, event)
	s.prom.ObserveNotification("webhook", kind, time.Since(start), err)

	if err != nil {
		log.WarnContext(ctx, "webhook post failed", "kind", kind, "err", err)
	}
}
