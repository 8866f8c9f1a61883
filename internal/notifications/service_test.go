package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/invoices"
	"github.com/geocoder89/invoicehub/internal/repo/memory"
	"github.com/geocoder89/invoicehub/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []Message
	failTo func(msg Message) error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	if m.failTo != nil {
		if err := m.failTo(msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeWebhook struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (w *fakeWebhook) Post(_ context.Context, event any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return w.err
}

type fixture struct {
	invoices *invoices.Service
	mailer   *fakeMailer
	webhook  *fakeWebhook
	svc      *Service
	user     auth.Principal
}

func newFixture(t *testing.T, withWebhook bool) *fixture {
	t.Helper()

	f := &fixture{
		invoices: invoices.NewService(memory.NewInvoicesRepo(), validation.New()),
		mailer:   &fakeMailer{},
		webhook:  &fakeWebhook{},
		user:     auth.Principal{UserID: "user-1", Email: "owner@example.com", Name: "Owner"},
	}

	var hook WebhookPoster
	if withWebhook {
		hook = f.webhook
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.invoices, f.mailer, hook, logger, nil)
	return f
}

func (f *fixture) create(t *testing.T, userID, invoiceID string, due time.Time, status invoice.Status) invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Create(context.Background(), userID, invoice.CreateInvoiceRequest{
		InvoiceID: invoiceID,
		Amount:    100,
		DueDate:   invoice.NewDateTime(due),
		Recipient: "client@example.com",
		Status:    status,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) status(t *testing.T, userID, id string) invoice.Status {
	t.Helper()
	inv, err := f.invoices.Get(context.Background(), userID, invoice.LookupID(id))
	require.NoError(t, err)
	return inv.Status
}

func TestTriggerOverdue_NotifiesAndTransitions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	yesterday := time.Now().UTC().Add(-25 * time.Hour)
	inv := f.create(t, f.user.UserID, "INV-1", yesterday, invoice.StatusDue)

	res, err := f.svc.TriggerOverdue(ctx, f.user, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, []string{"INV-1"}, res.NotifiedInvoiceIDs)

	require.Equal(t, 1, f.mailer.count())
	msg := f.mailer.sent[0]
	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "Invoice Overdue Notice", msg.Subject)
	assert.Contains(t, msg.HTML, "INV-1")
	assert.Contains(t, msg.HTML, "$100.00")
	assert.Contains(t, msg.HTML, "Owner")
	assert.Contains(t, msg.Text, "Due Date: "+yesterday.Format("Jan 2, 2006"))

	require.Len(t, f.webhook.events, 1)
	ev, ok := f.webhook.events[0].(OverdueEvent)
	require.True(t, ok, "expected OverdueEvent, got %T", f.webhook.events[0])
	assert.Equal(t, EventInvoiceOverdue, ev.Type)
	assert.Equal(t, "INV-1", ev.InvoiceID)
	assert.Equal(t, "a@b.com", ev.Recipient)
	assert.GreaterOrEqual(t, ev.DaysOverdue, 1)
	assert.Equal(t, "owner@example.com", ev.UserEmail)
	assert.Equal(t, "Owner", ev.UserName)

	assert.Equal(t, invoice.StatusOverdue, f.status(t, f.user.UserID, inv.ID))
}

func TestTriggerOverdue_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.create(t, f.user.UserID, "INV-1", time.Now().UTC().AddDate(0, 0, -3), invoice.StatusDue)

	_, err := f.svc.TriggerOverdue(ctx, f.user, "a@b.com")
	require.NoError(t, err)

	res, err := f.svc.TriggerOverdue(ctx, f.user, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Empty(t, res.NotifiedInvoiceIDs)
	assert.Equal(t, 1, f.mailer.count())
	assert.Len(t, f.webhook.events, 1)
}

func TestTriggerOverdue_NoCandidates(t *testing.T) {
	f := newFixture(t, true)

	f.create(t, f.user.UserID, "FUTURE", time.Now().UTC().AddDate(0, 0, 5), invoice.StatusDue)
	f.create(t, f.user.UserID, "PAID", time.Now().UTC().AddDate(0, 0, -5), invoice.StatusPaid)
	f.create(t, "someone-else", "OTHER", time.Now().UTC().AddDate(0, 0, -5), invoice.StatusDue)

	res, err := f.svc.TriggerOverdue(context.Background(), f.user, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.NotNil(t, res.NotifiedInvoiceIDs)
	assert.Empty(t, res.NotifiedInvoiceIDs)
	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.webhook.events)
}

func TestTriggerOverdue_InvalidRecipientSkipsAll(t *testing.T) {
	f := newFixture(t, true)

	inv := f.create(t, f.user.UserID, "INV-1", time.Now().UTC().AddDate(0, 0, -1), invoice.StatusDue)

	res, err := f.svc.TriggerOverdue(context.Background(), f.user, "not-an-email")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Empty(t, res.NotifiedInvoiceIDs)
	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.webhook.events)
	assert.Equal(t, invoice.StatusDue, f.status(t, f.user.UserID, inv.ID))
}

func TestTriggerOverdue_EmailFailureIsIsolated(t *testing.T) {
	f := newFixture(t, false)
	f.mailer.failTo = func(msg Message) error {
		if strings.Contains(msg.HTML, "INV-BAD") {
			return errors.New("smtp 550")
		}
		return nil
	}

	past := time.Now().UTC().AddDate(0, 0, -2)
	good1 := f.create(t, f.user.UserID, "INV-1", past, invoice.StatusDue)
	bad := f.create(t, f.user.UserID, "INV-BAD", past, invoice.StatusDue)
	good2 := f.create(t, f.user.UserID, "INV-2", past, invoice.StatusDue)

	res, err := f.svc.TriggerOverdue(context.Background(), f.user, "a@b.com")
	require.NoError(t, err)

	got := append([]string(nil), res.NotifiedInvoiceIDs...)
	sort.Strings(got)
	assert.Equal(t, []string{"INV-1", "INV-2"}, got)

	assert.Equal(t, invoice.StatusOverdue, f.status(t, f.user.UserID, good1.ID))
	assert.Equal(t, invoice.StatusOverdue, f.status(t, f.user.UserID, good2.ID))
	assert.Equal(t, invoice.StatusDue, f.status(t, f.user.UserID, bad.ID))
}

func TestTriggerOverdue_WebhookFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, true)
	f.webhook.err = errors.New("zapier down")

	past := time.Now().UTC().AddDate(0, 0, -2)
	a := f.create(t, f.user.UserID, "INV-1", past, invoice.StatusDue)
	b := f.create(t, f.user.UserID, "INV-2", past, invoice.StatusDue)

	res, err := f.svc.TriggerOverdue(context.Background(), f.user, "a@b.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INV-1", "INV-2"}, res.NotifiedInvoiceIDs)
	assert.Len(t, f.webhook.events, 2)
	assert.Equal(t, invoice.StatusOverdue, f.status(t, f.user.UserID, a.ID))
	assert.Equal(t, invoice.StatusOverdue, f.status(t, f.user.UserID, b.ID))
}

func TestTriggerReminder_Sends(t *testing.T) {
	f := newFixture(t, true)

	inv := f.create(t, f.user.UserID, "INV-1", time.Now().UTC().AddDate(0, 0, 3), invoice.StatusSent)

	res, err := f.svc.TriggerReminder(context.Background(), f.user, "INV-1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", res.InvoiceID)

	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, "Payment Reminder", f.mailer.sent[0].Subject)

	require.Len(t, f.webhook.events, 1)
	ev, ok := f.webhook.events[0].(ReminderEvent)
	require.True(t, ok)
	assert.Equal(t, EventPaymentReminder, ev.Type)
	assert.Equal(t, invoice.StatusSent, ev.Status)

	assert.Equal(t, invoice.StatusSent, f.status(t, f.user.UserID, inv.ID))
}

func TestTriggerReminder_BadEmail(t *testing.T) {
	f := newFixture(t, true)

	inv := f.create(t, f.user.UserID, "INV-1", time.Now().UTC().AddDate(0, 0, -1), invoice.StatusDue)

	_, err := f.svc.TriggerReminder(context.Background(), f.user, "INV-1", "bad-email")

	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Fields[0].Field)
	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.webhook.events)
	assert.Equal(t, invoice.StatusDue, f.status(t, f.user.UserID, inv.ID))
}

func TestTriggerReminder_NotOwned(t *testing.T) {
	f := newFixture(t, true)

	f.create(t, "someone-else", "INV-1", time.Now().UTC(), invoice.StatusDue)

	_, err := f.svc.TriggerReminder(context.Background(), f.user, "INV-1", "a@b.com")
	assert.ErrorIs(t, err, invoice.ErrNotFound)
	assert.Zero(t, f.mailer.count())
}

func TestTriggerReminder_MailFailure(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.failTo = func(Message) error { return errors.New("smtp down") }

	f.create(t, f.user.UserID, "INV-1", time.Now().UTC(), invoice.StatusDue)

	_, err := f.svc.TriggerReminder(context.Background(), f.user, "INV-1", "a@b.com")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, f.webhook.events)
}

func TestTriggerReminder_WebhookFailureIsBestEffort(t *testing.T) {
	f := newFixture(t, true)
	f.webhook.err = errors.New("timeout")

	f.create(t, f.user.UserID, "INV-1", time.Now().UTC(), invoice.StatusDue)

	res, err := f.svc.TriggerReminder(context.Background(), f.user, "INV-1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", res.InvoiceID)
}
