package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/google/uuid"
)

// InvoicesRepo keeps invoices in a map keyed by id. It backs tests and the
// "memory" store driver.
type InvoicesRepo struct {
	mu    sync.RWMutex
	items map[string]invoice.Invoice
}

func NewInvoicesRepo() *InvoicesRepo {
	return &InvoicesRepo{
		items: make(map[string]invoice.Invoice),
	}
}

func (r *InvoicesRepo) Create(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.InvoiceID == inv.InvoiceID {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceID
		}
	}

	inv.ID = uuid.NewString()
	r.items[inv.ID] = inv

	return inv, nil
}

func (r *InvoicesRepo) ListByUser(_ context.Context, userID string) ([]invoice.Invoice, error) {
	return r.filter(func(inv invoice.Invoice) bool {
		return inv.UserID == userID
	}), nil
}

func (r *InvoicesRepo) ListOverdueCandidates(_ context.Context, userID string, now time.Time) ([]invoice.Invoice, error) {
	return r.filter(func(inv invoice.Invoice) bool {
		return inv.UserID == userID && inv.IsOverdueCandidate(now)
	}), nil
}

func (r *InvoicesRepo) Get(_ context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, inv, ok := r.find(userID, key)
	if !ok {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (r *InvoicesRepo) Update(_ context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, inv, ok := r.find(userID, key)
	if !ok {
		return invoice.Invoice{}, invoice.ErrNotFound
	}

	inv = patch.Apply(inv)
	inv.UpdatedAt = time.Now().UTC()
	r.items[id] = inv

	return inv, nil
}

func (r *InvoicesRepo) SetStatus(_ context.Context, userID, id string, status invoice.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.items[id]
	if !ok || inv.UserID != userID {
		return invoice.ErrNotFound
	}

	inv.Status = status
	inv.UpdatedAt = time.Now().UTC()
	r.items[id] = inv

	return nil
}

func (r *InvoicesRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.items[id]
	if !ok || inv.UserID != userID {
		return invoice.ErrNotFound
	}

	delete(r.items, id)
	return nil
}

func (r *InvoicesRepo) find(userID string, key invoice.Lookup) (string, invoice.Invoice, bool) {
	if key.Kind == invoice.ByID {
		inv, ok := r.items[key.Value]
		if !ok || inv.UserID != userID {
			return "", invoice.Invoice{}, false
		}
		return key.Value, inv, true
	}

	for id, inv := range r.items {
		if inv.UserID == userID && key.Matches(inv) {
			return id, inv, true
		}
	}
	return "", invoice.Invoice{}, false
}

func (r *InvoicesRepo) filter(keep func(invoice.Invoice) bool) []invoice.Invoice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]invoice.Invoice, 0)
	for _, inv := range r.items {
		if keep(inv) {
			out = append(out, inv)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}
