// Package invoices holds the owner-scoped invoice operations. Every call takes
// the requesting user's id and never reads or writes another user's records.
package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/validation"
)

type Repository interface {
	Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	ListByUser(ctx context.Context, userID string) ([]invoice.Invoice, error)
	ListOverdueCandidates(ctx context.Context, userID string, now time.Time) ([]invoice.Invoice, error)
	Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error)
	Update(ctx context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error)
	SetStatus(ctx context.Context, userID, id string, status invoice.Status) error
	Delete(ctx context.Context, userID, id string) error
}

type ListResult struct {
	Invoices []invoice.Invoice `json:"invoices"`
	Email    string            `json:"email"`
}

type Service struct {
	repo     Repository
	validate *validation.Validator
	now      func() time.Time
}

func NewService(repo Repository, v *validation.Validator) *Service {
	if v == nil {
		v = validation.New()
	}
	return &Service{
		repo:     repo,
		validate: v,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, p auth.Principal) (ListResult, error) {
	items, err := s.repo.ListByUser(ctx, p.UserID)
	if err != nil {
		return ListResult{}, fmt.Errorf("list invoices: %w", err)
	}

	return ListResult{Invoices: items, Email: p.Email}, nil
}

// ListOverdueCandidates returns the user's invoices still marked due whose due
// date is not in the future.
func (s *Service) ListOverdueCandidates(ctx context.Context, userID string) ([]invoice.Invoice, error) {
	items, err := s.repo.ListOverdueCandidates(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error) {
	inv, err := s.repo.Get(ctx, userID, key)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("get invoice by %s: %w", key.Kind, err)
	}
	return inv, nil
}

func (s *Service) Create(ctx context.Context, userID string, req invoice.CreateInvoiceRequest) (invoice.Invoice, error) {
	if err := s.validate.Struct(req); err != nil {
		return invoice.Invoice{}, err
	}

	inv, err := s.repo.Create(ctx, invoice.NewFromCreateRequest(userID, req, s.now()))
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// Update applies a partial update to the owned invoice selected by key. The
// patch cannot carry an owner or business id, so neither ever changes.
func (s *Service) Update(ctx context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error) {
	if err := s.validatePatch(patch); err != nil {
		return invoice.Invoice{}, err
	}

	if patch.IsEmpty() {
		return s.Get(ctx, userID, key)
	}

	inv, err := s.repo.Update(ctx, userID, key, patch)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("update invoice by %s: %w", key.Kind, err)
	}
	return inv, nil
}

func (s *Service) MarkOverdue(ctx context.Context, userID, id string) error {
	if err := s.repo.SetStatus(ctx, userID, id, invoice.StatusOverdue); err != nil {
		return fmt.Errorf("mark invoice overdue: %w", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return nil
}

func (s *Service) validatePatch(p invoice.Patch) error {
	if p.Amount != nil {
		if err := s.validate.Var("amount", *p.Amount, "gt=0"); err != nil {
			return err
		}
	}
	if p.Recipient != nil {
		if err := s.validate.Var("recipient", *p.Recipient, "required,max=320"); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.IsValid() {
		return validation.NewError("status", "oneof", "draft sent due paid overdue")
	}
	if p.DueDate != nil && p.DueDate.IsZero() {
		return validation.NewError("dueDate", "required", "")
	}
	return nil
}
