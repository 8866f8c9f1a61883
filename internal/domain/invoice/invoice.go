package invoice

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("invoice not found")
	ErrDuplicateInvoiceID = errors.New("invoice id already exists")
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusDue     Status = "due"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// StatusRule is the validator rule matching every known status.
const StatusRule = "oneof=draft sent due paid overdue"

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusDue, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

type Invoice struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	Amount    float64   `json:"amount"`
	DueDate   time.Time `json:"dueDate"`
	Recipient string    `json:"recipient"`
	Status    Status    `json:"status"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsOverdueCandidate reports whether the invoice is still "due" but its due
// date has passed.
func (i Invoice) IsOverdueCandidate(now time.Time) bool {
	return i.Status == StatusDue && !i.DueDate.After(now)
}

// DaysOverdue is the number of whole days elapsed since the due date.
func (i Invoice) DaysOverdue(now time.Time) int {
	d := now.Sub(i.DueDate)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

type CreateInvoiceRequest struct {
	InvoiceID string    `json:"invoiceId" binding:"required,max=120"`
	Amount    float64   `json:"amount" binding:"required,gt=0"`
	DueDate   *DateTime `json:"dueDate" binding:"required"`
	Recipient string    `json:"recipient" binding:"required,max=320"`
	Status    Status    `json:"status" binding:"omitempty,oneof=draft sent due paid overdue"`
}

// UpdateInvoiceRequest is a partial update; nil fields are left untouched.
// Owner and business id are deliberately absent.
type UpdateInvoiceRequest struct {
	Amount    *float64  `json:"amount" binding:"omitempty,gt=0"`
	DueDate   *DateTime `json:"dueDate"`
	Recipient *string   `json:"recipient" binding:"omitempty,min=1,max=320"`
	Status    *Status   `json:"status" binding:"omitempty,oneof=draft sent due paid overdue"`
}

type Patch struct {
	Amount    *float64
	DueDate   *time.Time
	Recipient *string
	Status    *Status
}

func (r UpdateInvoiceRequest) Patch() Patch {
	p := Patch{
		Amount:    r.Amount,
		Recipient: r.Recipient,
		Status:    r.Status,
	}
	if r.DueDate != nil {
		t := r.DueDate.Time()
		p.DueDate = &t
	}
	return p
}

func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.DueDate == nil && p.Recipient == nil && p.Status == nil
}

// Apply returns a copy of inv with the patch applied.
func (p Patch) Apply(inv Invoice) Invoice {
	if p.Amount != nil {
		inv.Amount = *p.Amount
	}
	if p.DueDate != nil {
		inv.DueDate = *p.DueDate
	}
	if p.Recipient != nil {
		inv.Recipient = *p.Recipient
	}
	if p.Status != nil {
		inv.Status = *p.Status
	}
	return inv
}

func NewFromCreateRequest(userID string, req CreateInvoiceRequest, now time.Time) Invoice {
	status := req.Status
	if status == "" {
		status = StatusDraft
	}

	var due time.Time
	if req.DueDate != nil {
		due = req.DueDate.Time()
	}

	return Invoice{
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		DueDate:   due,
		Recipient: req.Recipient,
		Status:    status,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
