package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/http/middlewares"
	"github.com/geocoder89/invoicehub/internal/notifications"
	"github.com/geocoder89/invoicehub/internal/validation"
	"github.com/gin-gonic/gin"
)

type NotificationService interface {
	TriggerOverdue(ctx context.Context, p auth.Principal, recipientEmail string) (notifications.OverdueResult, error)
	TriggerReminder(ctx context.Context, p auth.Principal, invoiceID, recipientEmail string) (notifications.ReminderResult, error)
}

type AutomationHandler struct {
	svc NotificationService
}

func NewAutomationHandler(svc NotificationService) *AutomationHandler {
	return &AutomationHandler{svc: svc}
}

type TriggerOverdueRequest struct {
	Email string `json:"email"`
}

type TriggerReminderRequest struct {
	InvoiceID string `json:"invoiceId" binding:"required"`
	Email     string `json:"email"`
}

// TriggerOverdue runs the batch on the request context without a handler
// timeout.
func (h *AutomationHandler) TriggerOverdue(ctx *gin.Context) {
	p, ok := middlewares.PrincipalFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	// the body is optional; with no recipient each candidate is skipped
	var req TriggerOverdueRequest
	if !BindOptionalJSON(ctx, &req) {
		return
	}

	res, err := h.svc.TriggerOverdue(ctx.Request.Context(), p, req.Email)
	if err != nil {
		RespondInternal(ctx, "Failed to send overdue notifications", err)
		return
	}

	if res.Candidates == 0 {
		ctx.JSON(http.StatusOK, gin.H{"message": "No overdue invoices found"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":          "Overdue notifications sent successfully",
		"notifiedInvoices": res.NotifiedInvoiceIDs,
	})
}

func (h *AutomationHandler) TriggerReminder(ctx *gin.Context) {
	p, ok := middlewares.PrincipalFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req TriggerReminderRequest
	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.svc.TriggerReminder(ctx.Request.Context(), p, req.InvoiceID, req.Email)
	if err != nil {
		var ve *validation.Error
		switch {
		case errors.As(err, &ve):
			RespondBadRequest(ctx, "Recipient email is missing or invalid for the selected invoice", gin.H{"fields": ve.Fields})
		case errors.Is(err, invoice.ErrNotFound):
			RespondNotFound(ctx, "Invoice not found")
		default:
			RespondInternal(ctx, "Failed to send payment reminder", err)
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Payment reminder sent successfully",
		"invoice": res.InvoiceID,
	})
}
