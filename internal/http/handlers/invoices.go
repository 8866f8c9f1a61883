package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/config"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/http/middlewares"
	"github.com/geocoder89/invoicehub/internal/invoices"
	"github.com/gin-gonic/gin"
)

const storeTimeout = 3 * time.Second

type InvoiceService interface {
	List(ctx context.Context, p auth.Principal) (invoices.ListResult, error)
	ListOverdueCandidates(ctx context.Context, userID string) ([]invoice.Invoice, error)
	Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error)
	Create(ctx context.Context, userID string, req invoice.CreateInvoiceRequest) (invoice.Invoice, error)
	Update(ctx context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error)
	Delete(ctx context.Context, userID, id string) error
}

type InvoicesHandler struct {
	svc InvoiceService
}

func NewInvoicesHandler(svc InvoiceService) *InvoicesHandler {
	return &InvoicesHandler{svc: svc}
}

func (h *InvoicesHandler) List(ctx *gin.Context) {
	p, ok := middlewares.PrincipalFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	res, err := h.svc.List(cctx, p)
	if err != nil {
		RespondInternal(ctx, "Failed to fetch invoices", err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (h *InvoicesHandler) ListOverdue(ctx *gin.Context) {
	userID, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.svc.ListOverdueCandidates(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Failed to fetch overdue invoices", err)
		return
	}

	ctx.JSON(http.StatusOK, items)
}

func (h *InvoicesHandler) Get(ctx *gin.Context) {
	userID, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	inv, err := h.svc.Get(cctx, userID, invoice.LookupID(ctx.Param("id")))
	if err != nil {
		h.respondLookupError(ctx, "Failed to fetch invoice", err)
		return
	}

	ctx.JSON(http.StatusOK, inv)
}

func (h *InvoicesHandler) Create(ctx *gin.Context) {
	userID, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	var req invoice.CreateInvoiceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	inv, err := h.svc.Create(cctx, userID, req)
	if err != nil {
		switch {
		case respondValidationOr(ctx, err):
		case errors.Is(err, invoice.ErrDuplicateInvoiceID):
			RespondError(ctx, http.StatusBadRequest, "duplicate_invoice_id", "Invoice ID already exists", nil)
		default:
			RespondInternal(ctx, "Failed to create invoice", err)
		}
		return
	}

	ctx.JSON(http.StatusCreated, inv)
}

func (h *InvoicesHandler) UpdateByID(ctx *gin.Context) {
	h.update(ctx, invoice.LookupID(ctx.Param("id")))
}

func (h *InvoicesHandler) UpdateByInvoiceID(ctx *gin.Context) {
	h.update(ctx, invoice.LookupInvoiceID(ctx.Param("invoiceId")))
}

func (h *InvoicesHandler) update(ctx *gin.Context, key invoice.Lookup) {
	userID, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	var req invoice.UpdateInvoiceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	inv, err := h.svc.Update(cctx, userID, key, req.Patch())
	if err != nil {
		if respondValidationOr(ctx, err) {
			return
		}
		h.respondLookupError(ctx, "Failed to update invoice", err)
		return
	}

	ctx.JSON(http.StatusOK, inv)
}

func (h *InvoicesHandler) Delete(ctx *gin.Context) {
	userID, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.svc.Delete(cctx, userID, ctx.Param("id")); err != nil {
		h.respondLookupError(ctx, "Failed to delete invoice", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Invoice deleted successfully"})
}

func (h *InvoicesHandler) respondLookupError(ctx *gin.Context, message string, err error) {
	if errors.Is(err, invoice.ErrNotFound) {
		RespondNotFound(ctx, "Invoice not found")
		return
	}
	RespondInternal(ctx, message, err)
}
