package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invoiceColumns = `id::text, invoice_id, amount, due_date, recipient, status, user_id::text, created_at, updated_at`

type InvoicesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewInvoicesRepo(pool *pgxpool.Pool, prom *observability.Prom) *InvoicesRepo {
	return &InvoicesRepo{pool: pool, prom: prom}
}

func (r *InvoicesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *InvoicesRepo) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	var out invoice.Invoice

	err := r.observe("invoices.create", func() error {
		return scanInvoice(r.pool.QueryRow(ctx,
			`INSERT INTO invoices (invoice_id, amount, due_date, recipient, status, user_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+invoiceColumns,
			inv.InvoiceID, inv.Amount, inv.DueDate, inv.Recipient, string(inv.Status), inv.UserID, inv.CreatedAt, inv.UpdatedAt,
		), &out)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceID
		}
		return invoice.Invoice{}, err
	}

	return out, nil
}

func (r *InvoicesRepo) ListByUser(ctx context.Context, userID string) ([]invoice.Invoice, error) {
	if !validID(userID) {
		return []invoice.Invoice{}, nil
	}

	return r.list(ctx, "invoices.list_by_user",
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY created_at ASC, id ASC`,
		userID,
	)
}

func (r *InvoicesRepo) ListOverdueCandidates(ctx context.Context, userID string, now time.Time) ([]invoice.Invoice, error) {
	if !validID(userID) {
		return []invoice.Invoice{}, nil
	}

	return r.list(ctx, "invoices.list_overdue_candidates",
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE user_id = $1 AND status = $2 AND due_date <= $3
		 ORDER BY due_date ASC, id ASC`,
		userID, string(invoice.StatusDue), now,
	)
}

func (r *InvoicesRepo) Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error) {
	cond, ok := lookupCondition(key)
	if !ok || !validID(userID) {
		return invoice.Invoice{}, invoice.ErrNotFound
	}

	var inv invoice.Invoice
	err := r.observe("invoices.get", func() error {
		return scanInvoice(r.pool.QueryRow(ctx,
			`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND `+cond,
			userID, key.Value,
		), &inv)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, err
	}

	return inv, nil
}

// Update applies only the fields present in the patch in a single statement.
func (r *InvoicesRepo) Update(ctx context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error) {
	cond, ok := lookupCondition(key)
	if !ok || !validID(userID) {
		return invoice.Invoice{}, invoice.ErrNotFound
	}

	sets := []string{"updated_at = now()"}
	args := []any{userID, key.Value}
	argsPosition := 3

	add := func(column string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argsPosition))
		args = append(args, v)
		argsPosition++
	}

	if patch.Amount != nil {
		add("amount", *patch.Amount)
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.Recipient != nil {
		add("recipient", *patch.Recipient)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}

	query := `UPDATE invoices SET ` + strings.Join(sets, ", ") +
		` WHERE user_id = $1 AND ` + cond + ` RETURNING ` + invoiceColumns

	var inv invoice.Invoice
	err := r.observe("invoices.update", func() error {
		return scanInvoice(r.pool.QueryRow(ctx, query, args...), &inv)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, err
	}

	return inv, nil
}

func (r *InvoicesRepo) SetStatus(ctx context.Context, userID, id string, status invoice.Status) error {
	if !validID(id) || !validID(userID) {
		return invoice.ErrNotFound
	}

	return r.execOne(ctx, "invoices.set_status",
		`UPDATE invoices SET status = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, string(status),
	)
}

func (r *InvoicesRepo) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) || !validID(userID) {
		return invoice.ErrNotFound
	}

	return r.execOne(ctx, "invoices.delete",
		`DELETE FROM invoices WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
}

func (r *InvoicesRepo) execOne(ctx context.Context, op, query string, args ...any) error {
	var affected int64

	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	if affected == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func (r *InvoicesRepo) list(ctx context.Context, op, query string, args ...any) ([]invoice.Invoice, error) {
	out := make([]invoice.Invoice, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var inv invoice.Invoice
			if err := scanInvoice(rows, &inv); err != nil {
				return err
			}
			out = append(out, inv)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func lookupCondition(key invoice.Lookup) (string, bool) {
	if key.Kind == invoice.ByInvoiceID {
		return "invoice_id = $2", true
	}
	if !validID(key.Value) {
		return "", false
	}
	return "id = $2", true
}

func scanInvoice(row pgx.Row, inv *invoice.Invoice) error {
	var status string

	err := row.Scan(
		&inv.ID,
		&inv.InvoiceID,
		&inv.Amount,
		&inv.DueDate,
		&inv.Recipient,
		&status,
		&inv.UserID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return err
	}

	inv.Status = invoice.Status(status)
	return nil
}
