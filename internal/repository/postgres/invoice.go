package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dagdev/vpnbill/internal/domain/invoice"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/postgres"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const invoiceColumns = `invoice_id, payer_id, tariff_code, amount_minor, amount, currency,
		status, attempts, last_error, subscription_link, granted_at, created_at, updated_at`

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewInvoiceRepository creates the postgres-backed invoice store
func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	inv.Status = types.InvoiceStatusPending
	if err := inv.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO invoices (
			invoice_id, payer_id, tariff_code, amount_minor, amount, currency,
			status, attempts, created_at, updated_at
		) VALUES (
			:invoice_id, :payer_id, :tariff_code, :amount_minor, :amount, :currency,
			'pending', 0, NOW(), NOW()
		)
		ON CONFLICT (invoice_id) DO NOTHING`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"payer_id", inv.PayerID,
		"tariff_code", inv.TariffCode,
	)

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv)
	if err != nil {
		return false, ierr.WithError(err).
			WithHintf("Failed to create invoice %s", inv.ID).
			Mark(ierr.ErrDatabase)
	}
	return r.changed(result, inv.ID)
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1`

	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, invoice.NotFound(id)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to load invoice %s", id).
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []interface{}
	)
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(lo.Map(filter.Statuses, func(s types.InvoiceStatus, _ int) string {
			return s.String()
		})))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.PayerID != 0 {
		args = append(args, filter.PayerID)
		where = append(where, fmt.Sprintf("payer_id = $%d", len(args)))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.GetLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) CompleteOrSkip(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE invoices
		SET status = 'paid', updated_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status = 'pending'`

	return r.transition(ctx, "complete_or_skip", query, map[string]interface{}{
		"invoice_id": id,
	})
}

func (r *invoiceRepository) MarkPaidPending(ctx context.Context, id string, lastError string) (bool, error) {
	query := `
		UPDATE invoices
		SET
			status = 'paid_pending',
			attempts = attempts + 1,
			last_error = :last_error,
			updated_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status IN ('paid', 'paid_pending')`

	return r.transition(ctx, "mark_paid_pending", query, map[string]interface{}{
		"invoice_id": id,
		"last_error": lastError,
	})
}

func (r *invoiceRepository) MarkGranted(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE invoices
		SET granted_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status IN ('paid', 'paid_pending')
		AND granted_at IS NULL`

	return r.transition(ctx, "mark_granted", query, map[string]interface{}{
		"invoice_id": id,
	})
}

func (r *invoiceRepository) MarkCompleted(ctx context.Context, id string, subscriptionLink string) (bool, error) {
	query := `
		UPDATE invoices
		SET
			status = 'completed',
			subscription_link = :subscription_link,
			updated_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status IN ('paid', 'paid_pending')`

	return r.transition(ctx, "mark_completed", query, map[string]interface{}{
		"invoice_id":        id,
		"subscription_link": subscriptionLink,
	})
}

func (r *invoiceRepository) MarkFailed(ctx context.Context, id string, lastError string) (bool, error) {
	query := `
		UPDATE invoices
		SET
			status = 'failed',
			last_error = :last_error,
			updated_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status NOT IN ('completed', 'failed')`

	return r.transition(ctx, "mark_failed", query, map[string]interface{}{
		"invoice_id": id,
		"last_error": lastError,
	})
}

func (r *invoiceRepository) ClaimForRetry(ctx context.Context, id string, status types.InvoiceStatus, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE invoices
		SET updated_at = NOW()
		WHERE invoice_id = :invoice_id
		AND status = :status
		AND updated_at = :updated_at`

	return r.transition(ctx, "claim_for_retry", query, map[string]interface{}{
		"invoice_id": id,
		"status":     string(status),
		"updated_at": updatedAt,
	})
}

func (r *invoiceRepository) ListPaidPending(ctx context.Context) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status IN ('paid', 'paid_pending')
		ORDER BY updated_at ASC`

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices awaiting provisioning").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) ListPendingIDs(ctx context.Context) ([]string, error) {
	query := `SELECT invoice_id FROM invoices WHERE status = 'paid_pending' ORDER BY updated_at ASC`

	var ids []string
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &ids, query); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list paid_pending invoice ids").
			Mark(ierr.ErrDatabase)
	}
	return ids, nil
}

func (r *invoiceRepository) WasProcessed(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM invoices
		WHERE invoice_id = $1
		AND status IN ('paid', 'paid_pending', 'completed')
	)`

	var processed bool
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &processed, query, id); err != nil {
		return false, ierr.WithError(err).
			WithHintf("Failed to check invoice %s", id).
			Mark(ierr.ErrDatabase)
	}
	return processed, nil
}

func (r *invoiceRepository) CountSuccessfulPayments(ctx context.Context, payerID int64) (int, error) {
	query := `SELECT COUNT(*) FROM invoices
		WHERE payer_id = $1
		AND status IN ('paid', 'paid_pending', 'completed')`

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, payerID); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count payments").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *invoiceRepository) ListActivePayers(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT payer_id FROM invoices WHERE status = 'completed' ORDER BY payer_id`

	var payers []int64
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &payers, query); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payers with active access").
			Mark(ierr.ErrDatabase)
	}
	return payers, nil
}

func (r *invoiceRepository) GetStats(ctx context.Context) (*invoice.Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('paid', 'paid_pending', 'completed')) AS paid_invoices,
			COALESCE(SUM(amount) FILTER (WHERE status IN ('paid', 'paid_pending', 'completed')), 0) AS paid_amount,
			COUNT(*) FILTER (WHERE status = 'paid_pending') AS pending_count,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_count
		FROM invoices`

	var stats invoice.Stats
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &stats, query); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to aggregate invoice statistics").
			Mark(ierr.ErrDatabase)
	}
	return &stats, nil
}

func (r *invoiceRepository) transition(ctx context.Context, op, query string, params map[string]interface{}) (bool, error) {
	id, _ := params["invoice_id"].(string)
	r.logger.Debugw("invoice transition",
		"operation", op,
		"invoice_id", id,
	)

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, params)
	if err != nil {
		return false, ierr.WithError(err).
			WithHintf("Failed to apply %s to invoice %s", op, id).
			Mark(ierr.ErrDatabase)
	}
	return r.changed(result, id)
}

// changed reports whether the statement touched exactly one row. More than one
// row for a primary key predicate means the store is inconsistent.
func (r *invoiceRepository) changed(result sql.Result, id string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if rows > 1 {
		return false, ierr.NewErrorf("invoice %s: %d rows affected", id, rows).
			WithHint("Invoice store returned more than one row for a single invoice").
			Mark(ierr.ErrStoreConflict)
	}
	return rows == 1, nil
}
