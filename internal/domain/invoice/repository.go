package invoice

import (
	"context"
	"time"

	"github.com/dagdev/vpnbill/internal/types"
)

// Repository is the durable invoice store. Every mutation is a single
// conditional statement whose predicate inspects the current status, and the
// returned bool reports whether this call changed the row.
type Repository interface {
	// Create inserts the invoice or ignores it when the id already exists
	Create(ctx context.Context, inv *Invoice) (bool, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)

	// CompleteOrSkip flips pending to paid. Exactly one concurrent caller gets true.
	CompleteOrSkip(ctx context.Context, id string) (bool, error)
	// MarkPaidPending records a failed provisioning attempt for a paid or paid_pending invoice
	MarkPaidPending(ctx context.Context, id string, lastError string) (bool, error)
	// MarkGranted records that the panel grant for a paid or paid_pending invoice
	// succeeded. Only the first call returns true.
	MarkGranted(ctx context.Context, id string) (bool, error)
	// MarkCompleted stores the link for a paid or paid_pending invoice
	MarkCompleted(ctx context.Context, id string, subscriptionLink string) (bool, error)
	// MarkFailed terminates any non-terminal invoice
	MarkFailed(ctx context.Context, id string, lastError string) (bool, error)
	// ClaimForRetry bumps updated_at only if status and updated_at still match what the caller read
	ClaimForRetry(ctx context.Context, id string, status types.InvoiceStatus, updatedAt time.Time) (bool, error)

	// ListPaidPending returns paid and paid_pending invoices, oldest updated_at first
	ListPaidPending(ctx context.Context) ([]*Invoice, error)
	ListPendingIDs(ctx context.Context) ([]string, error)
	WasProcessed(ctx context.Context, id string) (bool, error)
	CountSuccessfulPayments(ctx context.Context, payerID int64) (int, error)
	// ListActivePayers returns payers holding at least one completed invoice
	ListActivePayers(ctx context.Context) ([]int64, error)
	GetStats(ctx context.Context) (*Stats, error)
}
