package invoicing

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows invoice listings. Canceled invoices are excluded
// unless explicitly requested.
type ListFilter struct {
	IncludeCanceled bool
	CategoryKey     string
	Page            int
	PageSize        int
	// OrderBy/OrderDir sort the listing; invalid values fall back to
	// number DESC.
	OrderBy  string
	OrderDir string
}

// InvoiceRepository persists invoice aggregates.
type InvoiceRepository interface {
	// Create inserts the invoice and its items in one transaction.
	// A duplicate number or reservation id surfaces as ErrConflict.
	Create(ctx context.Context, inv *Invoice) error
	// FindByID loads the invoice with items and recipient.
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	FindByReservation(ctx context.Context, reservationID string) (*Invoice, error)
	// HighestNumberWithPrefix returns the lexicographically maximal
	// invoice number with the given YYYYMM prefix, or "" if none.
	HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error)
	Save(ctx context.Context, inv *Invoice) error
	// Delete removes the row and its items.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecipientRepository deduplicates address snapshots.
type RecipientRepository interface {
	// FindOrCreate returns the existing row matching the identity
	// fields (name, street, zip, city) or inserts the given one.
	FindOrCreate(ctx context.Context, r *Recipient) (*Recipient, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Recipient, error)
}

// CategoryRepository provides category lookups for the renderer and
// the export chain.
type CategoryRepository interface {
	FindByKey(ctx context.Context, key string) (*Category, error)
	FindAll(ctx context.Context) ([]Category, error)
	Save(ctx context.Context, c *Category) error
}
