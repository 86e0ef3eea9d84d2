package persistence

import (
	"context"
	"errors"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoicing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)

// Create inserts the invoice together with its items in one transaction.
// Unique violations on the number or reservation id come back as
// shared.ErrConflict so the service layer can recompute a suggestion.
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(inv).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// FindByID finds an invoice by its ID with items and recipient preloaded
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	var inv invoicing.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Recipient").
		First(&inv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindByNumber finds an invoice by its unique number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, number string) (*invoicing.Invoice, error) {
	var inv invoicing.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Recipient").
		First(&inv, "number = ?", number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindByReservation finds the invoice created for a reservation request
func (r *GormInvoiceRepository) FindByReservation(ctx context.Context, reservationID string) (*invoicing.Invoice, error) {
	var inv invoicing.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Recipient").
		First(&inv, "reservation_request_id = ?", reservationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// HighestNumberWithPrefix returns the maximal invoice number with the
// given month prefix, or "" when the month has no invoices yet. Numbers
// share the zero-padded layout, so MAX() over the text column is the
// numeric maximum within a month.
func (r *GormInvoiceRepository) HighestNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var highest *string
	err := r.db.WithContext(ctx).
		Model(&invoicing.Invoice{}).
		Select("MAX(number)").
		Where("number LIKE ?", prefix+"%").
		Scan(&highest).Error
	if err != nil {
		return "", err
	}
	if highest == nil {
		return "", nil
	}
	return *highest, nil
}

// ExistsByNumber reports whether an invoice with the number exists
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&invoicing.Invoice{}).
		Where("number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// List returns invoices matching the filter, newest numbers first,
// together with the total count before pagination
func (r *GormInvoiceRepository) List(ctx context.Context, filter invoicing.ListFilter) ([]invoicing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&invoicing.Invoice{})

	if !filter.IncludeCanceled {
		query = query.Where("canceled_at IS NULL")
	}
	if filter.CategoryKey != "" {
		query = query.Where("category_key = ?", filter.CategoryKey)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "number")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var invoices []invoicing.Invoice
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Recipient").
		Order(orderBy + " " + orderDir).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Save persists changes to an existing invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	err := r.db.WithContext(ctx).Save(inv).Error
	if err != nil && isUniqueViolation(err) {
		return shared.ErrConflict
	}
	return err
}

// Delete removes the invoice; items go with it via the FK cascade
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&invoicing.Invoice{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505), directly or via GORM's translation.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
