package persistence

import (
	"context"
	"errors"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRecipientRepository implements invoicing.RecipientRepository using GORM
type GormRecipientRepository struct {
	db *gorm.DB
}

// NewGormRecipientRepository creates a new GormRecipientRepository
func NewGormRecipientRepository(db *gorm.DB) *GormRecipientRepository {
	return &GormRecipientRepository{db: db}
}

var _ invoicing.RecipientRepository = (*GormRecipientRepository)(nil)

// FindOrCreate returns the recipient matching the identity fields,
// inserting the given one if no row exists yet. A concurrent insert of
// the same identity loses the unique-index race and falls back to the
// winner's row.
func (r *GormRecipientRepository) FindOrCreate(ctx context.Context, rec *invoicing.Recipient) (*invoicing.Recipient, error) {
	existing, err := r.findByIdentity(ctx, rec)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return r.findByIdentity(ctx, rec)
		}
		return nil, err
	}
	return rec, nil
}

// FindByID finds a recipient by its ID
func (r *GormRecipientRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Recipient, error) {
	var rec invoicing.Recipient
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *GormRecipientRepository) findByIdentity(ctx context.Context, rec *invoicing.Recipient) (*invoicing.Recipient, error) {
	var found invoicing.Recipient
	err := r.db.WithContext(ctx).
		Where("name = ? AND street = ? AND zip = ? AND city = ?", rec.Name, rec.Street, rec.Zip, rec.City).
		First(&found).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &found, nil
}
