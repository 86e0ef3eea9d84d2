package persistence

import (
	"context"
	"errors"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormCategoryRepository implements invoicing.CategoryRepository using GORM
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

var _ invoicing.CategoryRepository = (*GormCategoryRepository)(nil)

// FindByKey finds a category by its unique key
func (r *GormCategoryRepository) FindByKey(ctx context.Context, key string) (*invoicing.Category, error) {
	var cat invoicing.Category
	if err := r.db.WithContext(ctx).First(&cat, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cat, nil
}

// FindAll returns all categories ordered by key
func (r *GormCategoryRepository) FindAll(ctx context.Context) ([]invoicing.Category, error) {
	var cats []invoicing.Category
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

// Save inserts or updates a category
func (r *GormCategoryRepository) Save(ctx context.Context, c *invoicing.Category) error {
	err := r.db.WithContext(ctx).Save(c).Error
	if err != nil && isUniqueViolation(err) {
		return shared.ErrAlreadyExists
	}
	return err
}
