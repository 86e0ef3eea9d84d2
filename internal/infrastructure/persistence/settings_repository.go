package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is one row of the key-value settings store. Values are JSON
// documents; the key namespaces them (bank, header, datev, smtp,
// mail_template).
type Setting struct {
	shared.BaseEntity
	Key   string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Value string `gorm:"type:jsonb;not null"`
}

// TableName returns the table name for GORM
func (Setting) TableName() string {
	return "settings"
}

// Well-known settings keys.
const (
	SettingKeyBank         = "bank"
	SettingKeyHeader       = "header"
	SettingKeyDatev        = "datev"
	SettingKeySMTP         = "smtp"
	SettingKeyMailTemplate = "mail_template"
)

// settingsCacheTTL bounds how stale a cached settings document may be.
const settingsCacheTTL = 30 * time.Second

type cachedValue struct {
	raw       string
	fetchedAt time.Time
}

// GormSettingsRepository implements invoicing.SettingsProvider on top
// of the settings table, with a small per-key TTL cache so the
// renderer does not hit the database for every document.
type GormSettingsRepository struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]cachedValue
	ttl   time.Duration
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{
		db:    db,
		cache: make(map[string]cachedValue),
		ttl:   settingsCacheTTL,
	}
}

var _ invoicing.SettingsProvider = (*GormSettingsRepository)(nil)

// BankSettings returns the stored bank settings or nil when unset
func (r *GormSettingsRepository) BankSettings(ctx context.Context) (*invoicing.BankSettings, error) {
	return load[invoicing.BankSettings](r, ctx, SettingKeyBank)
}

// HeaderSettings returns the stored letterhead settings or nil when unset
func (r *GormSettingsRepository) HeaderSettings(ctx context.Context) (*invoicing.HeaderSettings, error) {
	return load[invoicing.HeaderSettings](r, ctx, SettingKeyHeader)
}

// DatevSettings returns the stored DATEV settings or nil when unset
func (r *GormSettingsRepository) DatevSettings(ctx context.Context) (*invoicing.DatevSettings, error) {
	return load[invoicing.DatevSettings](r, ctx, SettingKeyDatev)
}

// GlobalSMTPAccount returns the database-level SMTP account or nil when unset
func (r *GormSettingsRepository) GlobalSMTPAccount(ctx context.Context) (*invoicing.SMTPAccount, error) {
	return load[invoicing.SMTPAccount](r, ctx, SettingKeySMTP)
}

// GlobalMailTemplate returns the database-level mail template or nil when unset
func (r *GormSettingsRepository) GlobalMailTemplate(ctx context.Context) (*invoicing.MailTemplate, error) {
	return load[invoicing.MailTemplate](r, ctx, SettingKeyMailTemplate)
}

// Put stores the JSON serialization of value under key and drops the
// cached copy so the next read sees the new document.
func (r *GormSettingsRepository) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}

	setting := Setting{
		BaseEntity: shared.NewBaseEntity(),
		Key:        key,
		Value:      string(raw),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return nil
}

// Raw returns the raw JSON document for key, or shared.ErrNotFound.
func (r *GormSettingsRepository) Raw(ctx context.Context, key string) (string, error) {
	if raw, ok := r.cached(key); ok {
		return raw, nil
	}

	var setting Setting
	if err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", shared.ErrNotFound
		}
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = cachedValue{raw: setting.Value, fetchedAt: time.Now()}
	r.mu.Unlock()
	return setting.Value, nil
}

func (r *GormSettingsRepository) cached(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cache[key]
	if !ok || time.Since(c.fetchedAt) > r.ttl {
		return "", false
	}
	return c.raw, true
}

// load fetches and unmarshals one settings document. A missing row is
// not an error; callers get nil and apply their own fallbacks.
func load[T any](r *GormSettingsRepository, ctx context.Context, key string) (*T, error) {
	raw, err := r.Raw(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("unmarshal setting %s: %w", key, err)
	}
	return &v, nil
}
