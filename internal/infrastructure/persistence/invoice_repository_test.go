package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDB creates a GORM connection backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newMockInvoiceRepository(t *testing.T) (*GormInvoiceRepository, sqlmock.Sqlmock, *sql.DB) {
	gormDB, mock, mockDB := newMockDB(t)
	return NewGormInvoiceRepository(gormDB), mock, mockDB
}

func TestGormInvoiceRepository_FindByID(t *testing.T) {
	t.Run("finds existing invoice with items", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()
		mock.MatchExpectationsInOrder(false)

		invoiceID := uuid.New()
		recipientID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(invoiceID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "number", "recipient_id", "gross_total", "date"}).
				AddRow(invoiceID, "202608001", recipientID, 58.30, time.Now()))

		mock.ExpectQuery(`SELECT \* FROM "invoice_items" WHERE .*"invoice_items"\."invoice_id" = \$1.*`).
			WithArgs(invoiceID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "position", "description", "quantity"}).
				AddRow(uuid.New(), invoiceID, 1, "Beratung", 2.0))

		mock.ExpectQuery(`SELECT \* FROM "recipients" WHERE "recipients"\."id" = \$1`).
			WithArgs(recipientID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(recipientID, "Erika Mustermann"))

		inv, err := repo.FindByID(context.Background(), invoiceID)

		require.NoError(t, err)
		assert.Equal(t, "202608001", inv.Number)
		require.Len(t, inv.Items, 1)
		require.NotNil(t, inv.Recipient)
		assert.Equal(t, "Erika Mustermann", inv.Recipient.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing row to ErrNotFound", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		invoiceID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(invoiceID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		inv, err := repo.FindByID(context.Background(), invoiceID)

		assert.Nil(t, inv)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInvoiceRepository_HighestNumberWithPrefix(t *testing.T) {
	t.Run("returns the maximum number for the month", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT MAX\(number\) FROM "invoices" WHERE number LIKE \$1`).
			WithArgs("202608%").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("202608041"))

		highest, err := repo.HighestNumberWithPrefix(context.Background(), "202608")

		require.NoError(t, err)
		assert.Equal(t, "202608041", highest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty string for a fresh month", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT MAX\(number\) FROM "invoices" WHERE number LIKE \$1`).
			WithArgs("202609%").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

		highest, err := repo.HighestNumberWithPrefix(context.Background(), "202609")

		require.NoError(t, err)
		assert.Empty(t, highest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInvoiceRepository_ExistsByNumber(t *testing.T) {
	repo, mock, mockDB := newMockInvoiceRepository(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "invoices" WHERE number = \$1`).
		WithArgs("202608001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsByNumber(context.Background(), "202608001")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvoiceRepository_Create(t *testing.T) {
	t.Run("unique violation maps to ErrConflict", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		inv, err := invoicing.NewInvoice("202608001", time.Now(), uuid.New(), "", false, "", []invoicing.LineItem{
			{Description: "Beratung", Quantity: 1, UnitPriceGross: 119, VATKey: invoicing.VATKeyStandard},
		})
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "invoices"`).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err = repo.Create(context.Background(), inv)

		assert.ErrorIs(t, err, shared.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInvoiceRepository_List(t *testing.T) {
	t.Run("excludes canceled invoices by default", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()
		mock.MatchExpectationsInOrder(false)

		mock.ExpectQuery(`SELECT count\(\*\) FROM "invoices" WHERE canceled_at IS NULL`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE canceled_at IS NULL ORDER BY number DESC`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "number"}))

		invoices, total, err := repo.List(context.Background(), invoicing.ListFilter{})

		require.NoError(t, err)
		assert.Empty(t, invoices)
		assert.Zero(t, total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(gorm.ErrRecordNotFound))
}
