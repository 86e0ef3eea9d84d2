package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faktura/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

func createRequest() CreateInvoiceRequest {
	return CreateInvoiceRequest{
		Date: testDate,
		Recipient: RecipientRequest{
			Name:   "Erika Mustermann",
			Street: "Beispielweg 1",
			Zip:    "10115",
			City:   "Berlin",
			Email:  "erika@example.com",
		},
		Items: []LineItemRequest{
			{Description: "Beratung", Quantity: 2, UnitPriceGross: 23.80, VATKey: 1},
			{Description: "Fachbuch", Quantity: 1, UnitPriceGross: 10.70, VATKey: 2},
		},
	}
}

func newTestInvoiceService() (*InvoiceService, *fakeInvoiceRepo, *fakeNotifier) {
	invoices := newFakeInvoiceRepo()
	notifier := &fakeNotifier{}
	svc := NewInvoiceService(invoices, newFakeRecipientRepo(), nil, notifier, nil).
		WithClock(func() time.Time { return testDate })
	return svc, invoices, notifier
}

func TestInvoiceService_Create(t *testing.T) {
	t.Run("allocates the first number of the month", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()

		resp, err := svc.Create(context.Background(), createRequest())

		require.NoError(t, err)
		assert.Equal(t, "202608001", resp.Number)
		assert.InDelta(t, 58.30, resp.GrossTotal, 0.01)
		assert.Equal(t, "NOT_SENT", resp.DatevStatus)
		require.NotNil(t, resp.Recipient)
		assert.Equal(t, "Erika Mustermann", resp.Recipient.Name)
	})

	t.Run("numbers increment per month", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()

		first, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)
		second, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		assert.Equal(t, "202608001", first.Number)
		assert.Equal(t, "202608002", second.Number)
	})

	t.Run("manual number is honored", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		req := createRequest()
		req.Number = "202608050"

		resp, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "202608050", resp.Number)

		// Allocation continues after the manual number.
		next, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)
		assert.Equal(t, "202608051", next.Number)
	})

	t.Run("taken manual number yields a conflict with suggestion", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		_, err := svc.Create(context.Background(), createRequest()) // 202608001
		require.NoError(t, err)

		req := createRequest()
		req.Number = "202608001"
		_, err = svc.Create(context.Background(), req)

		var conflict *NumberConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "202608001", conflict.Requested)
		assert.Equal(t, "202608002", conflict.Suggestion)
	})

	t.Run("lost insert race yields a conflict with suggestion", func(t *testing.T) {
		svc, invoices, _ := newTestInvoiceService()
		invoices.failNext = shared.ErrConflict

		_, err := svc.Create(context.Background(), createRequest())

		var conflict *NumberConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "202608001", conflict.Requested)
	})

	t.Run("malformed manual number is rejected", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		req := createRequest()
		req.Number = "RE-2026-1"

		_, err := svc.Create(context.Background(), req)
		assert.Error(t, err)
		var conflict *NumberConflictError
		assert.False(t, errors.As(err, &conflict))
	})

	t.Run("reservation requests are idempotent", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		req := createRequest()
		req.ReservationRequestID = "res-42"

		first, err := svc.Create(context.Background(), req)
		require.NoError(t, err)

		second, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Number, second.Number)
	})

	t.Run("identical recipients share one row", func(t *testing.T) {
		invoices := newFakeInvoiceRepo()
		recipients := newFakeRecipientRepo()
		svc := NewInvoiceService(invoices, recipients, nil, nil, nil).
			WithClock(func() time.Time { return testDate })

		first, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)
		second, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		assert.Equal(t, first.Recipient.ID, second.Recipient.ID)
	})
}

func TestInvoiceService_NextNumber(t *testing.T) {
	svc, _, _ := newTestInvoiceService()

	preview, err := svc.NextNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "202608001", preview.Number)
	assert.Equal(t, "202608", preview.Prefix)

	// Preview does not consume the number.
	again, err := svc.NextNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, preview.Number, again.Number)
}

func TestInvoiceService_StatusTransitions(t *testing.T) {
	t.Run("paid without sent is allowed", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		resp, err := svc.MarkPaid(context.Background(), created.ID)
		require.NoError(t, err)
		assert.NotNil(t, resp.PaidAt)
		assert.False(t, resp.Sent)
	})

	t.Run("overdue set and cleared", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		resp, err := svc.MarkOverdue(context.Background(), created.ID)
		require.NoError(t, err)
		assert.NotNil(t, resp.OverdueSince)

		resp, err = svc.ClearOverdue(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Nil(t, resp.OverdueSince)
	})

	t.Run("transitions on canceled invoices are rejected", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), created.ID, "Kundenwunsch")
		require.NoError(t, err)

		_, err = svc.MarkPaid(context.Background(), created.ID)
		assert.Error(t, err)
	})

	t.Run("status changes notify the reservation system", func(t *testing.T) {
		svc, _, notifier := newTestInvoiceService()
		req := createRequest()
		req.ReservationRequestID = "res-7"
		created, err := svc.Create(context.Background(), req)
		require.NoError(t, err)

		_, err = svc.MarkPaid(context.Background(), created.ID)
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, "res-7/202608001/PAID", notifier.last())
	})

	t.Run("invoices without reservation do not notify", func(t *testing.T) {
		svc, _, notifier := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		_, err = svc.MarkSent(context.Background(), created.ID)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, notifier.count())
	})
}

func TestInvoiceService_Delete(t *testing.T) {
	t.Run("unsent invoices can be deleted", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)

		require.NoError(t, svc.Delete(context.Background(), created.ID))

		_, err = svc.GetByID(context.Background(), created.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("sent invoices can be deleted too", func(t *testing.T) {
		svc, _, _ := newTestInvoiceService()
		created, err := svc.Create(context.Background(), createRequest())
		require.NoError(t, err)
		_, err = svc.MarkSent(context.Background(), created.ID)
		require.NoError(t, err)

		require.NoError(t, svc.Delete(context.Background(), created.ID))

		_, err = svc.GetByID(context.Background(), created.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestInvoiceService_List(t *testing.T) {
	svc, _, _ := newTestInvoiceService()

	first, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), first.ID, "Storno")
	require.NoError(t, err)

	t.Run("default hides canceled", func(t *testing.T) {
		list, total, err := svc.List(context.Background(), ListInvoicesQuery{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, list, 1)
		assert.Equal(t, "202608002", list[0].Number)
	})

	t.Run("include_canceled shows everything", func(t *testing.T) {
		list, total, err := svc.List(context.Background(), ListInvoicesQuery{IncludeCanceled: true})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, list, 2)
	})
}
