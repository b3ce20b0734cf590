package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harmancioglue/chatpay-engine/internal/receipt"
)

func newTestIndex(t *testing.T) *SQLiteReceiptIndex {
	t.Helper()
	index, err := NewSQLiteReceiptIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

func TestReceiptIndex_SaveAndGet(t *testing.T) {
	index := newTestIndex(t)

	record := receipt.Record{
		PaymentID:    uuid.New(),
		Number:       "RCP-1709300000-AB12CD",
		ArtifactPath: "/tmp/receipts/RCP-1709300000-AB12CD.txt",
		CreatedAt:    time.Now().Truncate(time.Second),
	}
	require.NoError(t, index.Save(record))

	got, err := index.GetByPaymentID(record.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, record.PaymentID, got.PaymentID)
	require.Equal(t, record.Number, got.Number)
	require.Equal(t, record.ArtifactPath, got.ArtifactPath)
}

func TestReceiptIndex_MissingPaymentReturnsNil(t *testing.T) {
	index := newTestIndex(t)

	got, err := index.GetByPaymentID(uuid.New())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestReceiptIndex_SaveIsIdempotent(t *testing.T) {
	index := newTestIndex(t)
	paymentID := uuid.New()

	first := receipt.Record{
		PaymentID:    paymentID,
		Number:       "RCP-1-AAAAAA",
		ArtifactPath: "/tmp/a.txt",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, index.Save(first))

	// A duplicate job run must not overwrite the original association.
	second := first
	second.Number = "RCP-2-BBBBBB"
	require.NoError(t, index.Save(second))

	got, err := index.GetByPaymentID(paymentID)
	require.NoError(t, err)
	require.Equal(t, "RCP-1-AAAAAA", got.Number)
}
