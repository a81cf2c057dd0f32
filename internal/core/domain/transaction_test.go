package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransaction_Valid(t *testing.T) {
	payload := []byte(`{
		"transaction_id": "RT-FINAL-1700000000-000",
		"product_id": "P005",
		"customer_id": "CUST1234",
		"quantity": 3,
		"unit_price": 19.99,
		"timestamp": "2024-05-01T10:15:30.123456",
		"store_location": "Miami-Store-1",
		"payment_method": "credit",
		"total_amount": 59.970000000000006
	}`)

	tx, err := DecodeTransaction(payload)
	require.NoError(t, err)

	assert.Equal(t, "RT-FINAL-1700000000-000", tx.TransactionID)
	assert.Equal(t, Key{ProductID: "P005", StoreLocation: "Miami-Store-1"}, tx.Key())
	assert.Equal(t, 3, tx.Quantity)
	assert.Equal(t, PaymentCredit, tx.PaymentMethod)

	at, err := tx.OccurredAt()
	require.NoError(t, err)
	assert.Equal(t, 2024, at.Year())
}

func TestDecodeTransaction_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"transaction_id":`},
		{"missing id", `{"product_id":"P1","store_location":"S1","quantity":1,"unit_price":1,"total_amount":1}`},
		{"zero quantity", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":0,"unit_price":1,"total_amount":0}`},
		{"negative quantity", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":-2,"unit_price":1,"total_amount":-2}`},
		{"missing money fields", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":3}`},
		{"missing total", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":3,"unit_price":0}`},
		{"null unit price", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":3,"unit_price":null,"total_amount":0}`},
		{"total off by fractions of a cent", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":3,"unit_price":19.99,"total_amount":59.974}`},
		{"total mismatch", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":2,"unit_price":10,"total_amount":25}`},
		{"bad payment method", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":1,"unit_price":1,"total_amount":1,"payment_method":"barter"}`},
		{"bad timestamp", `{"transaction_id":"t","product_id":"P1","store_location":"S1","quantity":1,"unit_price":1,"total_amount":1,"timestamp":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransaction([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedTransaction), "got %v", err)
		})
	}
}

func TestNewTransaction_DerivesTotal(t *testing.T) {
	tx := NewTransaction("tx-1", "P004", "Miami-Store-1", 2, decimal.RequireFromString("15.25"), time.Now())

	assert.True(t, tx.TotalAmount.Equal(decimal.RequireFromString("30.50")))
	require.NoError(t, tx.Validate())

	payload, err := tx.Encode()
	require.NoError(t, err)
	decoded, err := DecodeTransaction(payload)
	require.NoError(t, err)
	assert.Equal(t, tx.TransactionID, decoded.TransactionID)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "transport", ErrorKind(NewTransportError("xread", errors.New("conn reset"))))
	assert.Equal(t, "not_found", ErrorKind(ErrRecordNotFound))
	assert.True(t, IsRetryable(NewTransportError("get", errors.New("boom"))))
	assert.True(t, IsRetryable(ErrVersionConflict))
	assert.False(t, IsRetryable(ErrMalformedTransaction))
	assert.Nil(t, NewTransportError("noop", nil))
}
