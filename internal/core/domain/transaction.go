package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentCash   PaymentMethod = "cash"
	PaymentMobile PaymentMethod = "mobile"
)

// timestampLayouts lists accepted producer formats; the second is ISO-8601 without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Transaction is a single sale event read from the transaction log.
type Transaction struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	ProductID     string          `json:"product_id" validate:"required"`
	StoreLocation string          `json:"store_location" validate:"required"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CustomerID    string          `json:"customer_id"`
	Timestamp     string          `json:"timestamp"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"omitempty,oneof=credit debit cash mobile"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// totalTolerance absorbs float noise from producers that compute totals in binary floating point.
var totalTolerance = decimal.New(1, -3)

// NewTransaction builds a transaction with total_amount derived from quantity and unit price.
func NewTransaction(id, productID, storeLocation string, quantity int, unitPrice decimal.Decimal, at time.Time) Transaction {
	return Transaction{
		TransactionID: id,
		ProductID:     productID,
		StoreLocation: storeLocation,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		TotalAmount:   decimal.NewFromInt(int64(quantity)).Mul(unitPrice),
		Timestamp:     at.Format(time.RFC3339Nano),
	}
}

func (t Transaction) Key() Key {
	return Key{ProductID: t.ProductID, StoreLocation: t.StoreLocation}
}

// Validate checks required fields and that total_amount equals quantity * unit_price within totalTolerance.
func (t Transaction) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields %s", ErrMalformedTransaction, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if t.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit_price must not be negative", ErrMalformedTransaction)
	}
	expected := decimal.NewFromInt(int64(t.Quantity)).Mul(t.UnitPrice)
	if t.TotalAmount.Sub(expected).Abs().GreaterThan(totalTolerance) {
		return fmt.Errorf("%w: total_amount %s does not match quantity * unit_price %s",
			ErrMalformedTransaction, t.TotalAmount.String(), expected.String())
	}
	if t.Timestamp != "" {
		if _, err := t.OccurredAt(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
		}
	}
	return nil
}

// OccurredAt parses the producer timestamp.
func (t Transaction) OccurredAt() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, t.Timestamp); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", t.Timestamp)
}

func (t Transaction) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTransaction parses and validates a log payload.
func DecodeTransaction(payload []byte) (Transaction, error) {
	var wire struct {
		Transaction
		UnitPrice   *decimal.Decimal `json:"unit_price"`
		TotalAmount *decimal.Decimal `json:"total_amount"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if wire.UnitPrice == nil || wire.TotalAmount == nil {
		return Transaction{}, fmt.Errorf("%w: unit_price and total_amount are required", ErrMalformedTransaction)
	}
	t := wire.Transaction
	t.UnitPrice, t.TotalAmount = *wire.UnitPrice, *wire.TotalAmount
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
