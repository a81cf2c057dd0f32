package domain

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies a single inventory record.
type Key struct {
	ProductID     string
	StoreLocation string
}

func (k Key) String() string {
	return k.ProductID + "_" + k.StoreLocation
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.ProductID) == "" || strings.TrimSpace(k.StoreLocation) == "" {
		return fmt.Errorf("%w: product_id and store_location are required", ErrMalformedTransaction)
	}
	return nil
}

type InventoryRecord struct {
	ProductID         string    `json:"product_id"`
	StoreLocation     string    `json:"store_location"`
	CurrentStock      int       `json:"current_stock"`
	ReorderPoint      int       `json:"reorder_point"`
	MaxCapacity       int       `json:"max_capacity"`
	SupplierID        string    `json:"supplier_id"`
	LastTransactionID string    `json:"last_transaction_id,omitempty"`
	LastUpdated       time.Time `json:"last_updated,omitempty"`
	Version           int64     `json:"version"` // optimistic locking
}

func (r InventoryRecord) Key() Key {
	return Key{ProductID: r.ProductID, StoreLocation: r.StoreLocation}
}

// RecordUpdate carries the fields a conditional update writes.
type RecordUpdate struct {
	CurrentStock  int
	TransactionID string
	UpdatedAt     time.Time
}

// Apply returns a copy of r with the update written and the version bumped.
func (r InventoryRecord) Apply(u RecordUpdate) InventoryRecord {
	r.CurrentStock = u.CurrentStock
	r.LastTransactionID = u.TransactionID
	r.LastUpdated = u.UpdatedAt
	r.Version++
	return r
}
