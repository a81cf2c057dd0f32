package domain

import "time"

type Alert struct {
	ProductID               string      `json:"product_id"`
	StoreLocation           string      `json:"store_location"`
	Status                  StockStatus `json:"status"`
	CurrentStock            int         `json:"current_stock"`
	ReorderPoint            int         `json:"reorder_point"`
	SupplierID              string      `json:"supplier_id,omitempty"`
	TriggeringTransactionID string      `json:"triggering_transaction_id"`
	EmittedAt               time.Time   `json:"emitted_at"`
}

func NewAlert(r InventoryRecord, status StockStatus, transactionID string, at time.Time) Alert {
	return Alert{
		ProductID:               r.ProductID,
		StoreLocation:           r.StoreLocation,
		Status:                  status,
		CurrentStock:            r.CurrentStock,
		ReorderPoint:            r.ReorderPoint,
		SupplierID:              r.SupplierID,
		TriggeringTransactionID: transactionID,
		EmittedAt:               at,
	}
}
