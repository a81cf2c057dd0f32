package domain

type StockStatus string

const (
	StockStatusOK       StockStatus = "OK"
	StockStatusLow      StockStatus = "LOW"
	StockStatusCritical StockStatus = "CRITICAL"
)

// DefaultCriticalFloor is the absolute stock level at or below which a record is CRITICAL
// regardless of its reorder point.
const DefaultCriticalFloor = 5

type Thresholds struct {
	CriticalFloor int
}

func DefaultThresholds() Thresholds {
	return Thresholds{CriticalFloor: DefaultCriticalFloor}
}

func (t Thresholds) Classify(currentStock, reorderPoint int) StockStatus {
	switch {
	case currentStock <= t.CriticalFloor:
		return StockStatusCritical
	case currentStock <= reorderPoint:
		return StockStatusLow
	default:
		return StockStatusOK
	}
}

func (t Thresholds) StatusOf(r InventoryRecord) StockStatus {
	return t.Classify(r.CurrentStock, r.ReorderPoint)
}

// Alerting reports whether the status warrants an alert.
func (s StockStatus) Alerting() bool {
	return s == StockStatusLow || s == StockStatusCritical
}
