package sales

import "time"

// Aggregate field names as stored on the user record.
const (
	FieldTotalSalesCount = "totalSalesCount"
	FieldTotalAmount     = "totalAmount"
	FieldTodaySalesCount = "todaySalesCount"
	FieldLastSaleAt      = "lastSaleAt"
)

// SaleRecord is the field snapshot of a sale document owned by a user.
// A nil SaleRecord behaves like an empty one.
type SaleRecord map[string]any

// Amount returns the coerced amount of the snapshot.
func (r SaleRecord) Amount() float64 {
	return CoerceAmount(r["amount"])
}

// UserAggregate holds the derived counters kept on a user record.
type UserAggregate struct {
	UserID          string     `json:"user_id"`
	TotalSalesCount int64      `json:"totalSalesCount"`
	TotalAmount     float64    `json:"totalAmount"`
	TodaySalesCount int64      `json:"todaySalesCount"`
	LastSaleAt      *time.Time `json:"lastSaleAt,omitempty"`
}

// Increment is a set of additive changes applied to a user aggregate in one write.
// TotalAmount is always written; the count fields only when non-zero.
type Increment struct {
	TotalSalesCount int64
	TotalAmount     float64
	TodaySalesCount int64
	StampLastSale   bool
}
