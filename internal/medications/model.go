package medications

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medication is the stock ledger row for one product in one pharmacy. The
// quantity column is the single source of truth for current stock and is
// mutated only by the movement processor.
type Medication struct {
	ID                int64           `json:"id"`
	PharmacyID        int64           `json:"pharmacy_id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Quantity          int64           `json:"quantity"`
	Unit              string          `json:"unit"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	ExpiryDate        time.Time       `json:"expiry_date"`
	BatchNumber       string          `json:"batch_number"`
	Supplier          string          `json:"supplier"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
