package medications

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/shared"
)

type CreateMedicationRequest struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"max=100"`
	Quantity          int64           `json:"quantity" validate:"gte=0"`
	Unit              string          `json:"unit" validate:"required,max=20"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	ExpiryDate        time.Time       `json:"expiry_date" validate:"required"`
	BatchNumber       string          `json:"batch_number" validate:"max=100"`
	Supplier          string          `json:"supplier" validate:"max=200"`
	LowStockThreshold int64           `json:"low_stock_threshold" validate:"gte=0"`
}

type UpdateMedicationRequest struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"max=100"`
	Unit              string          `json:"unit" validate:"required,max=20"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	ExpiryDate        time.Time       `json:"expiry_date" validate:"required"`
	BatchNumber       string          `json:"batch_number" validate:"max=100"`
	Supplier          string          `json:"supplier" validate:"max=200"`
	LowStockThreshold int64           `json:"low_stock_threshold" validate:"gte=0"`
}

type listMedicationsResponse struct {
	Medications []Medication      `json:"medications"`
	Pagination  shared.Pagination `json:"pagination"`
}
