package movements

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/shared"
)

type RecordSaleRequest struct {
	MedicationID int64           `json:"medication_id" validate:"required,gt=0"`
	Quantity     int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CustomerName string          `json:"customer_name,omitempty" validate:"max=200"`
	ReferenceID  string          `json:"reference_id,omitempty" validate:"omitempty,uuid"`
}

type RecordPurchaseRequest struct {
	MedicationID int64           `json:"medication_id" validate:"required,gt=0"`
	Quantity     int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Supplier     string          `json:"supplier" validate:"required,max=200"`
	BatchNumber  string          `json:"batch_number" validate:"required,max=100"`
	ExpiryDate   time.Time       `json:"expiry_date" validate:"required"`
	ReferenceID  string          `json:"reference_id,omitempty" validate:"omitempty,uuid"`
}

type RecordAdjustmentRequest struct {
	MedicationID int64  `json:"medication_id" validate:"required,gt=0"`
	Kind         string `json:"kind" validate:"required,oneof=adjustment expired damaged"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"required,max=500"`
	Notes        string `json:"notes,omitempty" validate:"max=1000"`
	ReferenceID  string `json:"reference_id,omitempty" validate:"omitempty,uuid"`
}

type listMovementsResponse struct {
	Movements  []Movement        `json:"movements"`
	Pagination shared.Pagination `json:"pagination"`
}
