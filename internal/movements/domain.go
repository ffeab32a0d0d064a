package movements

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind enumerates the supported stock movements. The set is closed; every
// switch over Kind must handle all five values.
type Kind string

const (
	// KindSale represents a dispensing sale (outbound).
	KindSale Kind = "sale"
	// KindPurchase represents a stock intake from a supplier (inbound).
	KindPurchase Kind = "purchase"
	// KindAdjustment represents a manual stock correction (outbound).
	KindAdjustment Kind = "adjustment"
	// KindExpired represents an expiry write-off (outbound).
	KindExpired Kind = "expired"
	// KindDamaged represents a damage write-off (outbound).
	KindDamaged Kind = "damaged"
)

// Valid reports whether k is one of the five movement kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSale, KindPurchase, KindAdjustment, KindExpired, KindDamaged:
		return true
	}
	return false
}

// Outbound reports whether the kind decreases stock.
func (k Kind) Outbound() bool {
	switch k {
	case KindSale, KindAdjustment, KindExpired, KindDamaged:
		return true
	case KindPurchase:
		return false
	}
	return false
}

// AdjustmentKind reports whether k may be passed to RecordAdjustment.
func (k Kind) AdjustmentKind() bool {
	switch k {
	case KindAdjustment, KindExpired, KindDamaged:
		return true
	}
	return false
}

// Movement is one append-only log record. Quantity is the signed delta;
// NewQuantity always equals PreviousQuantity + Quantity.
type Movement struct {
	ID               int64            `json:"id"`
	PharmacyID       int64            `json:"pharmacy_id"`
	MedicationID     int64            `json:"medication_id"`
	Kind             Kind             `json:"kind"`
	Quantity         int64            `json:"quantity"`
	PreviousQuantity int64            `json:"previous_quantity"`
	NewQuantity      int64            `json:"new_quantity"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	TotalAmount      *decimal.Decimal `json:"total_amount,omitempty"`
	ReferenceID      string           `json:"reference_id,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	BatchNumber      string           `json:"batch_number,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Result is returned by the three recording entry points.
type Result struct {
	MovementID       int64 `json:"movement_id"`
	PreviousQuantity int64 `json:"previous_quantity"`
	NewQuantity      int64 `json:"new_quantity"`
}

// PurchaseInput describes a stock intake request.
type PurchaseInput struct {
	MedicationID int64
	Quantity     int64
	UnitPrice    decimal.Decimal
	Supplier     string
	BatchNumber  string
	ExpiryDate   time.Time
	ReferenceID  string
}

// SaleInput describes a dispensing request.
type SaleInput struct {
	MedicationID int64
	Quantity     int64
	UnitPrice    decimal.Decimal
	CustomerName string
	ReferenceID  string
}

// AdjustmentInput describes a stock-decreasing correction or write-off.
type AdjustmentInput struct {
	MedicationID int64
	Kind         Kind
	Quantity     int64
	Reason       string
	Notes        string
	ReferenceID  string
}

// Filter narrows movement history listings.
type Filter struct {
	MedicationID int64
	Kind         Kind
	From         time.Time
	To           time.Time
}
