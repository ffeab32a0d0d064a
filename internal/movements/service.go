package movements

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, pharmacyID int64, filter Filter, page, perPage int) ([]Movement, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts movement outcomes.
type MetricsPort interface {
	RecordMovement(kind, status string)
}

// IdempotencyPort reserves reference keys so a retried request posts once.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CacheInvalidator drops derived read views after a posted movement.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, pharmacyID int64) error
}

// conflictAttempts bounds the automatic retry on serialization failures.
const conflictAttempts = 3

// Service is the movement processor: it turns a request into a validated,
// atomic ledger mutation plus one appended log record, or into nothing.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	invalidator CacheInvalidator
	now         func() time.Time
}

// NewService builds Service. audit, idempotency, metrics and invalidator may
// be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, invalidator CacheInvalidator) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, invalidator: invalidator, now: time.Now}
}

// RecordPurchase posts a stock intake. The medication row adopts the
// purchase's supplier, batch number, expiry date and unit price: the ledger
// tracks the latest batch, not per-batch lots.
func (s *Service) RecordPurchase(ctx context.Context, pharmacyID int64, input PurchaseInput) (Result, error) {
	if input.Quantity <= 0 {
		return s.reject(KindPurchase, shared.NewValidationError("quantity", "quantity must be positive"))
	}
	if input.UnitPrice.IsNegative() {
		return s.reject(KindPurchase, shared.NewValidationError("unit_price", "unit price must not be negative"))
	}
	if strings.TrimSpace(input.Supplier) == "" {
		return s.reject(KindPurchase, shared.NewValidationError("supplier", "supplier is required"))
	}
	if strings.TrimSpace(input.BatchNumber) == "" {
		return s.reject(KindPurchase, shared.NewValidationError("batch_number", "batch number is required"))
	}
	today := startOfDay(s.now())
	if !startOfDay(input.ExpiryDate).After(today) {
		return s.reject(KindPurchase, shared.NewValidationError("expiry_date", "expiry date must be in the future"))
	}

	price := input.UnitPrice
	return s.postMovement(ctx, pharmacyID, movementParams{
		Kind:         KindPurchase,
		MedicationID: input.MedicationID,
		Quantity:     input.Quantity,
		UnitPrice:    &price,
		ReferenceID:  input.ReferenceID,
		Purchase:     &input,
	})
}

// RecordSale posts a dispensing sale.
func (s *Service) RecordSale(ctx context.Context, pharmacyID int64, input SaleInput) (Result, error) {
	if input.Quantity <= 0 {
		return s.reject(KindSale, shared.NewValidationError("quantity", "quantity must be positive"))
	}
	if input.UnitPrice.IsNegative() {
		return s.reject(KindSale, shared.NewValidationError("unit_price", "unit price must not be negative"))
	}
	var notes string
	if name := strings.TrimSpace(input.CustomerName); name != "" {
		notes = "customer: " + name
	}

	price := input.UnitPrice
	return s.postMovement(ctx, pharmacyID, movementParams{
		Kind:         KindSale,
		MedicationID: input.MedicationID,
		Quantity:     input.Quantity,
		UnitPrice:    &price,
		Notes:        notes,
		ReferenceID:  input.ReferenceID,
	})
}

// RecordAdjustment posts a manual correction or a write-off. All three
// adjustment kinds decrease stock.
func (s *Service) RecordAdjustment(ctx context.Context, pharmacyID int64, input AdjustmentInput) (Result, error) {
	if !input.Kind.AdjustmentKind() {
		return s.reject(input.Kind, shared.NewValidationError("kind", "kind must be adjustment, expired or damaged"))
	}
	if input.Quantity <= 0 {
		return s.reject(input.Kind, shared.NewValidationError("quantity", "quantity must be positive"))
	}
	if strings.TrimSpace(input.Reason) == "" {
		return s.reject(input.Kind, shared.NewValidationError("reason", "reason is required"))
	}
	notes := strings.TrimSpace(input.Reason)
	if extra := strings.TrimSpace(input.Notes); extra != "" {
		notes += " (" + extra + ")"
	}

	return s.postMovement(ctx, pharmacyID, movementParams{
		Kind:         input.Kind,
		MedicationID: input.MedicationID,
		Quantity:     input.Quantity,
		Notes:        notes,
		ReferenceID:  input.ReferenceID,
	})
}

// List returns movement history for one pharmacy.
func (s *Service) List(ctx context.Context, pharmacyID int64, filter Filter, page, perPage int) ([]Movement, shared.Pagination, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Pagination{}, shared.NewValidationError("kind", "unknown movement kind")
	}
	result, total, err := s.repo.List(ctx, pharmacyID, filter, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return result, shared.NewPagination(page, perPage, total), nil
}

type movementParams struct {
	Kind         Kind
	MedicationID int64
	Quantity     int64
	UnitPrice    *decimal.Decimal
	Notes        string
	ReferenceID  string
	Purchase     *PurchaseInput
}

func (s *Service) postMovement(ctx context.Context, pharmacyID int64, params movementParams) (Result, error) {
	if params.ReferenceID != "" {
		if _, err := uuid.Parse(params.ReferenceID); err != nil {
			return s.reject(params.Kind, shared.NewValidationError("reference_id", "reference id must be a UUID"))
		}
	}

	insertedKey := false
	key := fmt.Sprintf("%s:%s", params.Kind, params.ReferenceID)
	if s.idempotency != nil && params.ReferenceID != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "movements"); err != nil {
			return s.reject(params.Kind, err)
		}
		insertedKey = true
	}

	var result Result
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		result, err = s.postOnce(ctx, pharmacyID, params)
		if err == nil || !errors.Is(err, shared.ErrConflict) {
			break
		}
	}
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return s.reject(params.Kind, err)
	}

	if s.metrics != nil {
		s.metrics.RecordMovement(string(params.Kind), "ok")
	}
	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx, pharmacyID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			PharmacyID: pharmacyID,
			Action:     "movement:" + string(params.Kind),
			Entity:     "movement",
			EntityID:   strconv.FormatInt(result.MovementID, 10),
			Meta: map[string]any{
				"medication_id":     params.MedicationID,
				"quantity":          params.Quantity,
				"previous_quantity": result.PreviousQuantity,
				"new_quantity":      result.NewQuantity,
			},
		})
	}
	return result, nil
}

// postOnce runs one atomic attempt: lock the ledger row, re-check stock
// against the locked state, write the new quantity and append the log entry.
func (s *Service) postOnce(ctx context.Context, pharmacyID int64, params movementParams) (Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		med, err := tx.GetMedicationForUpdate(ctx, pharmacyID, params.MedicationID)
		if err != nil {
			return err
		}

		previous := med.Quantity
		delta := params.Quantity
		if params.Kind.Outbound() {
			if med.Quantity < params.Quantity {
				return &shared.InsufficientStockError{
					MedicationID: med.ID,
					Requested:    params.Quantity,
					Available:    med.Quantity,
				}
			}
			delta = -params.Quantity
		}
		newQuantity := previous + delta

		batch := med.BatchNumber
		if params.Purchase != nil {
			med.Quantity = newQuantity
			med.Supplier = params.Purchase.Supplier
			med.BatchNumber = params.Purchase.BatchNumber
			med.ExpiryDate = params.Purchase.ExpiryDate
			med.UnitPrice = params.Purchase.UnitPrice
			batch = params.Purchase.BatchNumber
			if err := tx.ApplyPurchase(ctx, pharmacyID, med); err != nil {
				return err
			}
		} else {
			if err := tx.UpdateQuantity(ctx, pharmacyID, med.ID, newQuantity); err != nil {
				return err
			}
		}

		movement := Movement{
			PharmacyID:       pharmacyID,
			MedicationID:     med.ID,
			Kind:             params.Kind,
			Quantity:         delta,
			PreviousQuantity: previous,
			NewQuantity:      newQuantity,
			UnitPrice:        params.UnitPrice,
			ReferenceID:      params.ReferenceID,
			Notes:            params.Notes,
			BatchNumber:      batch,
			CreatedAt:        s.now().UTC(),
		}
		if params.UnitPrice != nil {
			total := params.UnitPrice.Mul(decimal.NewFromInt(params.Quantity))
			movement.TotalAmount = &total
		}
		movementID, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}

		result = Result{
			MovementID:       movementID,
			PreviousQuantity: previous,
			NewQuantity:      newQuantity,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (s *Service) reject(kind Kind, err error) (Result, error) {
	if s.metrics != nil {
		s.metrics.RecordMovement(string(kind), "rejected")
	}
	return Result{}, err
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
