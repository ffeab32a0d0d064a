package medications

import (
	"context"
	"strconv"
	"strings"

	"github.com/pharmacore/pharmacore/internal/shared"
)

// Service exposes medication master data operations. Stock quantity is out
// of its reach: every quantity change goes through the movement processor.
type Service struct {
	repo  Repository
	audit AuditPort
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns medications for one pharmacy with pagination metadata.
func (s *Service) List(ctx context.Context, pharmacyID int64, filters ListFilters) ([]Medication, shared.Pagination, error) {
	meds, total, err := s.repo.List(ctx, pharmacyID, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return meds, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get fetches a single medication scoped to the pharmacy.
func (s *Service) Get(ctx context.Context, pharmacyID, id int64) (Medication, error) {
	return s.repo.Get(ctx, pharmacyID, id)
}

// Create registers a medication. Quantity may seed an opening balance.
func (s *Service) Create(ctx context.Context, med Medication) (Medication, error) {
	if err := s.validate(med); err != nil {
		return Medication{}, err
	}
	created, err := s.repo.Create(ctx, med)
	if err != nil {
		return Medication{}, err
	}
	s.recordAudit(ctx, created.PharmacyID, "medication:create", created.ID, created.Name)
	return created, nil
}

// Update changes descriptive fields, never the quantity.
func (s *Service) Update(ctx context.Context, pharmacyID, id int64, med Medication) (Medication, error) {
	if err := s.validate(med); err != nil {
		return Medication{}, err
	}
	current, err := s.repo.Get(ctx, pharmacyID, id)
	if err != nil {
		return Medication{}, err
	}
	med.Quantity = current.Quantity
	if err := s.repo.Update(ctx, pharmacyID, id, med); err != nil {
		return Medication{}, err
	}
	s.recordAudit(ctx, pharmacyID, "medication:update", id, med.Name)
	return s.repo.Get(ctx, pharmacyID, id)
}

// Delete removes a medication through the administrative path.
func (s *Service) Delete(ctx context.Context, pharmacyID, id int64) error {
	if err := s.repo.Delete(ctx, pharmacyID, id); err != nil {
		return err
	}
	s.recordAudit(ctx, pharmacyID, "medication:delete", id, "")
	return nil
}

func (s *Service) validate(m Medication) error {
	if strings.TrimSpace(m.Name) == "" {
		return shared.NewValidationError("name", "medication name is required")
	}
	if strings.TrimSpace(m.Unit) == "" {
		return shared.NewValidationError("unit", "unit of measure is required")
	}
	if m.Quantity < 0 {
		return shared.NewValidationError("quantity", "quantity must not be negative")
	}
	if m.LowStockThreshold < 0 {
		return shared.NewValidationError("low_stock_threshold", "threshold must not be negative")
	}
	if m.UnitPrice.IsNegative() {
		return shared.NewValidationError("unit_price", "unit price must not be negative")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, pharmacyID int64, action string, id int64, name string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		PharmacyID: pharmacyID,
		Action:     action,
		Entity:     "medication",
		EntityID:   strconv.FormatInt(id, 10),
		Meta:       map[string]any{"name": name},
	})
}
