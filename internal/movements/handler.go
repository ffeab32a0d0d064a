package movements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pharmacore/pharmacore/internal/platform/httpx"
	"github.com/pharmacore/pharmacore/internal/shared"
)

// Handler wires HTTP endpoints for the movement subsystem.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the movements handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/sales", h.RecordSale)
	r.Post("/purchases", h.RecordPurchase)
	r.Post("/adjustments", h.RecordAdjustment)
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	var req RecordSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.fieldError(err))
		return
	}
	result, err := h.service.RecordSale(r.Context(), tenant.PharmacyID, SaleInput{
		MedicationID: req.MedicationID,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		CustomerName: req.CustomerName,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		h.logger.Error("record sale failed",
			slog.Int64("pharmacy_id", tenant.PharmacyID),
			slog.Int64("medication_id", req.MedicationID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("sale recorded",
		slog.Int64("pharmacy_id", tenant.PharmacyID),
		slog.Int64("medication_id", req.MedicationID),
		slog.Int64("movement_id", result.MovementID))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	var req RecordPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.fieldError(err))
		return
	}
	result, err := h.service.RecordPurchase(r.Context(), tenant.PharmacyID, PurchaseInput{
		MedicationID: req.MedicationID,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		Supplier:     req.Supplier,
		BatchNumber:  req.BatchNumber,
		ExpiryDate:   req.ExpiryDate,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		h.logger.Error("record purchase failed",
			slog.Int64("pharmacy_id", tenant.PharmacyID),
			slog.Int64("medication_id", req.MedicationID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("purchase recorded",
		slog.Int64("pharmacy_id", tenant.PharmacyID),
		slog.Int64("medication_id", req.MedicationID),
		slog.Int64("movement_id", result.MovementID))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	var req RecordAdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, h.fieldError(err))
		return
	}
	result, err := h.service.RecordAdjustment(r.Context(), tenant.PharmacyID, AdjustmentInput{
		MedicationID: req.MedicationID,
		Kind:         Kind(req.Kind),
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Notes:        req.Notes,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		h.logger.Error("record adjustment failed",
			slog.Int64("pharmacy_id", tenant.PharmacyID),
			slog.Int64("medication_id", req.MedicationID),
			slog.String("kind", req.Kind),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("adjustment recorded",
		slog.Int64("pharmacy_id", tenant.PharmacyID),
		slog.Int64("medication_id", req.MedicationID),
		slog.Int64("movement_id", result.MovementID))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	q := r.URL.Query()
	filter := Filter{Kind: Kind(q.Get("kind"))}
	if idStr := q.Get("medication_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("medication_id", "invalid medication id"))
			return
		}
		filter.MedicationID = id
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("from", "invalid date, expected YYYY-MM-DD"))
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("to", "invalid date, expected YYYY-MM-DD"))
			return
		}
		// end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	result, pagination, err := h.service.List(r.Context(), tenant.PharmacyID, filter, page, perPage)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result == nil {
		result = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, listMovementsResponse{Movements: result, Pagination: pagination})
}

func (h *Handler) fieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewValidationError(fe.Field(), "failed on "+fe.Tag()+" constraint")
	}
	return shared.NewValidationError("", err.Error())
}
