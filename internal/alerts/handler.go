package alerts

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pharmacore/pharmacore/internal/platform/httpx"
	"github.com/pharmacore/pharmacore/internal/shared"
)

// ScanDispatcher queues a background expiry scan for one pharmacy.
type ScanDispatcher interface {
	DispatchExpiryScan(ctx context.Context, pharmacyID int64) error
}

// Handler wires the alert endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	dispatcher ScanDispatcher
}

// NewHandler constructs the alerts handler. dispatcher may be nil when no
// background queue is configured.
func NewHandler(logger *slog.Logger, service *Service, dispatcher ScanDispatcher) *Handler {
	return &Handler{logger: logger, service: service, dispatcher: dispatcher}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/scan", h.TriggerScan)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	snap, err := h.service.Get(r.Context(), tenant.PharmacyID)
	if err != nil {
		h.logger.Error("get alerts failed", slog.Int64("pharmacy_id", tenant.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

// TriggerScan drops the cached snapshot and queues a fresh background sweep
// for the caller's pharmacy.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacy context missing")
		return
	}
	if err := h.service.Invalidate(r.Context(), tenant.PharmacyID); err != nil {
		h.logger.Warn("alert cache invalidation failed", slog.Int64("pharmacy_id", tenant.PharmacyID), slog.Any("error", err))
	}
	if h.dispatcher == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background queue not configured")
		return
	}
	if err := h.dispatcher.DispatchExpiryScan(r.Context(), tenant.PharmacyID); err != nil {
		h.logger.Error("dispatch expiry scan failed", slog.Int64("pharmacy_id", tenant.PharmacyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
