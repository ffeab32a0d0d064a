package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/pharmacore/pharmacore/internal/alerts"
	"github.com/pharmacore/pharmacore/internal/shared"
)

// TenantSource lists the pharmacies to sweep.
type TenantSource interface {
	ListPharmacyIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ExpiryScanJob sweeps each pharmacy's ledger for expired and soon-to-expire
// stock and records the findings. The dashboard of the surrounding system
// consumes the audit trail and logs; nothing here mutates the ledger.
type ExpiryScanJob struct {
	tenants TenantSource
	source  alerts.SnapshotSource
	audit   AuditPort
	logger  *slog.Logger
	window  time.Duration
}

// NewExpiryScanJob constructs the job.
func NewExpiryScanJob(tenants TenantSource, source alerts.SnapshotSource, audit AuditPort, logger *slog.Logger, window time.Duration) *ExpiryScanJob {
	if window <= 0 {
		window = alerts.DefaultExpiryWindow
	}
	return &ExpiryScanJob{tenants: tenants, source: source, audit: audit, logger: logger, window: window}
}

// HandleTask processes TaskTypeExpiryScan tasks.
func (j *ExpiryScanJob) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	var pharmacies []int64
	if payload.PharmacyID > 0 {
		pharmacies = []int64{payload.PharmacyID}
	} else {
		var err error
		pharmacies, err = j.tenants.ListPharmacyIDs(ctx)
		if err != nil {
			return err
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pharmacyID := range pharmacies {
		g.Go(func() error {
			return j.scanPharmacy(ctx, pharmacyID, today)
		})
	}
	return g.Wait()
}

func (j *ExpiryScanJob) scanPharmacy(ctx context.Context, pharmacyID int64, today time.Time) error {
	snap, err := j.source.Snapshot(ctx, pharmacyID, today, j.window)
	if err != nil {
		return err
	}

	j.logger.Info("expiry scan",
		slog.Int64("pharmacy_id", pharmacyID),
		slog.Int("expired", len(snap.Expired)),
		slog.Int("expiring_soon", len(snap.ExpiringSoon)),
		slog.Int("low_stock", len(snap.LowStock)))

	if j.audit == nil {
		return nil
	}
	for _, med := range snap.Expired {
		_ = j.audit.Record(ctx, shared.AuditLog{
			PharmacyID: pharmacyID,
			Action:     "alert:expired",
			Entity:     "medication",
			EntityID:   strconv.FormatInt(med.ID, 10),
			Meta: map[string]any{
				"name":         med.Name,
				"batch_number": med.BatchNumber,
				"expiry_date":  med.ExpiryDate.Format("2006-01-02"),
				"quantity":     med.Quantity,
			},
		})
	}
	return nil
}

// PGTenantSource lists pharmacies straight from the medications table.
type PGTenantSource struct {
	pool *pgxpool.Pool
}

// NewPGTenantSource constructs the source.
func NewPGTenantSource(pool *pgxpool.Pool) *PGTenantSource {
	return &PGTenantSource{pool: pool}
}

// ListPharmacyIDs returns every pharmacy with at least one medication.
func (s *PGTenantSource) ListPharmacyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT pharmacy_id FROM medications ORDER BY pharmacy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
