package alerts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmacore/pharmacore/internal/medications"
	"github.com/pharmacore/pharmacore/internal/platform/db"
)

// Snapshot holds the three alert sets, computed from one consistent read.
type Snapshot struct {
	LowStock     []medications.Medication `json:"low_stock"`
	ExpiringSoon []medications.Medication `json:"expiring_soon"`
	Expired      []medications.Medication `json:"expired"`
}

// Repository reads alert snapshots from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const medicationColumns = `id, pharmacy_id, name, category, quantity, unit, unit_price, expiry_date, batch_number, supplier, low_stock_threshold, created_at, updated_at`

// Snapshot runs the three alert queries inside a single repeatable-read
// transaction so the sets never disagree about the same ledger state.
func (r *Repository) Snapshot(ctx context.Context, pharmacyID int64, today time.Time, window time.Duration) (Snapshot, error) {
	var snap Snapshot
	horizon := today.Add(window)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		snap.LowStock, err = queryMedications(ctx, tx,
			`SELECT `+medicationColumns+` FROM medications WHERE pharmacy_id = $1 AND quantity <= low_stock_threshold ORDER BY quantity ASC, name ASC`,
			pharmacyID)
		if err != nil {
			return err
		}
		snap.ExpiringSoon, err = queryMedications(ctx, tx,
			`SELECT `+medicationColumns+` FROM medications WHERE pharmacy_id = $1 AND expiry_date >= $2 AND expiry_date <= $3 ORDER BY expiry_date ASC, name ASC`,
			pharmacyID, today, horizon)
		if err != nil {
			return err
		}
		snap.Expired, err = queryMedications(ctx, tx,
			`SELECT `+medicationColumns+` FROM medications WHERE pharmacy_id = $1 AND expiry_date < $2 ORDER BY expiry_date ASC, name ASC`,
			pharmacyID, today)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func queryMedications(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]medications.Medication, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []medications.Medication{}
	for rows.Next() {
		var m medications.Medication
		if err := rows.Scan(&m.ID, &m.PharmacyID, &m.Name, &m.Category, &m.Quantity, &m.Unit, &m.UnitPrice, &m.ExpiryDate, &m.BatchNumber, &m.Supplier, &m.LowStockThreshold, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
