package movements

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmacore/pharmacore/internal/medications"
	"github.com/pharmacore/pharmacore/internal/platform/db"
	"github.com/pharmacore/pharmacore/internal/shared"
)

// TxRepository exposes the operations available inside one atomic movement.
// The ledger read locks the medication row, so concurrent movements against
// the same medication serialize on it.
type TxRepository interface {
	GetMedicationForUpdate(ctx context.Context, pharmacyID, medicationID int64) (medications.Medication, error)
	UpdateQuantity(ctx context.Context, pharmacyID, medicationID, quantity int64) error
	ApplyPurchase(ctx context.Context, pharmacyID int64, med medications.Medication) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Repository persists movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. Either
// every write inside fn commits or none does.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const movementColumns = `id, pharmacy_id, medication_id, kind, quantity, previous_quantity, new_quantity, unit_price, total_amount, reference_id, notes, batch_number, created_at`

// List returns movement history newest first, with the total row count for
// pagination.
func (r *Repository) List(ctx context.Context, pharmacyID int64, filter Filter, page, perPage int) ([]Movement, int, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE pharmacy_id = $1`
	countQuery := `SELECT COUNT(*) FROM movements WHERE pharmacy_id = $1`
	args := []any{pharmacyID}
	argCount := 1

	appendClause := func(clause string, value any) {
		argCount++
		pos := strconv.Itoa(argCount)
		query += clause + pos
		countQuery += clause + pos
		args = append(args, value)
	}

	if filter.MedicationID != 0 {
		appendClause(` AND medication_id = $`, filter.MedicationID)
	}
	if filter.Kind != "" {
		appendClause(` AND kind = $`, string(filter.Kind))
	}
	if !filter.From.IsZero() {
		appendClause(` AND created_at >= $`, filter.From)
	}
	if !filter.To.IsZero() {
		appendClause(` AND created_at <= $`, filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(page, perPage, total)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, p.PerPage, p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Movement
	for rows.Next() {
		var m Movement
		var refID *string
		if err := rows.Scan(&m.ID, &m.PharmacyID, &m.MedicationID, &m.Kind, &m.Quantity, &m.PreviousQuantity, &m.NewQuantity, &m.UnitPrice, &m.TotalAmount, &refID, &m.Notes, &m.BatchNumber, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		if refID != nil {
			m.ReferenceID = *refID
		}
		result = append(result, m)
	}
	return result, total, rows.Err()
}

func (r *txRepo) GetMedicationForUpdate(ctx context.Context, pharmacyID, medicationID int64) (medications.Medication, error) {
	const query = `SELECT id, pharmacy_id, name, category, quantity, unit, unit_price, expiry_date, batch_number, supplier, low_stock_threshold, created_at, updated_at
		FROM medications WHERE pharmacy_id = $1 AND id = $2 FOR UPDATE`
	var m medications.Medication
	err := r.tx.QueryRow(ctx, query, pharmacyID, medicationID).Scan(
		&m.ID, &m.PharmacyID, &m.Name, &m.Category, &m.Quantity, &m.Unit, &m.UnitPrice,
		&m.ExpiryDate, &m.BatchNumber, &m.Supplier, &m.LowStockThreshold, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return medications.Medication{}, &shared.NotFoundError{Entity: "medication", ID: medicationID}
	}
	return m, err
}

func (r *txRepo) UpdateQuantity(ctx context.Context, pharmacyID, medicationID, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE medications SET quantity = $1, updated_at = $2 WHERE pharmacy_id = $3 AND id = $4`, quantity, time.Now().UTC(), pharmacyID, medicationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "medication", ID: medicationID}
	}
	return nil
}

// ApplyPurchase writes the post-purchase ledger state: new quantity plus the
// latest-batch supplier, batch number, expiry and price.
func (r *txRepo) ApplyPurchase(ctx context.Context, pharmacyID int64, med medications.Medication) error {
	tag, err := r.tx.Exec(ctx, `UPDATE medications SET quantity = $1, supplier = $2, batch_number = $3, expiry_date = $4, unit_price = $5, updated_at = $6 WHERE pharmacy_id = $7 AND id = $8`,
		med.Quantity, med.Supplier, med.BatchNumber, med.ExpiryDate, med.UnitPrice, time.Now().UTC(), pharmacyID, med.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "medication", ID: med.ID}
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	const query = `INSERT INTO movements (pharmacy_id, medication_id, kind, quantity, previous_quantity, new_quantity, unit_price, total_amount, reference_id, notes, batch_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12) RETURNING id`
	var id int64
	err := r.tx.QueryRow(ctx, query,
		m.PharmacyID, m.MedicationID, string(m.Kind), m.Quantity, m.PreviousQuantity, m.NewQuantity,
		m.UnitPrice, m.TotalAmount, m.ReferenceID, m.Notes, m.BatchNumber, m.CreatedAt,
	).Scan(&id)
	return id, err
}
