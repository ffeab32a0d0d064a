package medications

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmacore/pharmacore/internal/shared"
)

// ListFilters narrows medication listings.
type ListFilters struct {
	Search   string
	Category string
	Page     int
	PerPage  int
	SortBy   string
	SortDir  string
}

// Repository persists medications in PostgreSQL.
type Repository interface {
	List(ctx context.Context, pharmacyID int64, filters ListFilters) ([]Medication, int, error)
	Get(ctx context.Context, pharmacyID, id int64) (Medication, error)
	Create(ctx context.Context, med Medication) (Medication, error)
	Update(ctx context.Context, pharmacyID, id int64, med Medication) error
	Delete(ctx context.Context, pharmacyID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const medicationColumns = `id, pharmacy_id, name, search_name, category, quantity, unit, unit_price, expiry_date, batch_number, supplier, low_stock_threshold, created_at, updated_at`

func scanMedication(row pgx.Row) (Medication, error) {
	var m Medication
	var searchName string
	err := row.Scan(&m.ID, &m.PharmacyID, &m.Name, &searchName, &m.Category, &m.Quantity, &m.Unit, &m.UnitPrice, &m.ExpiryDate, &m.BatchNumber, &m.Supplier, &m.LowStockThreshold, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *repository) List(ctx context.Context, pharmacyID int64, filters ListFilters) ([]Medication, int, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE pharmacy_id = $1`
	countQuery := `SELECT COUNT(*) FROM medications WHERE pharmacy_id = $1`
	args := []any{pharmacyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		pos := strconv.Itoa(argCount)
		clause := ` AND (search_name ILIKE $` + pos + ` OR batch_number ILIKE $` + pos + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+FoldSearchTerm(filters.Search)+"%")
	}
	if filters.Category != "" {
		argCount++
		clause := ` AND category = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Category)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, page.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var meds []Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		meds = append(meds, m)
	}
	return meds, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, pharmacyID, id int64) (Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE pharmacy_id = $1 AND id = $2`
	m, err := scanMedication(r.db.QueryRow(ctx, query, pharmacyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Medication{}, &shared.NotFoundError{Entity: "medication", ID: id}
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, med Medication) (Medication, error) {
	query := `INSERT INTO medications (pharmacy_id, name, search_name, category, quantity, unit, unit_price, expiry_date, batch_number, supplier, low_stock_threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12) RETURNING id`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		med.PharmacyID, med.Name, FoldSearchTerm(med.Name), med.Category, med.Quantity, med.Unit,
		med.UnitPrice, med.ExpiryDate, med.BatchNumber, med.Supplier, med.LowStockThreshold, now,
	).Scan(&med.ID)
	if err != nil {
		return Medication{}, err
	}
	med.CreatedAt = now
	med.UpdatedAt = now
	return med, nil
}

func (r *repository) Update(ctx context.Context, pharmacyID, id int64, med Medication) error {
	query := `UPDATE medications SET name = $1, search_name = $2, category = $3, unit = $4, unit_price = $5, expiry_date = $6, batch_number = $7, supplier = $8, low_stock_threshold = $9, updated_at = $10
		WHERE pharmacy_id = $11 AND id = $12`
	tag, err := r.db.Exec(ctx, query,
		med.Name, FoldSearchTerm(med.Name), med.Category, med.Unit, med.UnitPrice,
		med.ExpiryDate, med.BatchNumber, med.Supplier, med.LowStockThreshold, time.Now().UTC(),
		pharmacyID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "medication", ID: id}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, pharmacyID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM medications WHERE pharmacy_id = $1 AND id = $2`, pharmacyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "medication", ID: id}
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "quantity":
		return "quantity " + dir
	case "expiry_date":
		return "expiry_date " + dir
	case "category":
		return "category " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
