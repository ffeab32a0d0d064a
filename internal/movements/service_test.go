package movements

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmacore/pharmacore/internal/medications"
	"github.com/pharmacore/pharmacore/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	meds      map[string]medications.Medication
	movements []Movement
	nextID    int64

	failInsert bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{meds: make(map[string]medications.Medication)}
}

func medKey(pharmacyID, medicationID int64) string {
	return fmt.Sprintf("%d:%d", pharmacyID, medicationID)
}

func (r *memoryRepo) seed(m medications.Medication) {
	r.meds[medKey(m.PharmacyID, m.ID)] = m
}

func (r *memoryRepo) medication(pharmacyID, medicationID int64) medications.Medication {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meds[medKey(pharmacyID, medicationID)]
}

// WithTx serializes on the repo mutex and restores the snapshot when fn
// fails, matching the rollback the real transaction gives.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	medsBackup := make(map[string]medications.Medication, len(r.meds))
	for k, v := range r.meds {
		medsBackup[k] = v
	}
	movementsBackup := make([]Movement, len(r.movements))
	copy(movementsBackup, r.movements)
	idBackup := r.nextID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.meds = medsBackup
		r.movements = movementsBackup
		r.nextID = idBackup
		return err
	}
	return nil
}

func (r *memoryRepo) List(ctx context.Context, pharmacyID int64, filter Filter, page, perPage int) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Movement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if m.PharmacyID != pharmacyID {
			continue
		}
		if filter.MedicationID != 0 && m.MedicationID != filter.MedicationID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		matched = append(matched, m)
	}

	p := shared.NewPagination(page, perPage, len(matched))
	start := p.Offset()
	if start >= len(matched) {
		return nil, len(matched), nil
	}
	end := start + p.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (tx *memoryTx) GetMedicationForUpdate(ctx context.Context, pharmacyID, medicationID int64) (medications.Medication, error) {
	med, ok := tx.repo.meds[medKey(pharmacyID, medicationID)]
	if !ok {
		return medications.Medication{}, &shared.NotFoundError{Entity: "medication", ID: medicationID}
	}
	return med, nil
}

func (tx *memoryTx) UpdateQuantity(ctx context.Context, pharmacyID, medicationID, quantity int64) error {
	key := medKey(pharmacyID, medicationID)
	med, ok := tx.repo.meds[key]
	if !ok {
		return &shared.NotFoundError{Entity: "medication", ID: medicationID}
	}
	med.Quantity = quantity
	tx.repo.meds[key] = med
	return nil
}

func (tx *memoryTx) ApplyPurchase(ctx context.Context, pharmacyID int64, med medications.Medication) error {
	key := medKey(pharmacyID, med.ID)
	if _, ok := tx.repo.meds[key]; !ok {
		return &shared.NotFoundError{Entity: "medication", ID: med.ID}
	}
	tx.repo.meds[key] = med
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	if tx.repo.failInsert {
		return 0, errors.New("injected insert failure")
	}
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

type stubMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{counts: make(map[string]int)}
}

func (m *stubMetrics) RecordMovement(kind, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[kind+":"+status]++
}

func (m *stubMetrics) count(kind, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[kind+":"+status]
}

// conflictRepo fails the first n transactions with a serialization conflict,
// then delegates.
type conflictRepo struct {
	*memoryRepo
	remaining int
}

func (r *conflictRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.remaining > 0 {
		r.remaining--
		return fmt.Errorf("%w: could not serialize access", shared.ErrConflict)
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
}

func newTestService(repo RepositoryPort) (*Service, *stubMetrics) {
	metrics := newStubMetrics()
	svc := NewService(repo, nil, newMemoryIdempotency(), metrics, nil)
	svc.now = fixedNow
	return svc, metrics
}

func seedMedication(repo *memoryRepo, quantity int64) medications.Medication {
	med := medications.Medication{
		ID:                1,
		PharmacyID:        1,
		Name:              "Paracetamol 500mg",
		Quantity:          quantity,
		Unit:              "tablet",
		UnitPrice:         decimal.RequireFromString("2.50"),
		ExpiryDate:        fixedNow().AddDate(1, 0, 0),
		BatchNumber:       "B-001",
		Supplier:          "MedSupply",
		LowStockThreshold: 10,
	}
	repo.seed(med)
	return med
}

func TestSaleReducesStockAndAppendsLog(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 50)
	svc, metrics := newTestService(repo)
	ctx := context.Background()

	result, err := svc.RecordSale(ctx, 1, SaleInput{
		MedicationID: 1,
		Quantity:     45,
		UnitPrice:    decimal.RequireFromString("2.50"),
		CustomerName: "Ana Torres",
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), result.PreviousQuantity)
	require.Equal(t, int64(5), result.NewQuantity)
	require.Equal(t, int64(5), repo.medication(1, 1).Quantity)
	require.Equal(t, 1, metrics.count("sale", "ok"))

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, KindSale, m.Kind)
	require.Equal(t, int64(-45), m.Quantity)
	require.Equal(t, int64(50), m.PreviousQuantity)
	require.Equal(t, int64(5), m.NewQuantity)
	require.Equal(t, "customer: Ana Torres", m.Notes)
	require.Equal(t, "B-001", m.BatchNumber)
	require.True(t, m.TotalAmount.Equal(decimal.RequireFromString("112.50")))
}

func TestSaleRejectsInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 5)
	svc, metrics := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 1,
		Quantity:     10,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(5), stockErr.Available)
	require.Equal(t, "only 5 units available", err.Error())

	require.Equal(t, int64(5), repo.medication(1, 1).Quantity)
	require.Empty(t, repo.movements)
	require.Equal(t, 1, metrics.count("sale", "rejected"))
}

func TestPurchaseAdoptsLatestBatch(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 10)
	svc, _ := newTestService(repo)

	newExpiry := fixedNow().AddDate(2, 0, 0)
	result, err := svc.RecordPurchase(context.Background(), 1, PurchaseInput{
		MedicationID: 1,
		Quantity:     100,
		UnitPrice:    decimal.RequireFromString("1.20"),
		Supplier:     "PharmaDirect",
		BatchNumber:  "B-077",
		ExpiryDate:   newExpiry,
	})
	require.NoError(t, err)
	require.Equal(t, int64(110), result.NewQuantity)

	med := repo.medication(1, 1)
	require.Equal(t, int64(110), med.Quantity)
	require.Equal(t, "PharmaDirect", med.Supplier)
	require.Equal(t, "B-077", med.BatchNumber)
	require.True(t, newExpiry.Equal(med.ExpiryDate))
	require.True(t, med.UnitPrice.Equal(decimal.RequireFromString("1.20")))

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, int64(100), m.Quantity)
	require.Equal(t, "B-077", m.BatchNumber)
	require.True(t, m.TotalAmount.Equal(decimal.RequireFromString("120.00")))
}

func TestPurchaseRejectsExpiryNotInFuture(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 10)
	svc, metrics := newTestService(repo)

	for _, expiry := range []time.Time{
		fixedNow(),                   // same day, later hour is still today
		fixedNow().AddDate(0, 0, -1), // past
	} {
		_, err := svc.RecordPurchase(context.Background(), 1, PurchaseInput{
			MedicationID: 1,
			Quantity:     10,
			UnitPrice:    decimal.RequireFromString("1.00"),
			Supplier:     "PharmaDirect",
			BatchNumber:  "B-090",
			ExpiryDate:   expiry,
		})
		var valErr *shared.ValidationError
		require.ErrorAs(t, err, &valErr)
		require.Equal(t, "expiry_date", valErr.Field)
	}

	require.Equal(t, int64(10), repo.medication(1, 1).Quantity)
	require.Empty(t, repo.movements)
	require.Equal(t, 2, metrics.count("purchase", "rejected"))
}

func TestPurchaseValidation(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 10)
	svc, _ := newTestService(repo)
	expiry := fixedNow().AddDate(1, 0, 0)

	cases := []struct {
		name  string
		input PurchaseInput
		field string
	}{
		{"zero quantity", PurchaseInput{MedicationID: 1, Quantity: 0, Supplier: "S", BatchNumber: "B", ExpiryDate: expiry}, "quantity"},
		{"negative price", PurchaseInput{MedicationID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString("-1"), Supplier: "S", BatchNumber: "B", ExpiryDate: expiry}, "unit_price"},
		{"missing supplier", PurchaseInput{MedicationID: 1, Quantity: 1, BatchNumber: "B", ExpiryDate: expiry}, "supplier"},
		{"missing batch", PurchaseInput{MedicationID: 1, Quantity: 1, Supplier: "S", ExpiryDate: expiry}, "batch_number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordPurchase(context.Background(), 1, tc.input)
			var valErr *shared.ValidationError
			require.ErrorAs(t, err, &valErr)
			require.Equal(t, tc.field, valErr.Field)
		})
	}
	require.Empty(t, repo.movements)
}

func TestExpiredWriteOffToZero(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 20)
	svc, _ := newTestService(repo)

	result, err := svc.RecordAdjustment(context.Background(), 1, AdjustmentInput{
		MedicationID: 1,
		Kind:         KindExpired,
		Quantity:     20,
		Reason:       "expired batch B-001",
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.NewQuantity)
	require.Equal(t, int64(0), repo.medication(1, 1).Quantity)

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, KindExpired, m.Kind)
	require.Equal(t, int64(-20), m.Quantity)
	require.Equal(t, "expired batch B-001", m.Notes)
	require.Nil(t, m.UnitPrice)
	require.Nil(t, m.TotalAmount)
}

func TestAdjustmentRejectsNonAdjustmentKinds(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 20)
	svc, _ := newTestService(repo)

	for _, kind := range []Kind{KindSale, KindPurchase, Kind("spoiled")} {
		_, err := svc.RecordAdjustment(context.Background(), 1, AdjustmentInput{
			MedicationID: 1,
			Kind:         kind,
			Quantity:     1,
			Reason:       "whatever",
		})
		var valErr *shared.ValidationError
		require.ErrorAs(t, err, &valErr)
		require.Equal(t, "kind", valErr.Field)
	}
}

func TestAdjustmentNotesCombineReasonAndExtra(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 20)
	svc, _ := newTestService(repo)

	_, err := svc.RecordAdjustment(context.Background(), 1, AdjustmentInput{
		MedicationID: 1,
		Kind:         KindDamaged,
		Quantity:     3,
		Reason:       "dropped box",
		Notes:        "shelf 4",
	})
	require.NoError(t, err)
	require.Equal(t, "dropped box (shelf 4)", repo.movements[0].Notes)
}

func TestReferenceIDMustBeUUID(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 20)
	svc, _ := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 1,
		Quantity:     1,
		UnitPrice:    decimal.RequireFromString("2.50"),
		ReferenceID:  "receipt-42",
	})
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "reference_id", valErr.Field)
	require.Empty(t, repo.movements)
}

func TestDuplicateReferencePostsOnce(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 50)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	input := SaleInput{
		MedicationID: 1,
		Quantity:     5,
		UnitPrice:    decimal.RequireFromString("2.50"),
		ReferenceID:  "1f0f8e0a-56aa-4f3c-9f52-6a2d6f2f9a10",
	}
	_, err := svc.RecordSale(ctx, 1, input)
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, 1, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	require.Len(t, repo.movements, 1)
	require.Equal(t, int64(45), repo.medication(1, 1).Quantity)
}

func TestIdempotencyKeyReleasedWhenMovementFails(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 2)
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, idem, nil, nil)
	svc.now = fixedNow
	ctx := context.Background()

	input := SaleInput{
		MedicationID: 1,
		Quantity:     10,
		UnitPrice:    decimal.RequireFromString("2.50"),
		ReferenceID:  "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
	}
	_, err := svc.RecordSale(ctx, 1, input)
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// The key was released, so a corrected retry goes through.
	input.Quantity = 2
	_, err = svc.RecordSale(ctx, 1, input)
	require.NoError(t, err)
	require.Equal(t, int64(0), repo.medication(1, 1).Quantity)
}

func TestConflictRetriesThenSucceeds(t *testing.T) {
	inner := newMemoryRepo()
	seedMedication(inner, 50)
	repo := &conflictRepo{memoryRepo: inner, remaining: 2}
	svc, metrics := newTestService(repo)

	result, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 1,
		Quantity:     5,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(45), result.NewQuantity)
	require.Equal(t, 1, metrics.count("sale", "ok"))
}

func TestConflictGivesUpAfterBoundedRetries(t *testing.T) {
	inner := newMemoryRepo()
	seedMedication(inner, 50)
	repo := &conflictRepo{memoryRepo: inner, remaining: conflictAttempts}
	svc, metrics := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 1,
		Quantity:     5,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, int64(50), inner.medication(1, 1).Quantity)
	require.Equal(t, 1, metrics.count("sale", "rejected"))
}

func TestFailedLogInsertRollsBackQuantity(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 50)
	repo.failInsert = true
	svc, _ := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 1,
		Quantity:     5,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	require.Error(t, err)
	require.Equal(t, int64(50), repo.medication(1, 1).Quantity)
	require.Empty(t, repo.movements)
}

func TestUnknownMedication(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), 1, SaleInput{
		MedicationID: 99,
		Quantity:     1,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	var notFound *shared.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestTenantIsolation(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 50)
	svc, _ := newTestService(repo)

	// Same medication id, different pharmacy: not visible.
	_, err := svc.RecordSale(context.Background(), 2, SaleInput{
		MedicationID: 1,
		Quantity:     1,
		UnitPrice:    decimal.RequireFromString("2.50"),
	})
	var notFound *shared.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, int64(50), repo.medication(1, 1).Quantity)
}

func TestQuantityEqualsSumOfDeltas(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 100)
	svc, _ := newTestService(repo)
	ctx := context.Background()
	price := decimal.RequireFromString("1.00")
	expiry := fixedNow().AddDate(1, 0, 0)

	var ok, rejected int
	steps := []func() error{
		func() error {
			_, err := svc.RecordSale(ctx, 1, SaleInput{MedicationID: 1, Quantity: 30, UnitPrice: price})
			return err
		},
		func() error {
			_, err := svc.RecordPurchase(ctx, 1, PurchaseInput{MedicationID: 1, Quantity: 50, UnitPrice: price, Supplier: "S", BatchNumber: "B-2", ExpiryDate: expiry})
			return err
		},
		func() error {
			_, err := svc.RecordAdjustment(ctx, 1, AdjustmentInput{MedicationID: 1, Kind: KindDamaged, Quantity: 7, Reason: "broken"})
			return err
		},
		func() error {
			_, err := svc.RecordSale(ctx, 1, SaleInput{MedicationID: 1, Quantity: 500, UnitPrice: price})
			return err
		},
		func() error {
			_, err := svc.RecordAdjustment(ctx, 1, AdjustmentInput{MedicationID: 1, Kind: KindExpired, Quantity: 13, Reason: "expiry scan"})
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			rejected++
		} else {
			ok++
		}
	}
	require.Equal(t, 4, ok)
	require.Equal(t, 1, rejected)

	var sum int64
	for _, m := range repo.movements {
		require.Equal(t, m.PreviousQuantity+m.Quantity, m.NewQuantity)
		sum += m.Quantity
	}
	require.Len(t, repo.movements, ok)
	require.Equal(t, int64(100)+sum, repo.medication(1, 1).Quantity)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 30)
	svc, _ := newTestService(repo)
	price := decimal.RequireFromString("2.50")

	const workers = 10
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(context.Background(), 1, SaleInput{
				MedicationID: 1,
				Quantity:     5,
				UnitPrice:    price,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, insufficient int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *shared.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		insufficient++
	}
	require.Equal(t, 6, succeeded)
	require.Equal(t, 4, insufficient)
	require.Equal(t, int64(0), repo.medication(1, 1).Quantity)
	require.Len(t, repo.movements, 6)
}

func TestListFilters(t *testing.T) {
	repo := newMemoryRepo()
	seedMedication(repo, 100)
	svc, _ := newTestService(repo)
	ctx := context.Background()
	price := decimal.RequireFromString("1.00")

	_, err := svc.RecordSale(ctx, 1, SaleInput{MedicationID: 1, Quantity: 10, UnitPrice: price})
	require.NoError(t, err)
	_, err = svc.RecordAdjustment(ctx, 1, AdjustmentInput{MedicationID: 1, Kind: KindDamaged, Quantity: 2, Reason: "broken"})
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, 1, SaleInput{MedicationID: 1, Quantity: 5, UnitPrice: price})
	require.NoError(t, err)

	all, page, err := svc.List(ctx, 1, Filter{}, 1, 20)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 3, page.Total)
	// Newest first.
	require.Equal(t, int64(-5), all[0].Quantity)

	sales, _, err := svc.List(ctx, 1, Filter{Kind: KindSale}, 1, 20)
	require.NoError(t, err)
	require.Len(t, sales, 2)

	other, page, err := svc.List(ctx, 2, Filter{}, 1, 20)
	require.NoError(t, err)
	require.Empty(t, other)
	require.Equal(t, 0, page.Total)
}

func TestListRejectsUnknownKind(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, _, err := svc.List(context.Background(), 1, Filter{Kind: Kind("refund")}, 1, 20)
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "kind", valErr.Field)
}
