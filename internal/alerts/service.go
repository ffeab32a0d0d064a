package alerts

import (
	"context"
	"fmt"
	"time"
)

// DefaultExpiryWindow is how far ahead the expiring-soon alert looks.
const DefaultExpiryWindow = 30 * 24 * time.Hour

// SnapshotSource reads the three alert sets from one consistent snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context, pharmacyID int64, today time.Time, window time.Duration) (Snapshot, error)
}

// Service derives read-only alert views from the stock ledger.
type Service struct {
	repo   SnapshotSource
	cache  *Cache
	window time.Duration
	now    func() time.Time
}

// NewService builds Service. cache may be nil; window falls back to the
// 30-day default when zero.
func NewService(repo SnapshotSource, cache *Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	return &Service{repo: repo, cache: cache, window: window, now: time.Now}
}

// Get returns the alert sets for one pharmacy. Both expiry bounds are
// inclusive and "today" is normalized to midnight UTC.
func (s *Service) Get(ctx context.Context, pharmacyID int64) (Snapshot, error) {
	today := startOfDay(s.now())
	if s.cache == nil {
		return s.repo.Snapshot(ctx, pharmacyID, today, s.window)
	}

	var snap Snapshot
	key := cacheKey(pharmacyID, today)
	err := s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (any, error) {
		return s.repo.Snapshot(ctx, pharmacyID, today, s.window)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Invalidate drops the cached snapshot, used after movements that callers
// want reflected immediately.
func (s *Service) Invalidate(ctx context.Context, pharmacyID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, cacheKey(pharmacyID, startOfDay(s.now())))
}

func cacheKey(pharmacyID int64, today time.Time) string {
	return fmt.Sprintf("alerts:%d:%s", pharmacyID, today.Format("2006-01-02"))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
