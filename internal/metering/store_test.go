package metering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// memoryStore implements UsageStore and RateWindowStore with the same atomicity the
// Postgres store provides: every mutation happens under one lock acquisition.
type memoryStore struct {
	mu           sync.Mutex
	limits       map[string]models.QuotaLimits
	windows      map[string]int64
	daily        map[string]int64
	priorMonthly map[string]int64
	err          error
	block        bool
	calls        int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		limits:       make(map[string]models.QuotaLimits),
		windows:      make(map[string]int64),
		daily:        make(map[string]int64),
		priorMonthly: make(map[string]int64),
	}
}

func dayKey(keyID string, day time.Time) string {
	return keyID + "|" + models.DayStart(day).Format("2006-01-02")
}

func (m *memoryStore) enter(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	block, err := m.block, m.err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *memoryStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memoryStore) dailyCount(keyID string, day time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daily[dayKey(keyID, day)]
}

func (m *memoryStore) GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error) {
	if err := m.enter(ctx); err != nil {
		return models.QuotaLimits{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	limits, ok := m.limits[keyID]
	if !ok {
		return models.QuotaLimits{}, models.ErrNotFound
	}
	return limits, nil
}

func (m *memoryStore) IncrementRateWindow(ctx context.Context, keyID string, windowStart time.Time) (int64, error) {
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fmt.Sprintf("%s|%d", keyID, windowStart.Unix())
	m.windows[k]++
	return m.windows[k], nil
}

func (m *memoryStore) GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error) {
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daily[dayKey(keyID, day)], nil
}

func (m *memoryStore) GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error) {
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := m.priorMonthly[keyID]
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		sum += m.daily[dayKey(keyID, d)]
	}
	return sum, nil
}

func (m *memoryStore) IncrementDaily(ctx context.Context, keyID string, day time.Time, limit int) (int64, error) {
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey(keyID, day)
	if m.daily[k] >= int64(limit) {
		return 0, models.ErrCounterAtLimit
	}
	m.daily[k]++
	return m.daily[k], nil
}
