package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/betbot/copybot/internal/domain"
)

// Memory 进程内存储，用于 dry-run 和测试
type Memory struct {
	mu      sync.RWMutex
	records map[string]*domain.TradeRecord
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*domain.TradeRecord)}
}

func (m *Memory) Insert(_ context.Context, rec domain.TradeRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return false, nil
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	m.records[rec.ID] = &rec
	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *Memory) ListUnhandled(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	m.mu.RLock()
	var out []domain.TradeRecord
	for _, rec := range m.records {
		if !rec.Handled {
			out = append(out, *rec)
		}
	}
	m.mu.RUnlock()
	sortByTime(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkHandled(_ context.Context, id string, upd HandledUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	applyHandled(rec, upd)
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetOwnBought(_ context.Context, id string, tokens float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.OwnBoughtTokens = tokens
	rec.HasOwnBought = true
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) PreviousBuys(_ context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error) {
	m.mu.RLock()
	var recs []domain.TradeRecord
	for _, rec := range m.records {
		if isLedgerBuy(rec, inst) {
			recs = append(recs, *rec)
		}
	}
	m.mu.RUnlock()
	sortByTime(recs)
	out := make([]domain.PurchaseLedgerEntry, 0, len(recs))
	for i := range recs {
		out = append(out, ledgerEntry(&recs[i]))
	}
	return out, nil
}

func (m *Memory) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var c Counts
	for _, rec := range m.records {
		if rec.Handled {
			c.Handled++
		} else {
			c.Unhandled++
		}
	}
	return c, nil
}

func (m *Memory) Close() error { return nil }

func sortByTime(recs []domain.TradeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
}
