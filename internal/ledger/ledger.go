// Package ledger 维护购买台账：每个标的上自己因跟单买入而持有的 token 数量。
package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
)

// FullExitThreshold 卖出比例达到该值时台账直接清零
const FullExitThreshold = 0.99

// Store 台账依赖的存储能力
type Store interface {
	PreviousBuys(ctx context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error)
	SetOwnBought(ctx context.Context, id string, tokens float64) error
}

// Ledger 购买台账
type Ledger struct {
	store Store
	locks *KeyedMutex
	log   *logrus.Entry
}

// New 创建台账
func New(store Store, log *logrus.Entry) *Ledger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ledger{
		store: store,
		locks: NewKeyedMutex(32),
		log:   log.WithField("component", "ledger"),
	}
}

// Lock 串行化同一标的上的读-改-写
func (l *Ledger) Lock(inst domain.Instrument) func() {
	return l.locks.Lock(inst.Key())
}

// Entries 返回标的上的台账条目
func (l *Ledger) Entries(ctx context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error) {
	entries, err := l.store.PreviousBuys(ctx, inst)
	if err != nil {
		return nil, errors.Wrapf(err, "load ledger %s", inst.Key())
	}
	return entries, nil
}

// TrackedQuantity 台账总量
func TrackedQuantity(entries []domain.PurchaseLedgerEntry) float64 {
	total := 0.0
	for _, e := range entries {
		total += e.BoughtTokens
	}
	return total
}

// ScaledQuantity 卖出 fraction 后单条台账剩余量
func ScaledQuantity(bought, fraction float64) float64 {
	if fraction >= FullExitThreshold {
		return 0
	}
	if fraction <= 0 {
		return bought
	}
	v := bought * (1 - fraction)
	if v < 0 {
		return 0
	}
	return v
}

// ApplySell 卖出 soldFraction 比例的已跟踪持仓后更新台账。
// soldFraction >= 0.99 视为全部卖出，全部条目清零；否则按 (1-soldFraction) 等比缩减。
func (l *Ledger) ApplySell(ctx context.Context, entries []domain.PurchaseLedgerEntry, soldFraction float64) error {
	if len(entries) == 0 || soldFraction <= 0 {
		return nil
	}
	for _, e := range entries {
		next := ScaledQuantity(e.BoughtTokens, soldFraction)
		if err := l.store.SetOwnBought(ctx, e.TradeEventID, next); err != nil {
			return errors.Wrapf(err, "update ledger entry %s", e.TradeEventID)
		}
	}
	if soldFraction >= FullExitThreshold {
		l.log.Infof("台账清零: asset=%s entries=%d", entries[0].Asset, len(entries))
	} else {
		l.log.Infof("台账缩减: asset=%s entries=%d fraction=%.2f%%", entries[0].Asset, len(entries), soldFraction*100)
	}
	return nil
}
