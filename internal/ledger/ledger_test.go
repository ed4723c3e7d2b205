package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/storage"
)

func seedBuys(t *testing.T, store storage.TradeStore, inst domain.Instrument, amounts ...float64) {
	t.Helper()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i, amt := range amounts {
		rec := domain.TradeRecord{TradeEvent: domain.TradeEvent{
			ID:          inst.Asset + "-" + string(rune('a'+i)),
			Asset:       inst.Asset,
			ConditionID: inst.ConditionID,
			Side:        types.SideBuy,
			Type:        domain.ActivityTrade,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}}
		_, err := store.Insert(ctx, rec)
		require.NoError(t, err)
		v := amt
		require.NoError(t, store.MarkHandled(ctx, rec.ID, storage.HandledUpdate{Status: domain.StatusExecuted, OwnBoughtTokens: &v}))
	}
}

func TestApplySellPartial(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	inst := domain.Instrument{Asset: "tok", ConditionID: "c"}
	seedBuys(t, store, inst, 30, 10)

	l := New(store, nil)
	entries, err := l.Entries(ctx, inst)
	require.NoError(t, err)
	assert.InDelta(t, 40, TrackedQuantity(entries), 1e-9)

	require.NoError(t, l.ApplySell(ctx, entries, 0.25))
	entries, err = l.Entries(ctx, inst)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.InDelta(t, 22.5, entries[0].BoughtTokens, 1e-9)
	assert.InDelta(t, 7.5, entries[1].BoughtTokens, 1e-9)
	assert.InDelta(t, 30, TrackedQuantity(entries), 1e-9)
}

func TestApplySellFullExit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	inst := domain.Instrument{Asset: "tok", ConditionID: "c"}
	seedBuys(t, store, inst, 30, 10)

	l := New(store, nil)
	entries, err := l.Entries(ctx, inst)
	require.NoError(t, err)
	require.NoError(t, l.ApplySell(ctx, entries, 0.995))

	entries, err = l.Entries(ctx, inst)
	require.NoError(t, err)
	assert.Empty(t, entries, "清零后的条目不再计入台账")
	assert.Zero(t, TrackedQuantity(entries))
}

func TestScaledQuantityNeverNegative(t *testing.T) {
	assert.Equal(t, 10.0, ScaledQuantity(10, 0))
	assert.Equal(t, 10.0, ScaledQuantity(10, -0.5))
	assert.Equal(t, 0.0, ScaledQuantity(10, 0.99))
	assert.Equal(t, 0.0, ScaledQuantity(10, 1.7))
	assert.InDelta(t, 5, ScaledQuantity(10, 0.5), 1e-9)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex(4)
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("tok|c")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, km.Len(), "释放后条目应被回收")
}

func TestKeyedMutexDifferentKeysIndependent(t *testing.T) {
	km := NewKeyedMutex(1)
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("不同 key 不应互相阻塞")
	}
	unlockA()
	unlockA() // 重复调用无副作用
	assert.Zero(t, km.Len())
}
