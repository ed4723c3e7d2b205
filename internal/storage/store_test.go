package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

func record(id string, side types.Side, asset, cond string, ts time.Time) domain.TradeRecord {
	return domain.TradeRecord{TradeEvent: domain.TradeEvent{
		ID:          id,
		Trader:      "0xtrader",
		Type:        domain.ActivityTrade,
		Asset:       asset,
		ConditionID: cond,
		Side:        side,
		Price:       0.5,
		Size:        10,
		USDCSize:    5,
		Timestamp:   ts,
	}}
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

func runStoreContract(t *testing.T, s TradeStore) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	ok, err := s.Insert(ctx, record("b", types.SideBuy, "tok", "cond", base.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Insert(ctx, record("a", types.SideBuy, "tok", "cond", base))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Insert(ctx, record("c", types.SideSell, "tok", "cond", base.Add(3*time.Second)))
	require.NoError(t, err)
	assert.True(t, ok)

	// 重复插入不覆盖
	dup := record("a", types.SideSell, "other", "x", base)
	ok, err = s.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.SideBuy, got.Side)
	assert.Equal(t, "tok", got.Asset)
	assert.Equal(t, base.UnixMilli(), got.Timestamp.UnixMilli())
	assert.False(t, got.HasOwnBought)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := s.ListUnhandled(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	limited, err := s.ListUnhandled(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, s.MarkHandled(ctx, "a", HandledUpdate{Status: domain.StatusExecuted, OwnBoughtTokens: floatPtr(20)}))
	require.NoError(t, s.MarkHandled(ctx, "b", HandledUpdate{Status: domain.StatusExecuted, OwnBoughtTokens: floatPtr(20)}))
	require.NoError(t, s.MarkHandled(ctx, "c", HandledUpdate{Status: domain.StatusSkipped, Reason: "retry budget exhausted", RetryCount: intPtr(3)}))
	assert.ErrorIs(t, s.MarkHandled(ctx, "missing", HandledUpdate{}), ErrNotFound)

	got, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, got.Handled)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, domain.StatusSkipped, got.Status)
	assert.Equal(t, "retry budget exhausted", got.Reason)

	buys, err := s.PreviousBuys(ctx, domain.Instrument{Asset: "tok", ConditionID: "cond"})
	require.NoError(t, err)
	require.Len(t, buys, 2)
	assert.Equal(t, "a", buys[0].TradeEventID)
	assert.InDelta(t, 20, buys[0].BoughtTokens, 1e-9)

	// 清零后不再计入台账
	require.NoError(t, s.SetOwnBought(ctx, "a", 0))
	buys, err = s.PreviousBuys(ctx, domain.Instrument{Asset: "tok", ConditionID: "cond"})
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "b", buys[0].TradeEventID)

	other, err := s.PreviousBuys(ctx, domain.Instrument{Asset: "tok", ConditionID: "other"})
	require.NoError(t, err)
	assert.Empty(t, other)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Handled: 3, Unhandled: 0}, counts)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "copybot.db"))
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestOpenByDriver(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(context.Background(), Options{Driver: "mongo"})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	hexKey := "0x" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	key, err = ParseKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
