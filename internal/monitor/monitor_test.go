package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/clob/rtds"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/storage"
	"github.com/betbot/copybot/pkg/clock"
)

const trader = "0xTraderAAA"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	acts  map[string][]Activity
	calls int
}

func (f *fakeSource) Activities(_ context.Context, user, _ string, _ int) ([]Activity, error) {
	f.calls++
	return f.acts[user], nil
}

func act(hash, side string, ts time.Time) Activity {
	return Activity{
		ProxyWallet: trader, Timestamp: ts.Unix(), ConditionID: "0xc", Type: "TRADE",
		Size: 20, USDCSize: 10, TransactionHash: hash, Price: 0.5, Asset: "42", Side: side,
	}
}

func TestPollOnce(t *testing.T) {
	src := &fakeSource{acts: map[string][]Activity{trader: {
		act("0x1", "BUY", now.Add(-time.Minute)),
		act("0x2", "SELL", now.Add(-48*time.Hour)),
		{ProxyWallet: trader, Timestamp: now.Unix(), Type: "REDEEM", Asset: "42"},
	}}}
	store := storage.NewMemory()
	m := New(Config{Traders: []string{trader}}, src, store, clock.NewFake(now), nil)

	n, err := m.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case <-m.Inserted():
	default:
		t.Fatal("写入新事件后应通知 worker")
	}

	fresh, err := store.Get(context.Background(), "0x1:42:BUY")
	require.NoError(t, err)
	assert.False(t, fresh.Handled)
	assert.Equal(t, "0xtraderaaa", fresh.Trader)

	old, err := store.Get(context.Background(), "0x2:42:SELL")
	require.NoError(t, err)
	assert.True(t, old.Handled)
	assert.Equal(t, "too old", old.Reason)

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Handled)
	assert.Equal(t, 1, counts.Unhandled)

	// 重复轮询不重复写入
	n, err = m.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventIDStable(t *testing.T) {
	a := Activity{ProxyWallet: trader, Timestamp: now.Unix(), Type: "TRADE", Asset: "42", Side: "buy", Size: 3}
	assert.Equal(t, a.EventID(), a.EventID())
	b := a
	b.Size = 4
	assert.NotEqual(t, a.EventID(), b.EventID())

	a.TransactionHash = "0xabc"
	assert.Equal(t, "0xabc:42:BUY", a.EventID())
}

func TestHandleRTDSWakesForTrackedWallet(t *testing.T) {
	m := New(Config{Traders: []string{trader}}, &fakeSource{}, storage.NewMemory(), clock.NewFake(now), nil)

	payload, err := json.Marshal(map[string]interface{}{"proxyWallet": "0xOther", "side": "BUY"})
	require.NoError(t, err)
	m.HandleRTDS(&rtds.Message{Topic: rtds.TopicActivity, Type: rtds.TypeTrades, Payload: payload})
	select {
	case <-m.wake.C():
		t.Fatal("未跟踪的钱包不应唤醒")
	default:
	}

	payload, err = json.Marshal(map[string]interface{}{"proxyWallet": "0xtraderaaa", "side": "BUY", "price": "0.5"})
	require.NoError(t, err)
	m.HandleRTDS(&rtds.Message{Topic: rtds.TopicActivity, Type: rtds.TypeTrades, Payload: payload})
	select {
	case <-m.wake.C():
	default:
		t.Fatal("跟踪的钱包应唤醒轮询")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ago    time.Duration
		status ActivityStatus
	}{
		{"1 小时", time.Hour, StatusVeryActive},
		{"12 小时", 12 * time.Hour, StatusActive},
		{"2 天", 48 * time.Hour, StatusInactive},
		{"5 天", 120 * time.Hour, StatusDead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Classify(trader, []Activity{{Timestamp: now.Add(-tt.ago).Unix()}}, now)
			assert.Equal(t, tt.status, rep.Status)
		})
	}

	rep := Classify(trader, []Activity{
		{Timestamp: now.Add(-time.Hour).Unix()},
		{Timestamp: now.Add(-30 * time.Hour).Unix()},
		{Timestamp: now.Add(-10 * 24 * time.Hour).Unix()},
	}, now)
	assert.Equal(t, 1, rep.Last24h)
	assert.Equal(t, 2, rep.Last7d)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, StatusDead, Classify(trader, nil, now).Status)
}

type fakePositions struct {
	byUser  map[string][]domain.OwnPosition
	balance float64
	calls   int
}

func (f *fakePositions) Positions(_ context.Context, user string) ([]domain.OwnPosition, error) {
	f.calls++
	return f.byUser[user], nil
}

func (f *fakePositions) Balance(context.Context, common.Address) (float64, error) {
	return f.balance, nil
}

type fakeExecutor struct {
	store *storage.Memory
	reqs  []executor.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	f.reqs = append(f.reqs, req)
	res := executor.Result{Status: domain.StatusExecuted}
	return res, f.store.MarkHandled(ctx, req.Event.ID, storage.HandledUpdate{Status: res.Status})
}

func TestWorkerDrainOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	inst := domain.Instrument{Asset: "42", ConditionID: "0xc"}

	insert := func(ev domain.TradeEvent) {
		_, err := store.Insert(ctx, domain.TradeRecord{TradeEvent: ev})
		require.NoError(t, err)
	}
	insert(domain.TradeEvent{ID: "e2", Trader: "0xtraderaaa", Type: domain.ActivityTrade, Asset: inst.Asset, ConditionID: inst.ConditionID, Side: types.SideSell, Timestamp: now})
	insert(domain.TradeEvent{ID: "e1", Trader: "0xtraderaaa", Type: domain.ActivityTrade, Asset: inst.Asset, ConditionID: inst.ConditionID, Side: types.SideBuy, Timestamp: now.Add(-time.Minute)})
	insert(domain.TradeEvent{ID: "e3", Trader: "0xtraderaaa", Type: domain.ActivitySplit, Asset: inst.Asset, Timestamp: now.Add(time.Minute)})

	pos := &fakePositions{
		balance: 250,
		byUser: map[string][]domain.OwnPosition{
			wallet.Hex():  {{Asset: "42", ConditionID: "0xc", Size: 7}},
			"0xtraderaaa": {{Asset: "42", ConditionID: "0xc", Size: 30}},
		},
	}
	exec := &fakeExecutor{store: store}
	w := NewWorker(store, exec, pos, wallet, nil)

	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, exec.reqs, 2)
	assert.Equal(t, "e1", exec.reqs[0].Event.ID, "按时间顺序处理")
	assert.Equal(t, domain.ConditionBuy, exec.reqs[0].Condition)
	assert.Equal(t, domain.ConditionSell, exec.reqs[1].Condition)
	assert.InDelta(t, 250, exec.reqs[0].OwnBalance, 1e-9)
	require.NotNil(t, exec.reqs[1].OwnPosition)
	assert.InDelta(t, 7, exec.reqs[1].OwnPosition.Size, 1e-9)
	require.NotNil(t, exec.reqs[1].TraderPosition)
	assert.InDelta(t, 30, exec.reqs[1].TraderPosition.Size, 1e-9)
	assert.Equal(t, 2, pos.calls, "自己和交易员各查询一次")

	split, err := store.Get(ctx, "e3")
	require.NoError(t, err)
	assert.True(t, split.Handled)
	assert.Equal(t, domain.StatusSkipped, split.Status)

	n, err = w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
