package rtds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSubscribesAndDispatches(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotSub := make(chan SubscriptionRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req SubscriptionRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		gotSub <- req
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"activity","type":"trades","payload":{"proxyWallet":"0xabc","asset":"1","side":"BUY","price":"0.42","size":10}}`))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	got := make(chan *ActivityTrade, 1)
	cfg := DefaultClientConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(cfg, func(msg *Message) {
		if msg.Topic != TopicActivity {
			return
		}
		trade, err := ParseActivityTrade(msg.Payload)
		if err == nil {
			got <- trade
		}
	}, nil)
	require.NoError(t, c.Subscribe(Subscription{Topic: TopicActivity, Type: TypeTrades}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case req := <-gotSub:
		assert.Equal(t, ActionSubscribe, req.Action)
		require.Len(t, req.Subscriptions, 1)
		assert.Equal(t, TypeTrades, req.Subscriptions[0].Type)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到订阅请求")
	}
	select {
	case trade := <-got:
		assert.Equal(t, "0xabc", trade.ProxyWallet)
		assert.InDelta(t, 0.42, float64(trade.Price), 1e-9)
		assert.InDelta(t, 10, float64(trade.Size), 1e-9)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到成交推送")
	}
	assert.False(t, c.LastMessageAt().IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}
}
