package rtds

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RTDSWebSocketURL 实时数据推送地址
const RTDSWebSocketURL = "wss://ws-live-data.polymarket.com"

// 订阅主题
const (
	TopicActivity     = "activity"
	TypeTrades        = "trades"
	TypeOrdersMatched = "orders_matched"
)

// Message 服务端推送的消息
type Message struct {
	Topic        string          `json:"topic"`
	Type         string          `json:"type"`
	Timestamp    int64           `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	ConnectionID string          `json:"connection_id,omitempty"`
}

// SubscriptionAction 订阅动作
type SubscriptionAction string

const (
	ActionSubscribe   SubscriptionAction = "subscribe"
	ActionUnsubscribe SubscriptionAction = "unsubscribe"
)

// Subscription 单个订阅
type Subscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

// SubscriptionRequest 订阅/退订请求
type SubscriptionRequest struct {
	Action        SubscriptionAction `json:"action"`
	Subscriptions []Subscription     `json:"subscriptions"`
}

// Float 兼容数字和数字字符串
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		v, err := num.Float64()
		if err != nil {
			return err
		}
		*f = Float(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// ActivityTrade activity/trades 推送的成交
type ActivityTrade struct {
	ProxyWallet     string `json:"proxyWallet"`
	Asset           string `json:"asset"`
	ConditionID     string `json:"conditionId"`
	Side            string `json:"side"`
	Price           Float  `json:"price"`
	Size            Float  `json:"size"`
	Timestamp       int64  `json:"timestamp"`
	Slug            string `json:"slug"`
	Outcome         string `json:"outcome"`
	TransactionHash string `json:"transactionHash"`
}

// ParseActivityTrade 解析成交载荷
func ParseActivityTrade(payload json.RawMessage) (*ActivityTrade, error) {
	var t ActivityTrade
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
