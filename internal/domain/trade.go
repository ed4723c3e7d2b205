package domain

import (
	"time"

	"github.com/betbot/copybot/clob/types"
)

// ActivityType 被跟单账户的活动类型
type ActivityType string

const (
	ActivityTrade  ActivityType = "TRADE"
	ActivityMerge  ActivityType = "MERGE"
	ActivitySplit  ActivityType = "SPLIT"
	ActivityRedeem ActivityType = "REDEEM"
)

// TradeEvent 被跟单账户的一次交易（外部来源，不可变）
type TradeEvent struct {
	ID              string       `json:"id"`
	Trader          string       `json:"trader"`
	Type            ActivityType `json:"type"`
	Asset           string       `json:"asset"`
	ConditionID     string       `json:"condition_id"`
	Side            types.Side   `json:"side"`
	Price           float64      `json:"price"`
	Size            float64      `json:"size"`
	USDCSize        float64      `json:"usdc_size"`
	Timestamp       time.Time    `json:"timestamp"`
	Title           string       `json:"title,omitempty"`
	Outcome         string       `json:"outcome,omitempty"`
	TransactionHash string       `json:"transaction_hash,omitempty"`
}

// Instrument 返回事件对应的交易标的
func (e TradeEvent) Instrument() Instrument {
	return Instrument{Asset: e.Asset, ConditionID: e.ConditionID}
}

// Instrument 由 (asset, conditionId) 唯一确定
type Instrument struct {
	Asset       string
	ConditionID string
}

// Key 用作 map/锁 的键
func (i Instrument) Key() string {
	return i.Asset + "|" + i.ConditionID
}

// Status 事件处理的最终状态
type Status string

const (
	StatusPending  Status = ""
	StatusExecuted Status = "executed"
	StatusSkipped  Status = "skipped"
	StatusPaused   Status = "paused"
)

// TradeRecord 持久化的事件记录
type TradeRecord struct {
	TradeEvent

	Handled    bool   `json:"handled"`
	RetryCount int    `json:"retry_count"` // 重试预算耗尽时记录实际消耗的次数
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`

	// OwnBoughtTokens 本条 BUY 事件为自己买入的 token 数（购买台账）
	OwnBoughtTokens float64   `json:"own_bought_tokens"`
	HasOwnBought    bool      `json:"has_own_bought"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PurchaseLedgerEntry 购买台账条目
type PurchaseLedgerEntry struct {
	TradeEventID string
	Asset        string
	ConditionID  string
	BoughtTokens float64
}

// Condition 执行策略
type Condition string

const (
	ConditionMerge Condition = "merge"
	ConditionBuy   Condition = "buy"
	ConditionSell  Condition = "sell"
)

// ConditionFor 根据活动推导执行策略，无法跟单的返回 false
func ConditionFor(e TradeEvent) (Condition, bool) {
	switch e.Type {
	case ActivityMerge:
		return ConditionMerge, true
	case ActivityTrade, "":
		switch e.Side {
		case types.SideBuy:
			return ConditionBuy, true
		case types.SideSell:
			return ConditionSell, true
		}
	}
	return "", false
}
