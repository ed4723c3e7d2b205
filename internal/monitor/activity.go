package monitor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/pkg/fetch"
	"github.com/betbot/copybot/pkg/pacing"
)

// Activity data-api /activity 的一条记录
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"`
	Size            float64 `json:"size"`
	USDCSize        float64 `json:"usdcSize"`
	TransactionHash string  `json:"transactionHash"`
	Price           float64 `json:"price"`
	Asset           string  `json:"asset"`
	Side            string  `json:"side"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Outcome         string  `json:"outcome"`
}

// eventNamespace 合成事件 ID 的命名空间
var eventNamespace = uuid.MustParse("6f1c1b9e-3c55-4f5e-9a41-2b7f0c6d9e10")

// EventID 同一笔链上交易在多次轮询中得到相同 ID
func (a Activity) EventID() string {
	side := strings.ToUpper(a.Side)
	if a.TransactionHash != "" {
		return a.TransactionHash + ":" + a.Asset + ":" + side
	}
	key := fmt.Sprintf("%s|%d|%s|%s|%s|%g", strings.ToLower(a.ProxyWallet), a.Timestamp, a.Type, a.Asset, side, a.Size)
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

// ToEvent 转换为交易事件
func (a Activity) ToEvent(trader string) domain.TradeEvent {
	return domain.TradeEvent{
		ID:              a.EventID(),
		Trader:          strings.ToLower(trader),
		Type:            domain.ActivityType(strings.ToUpper(a.Type)),
		Asset:           a.Asset,
		ConditionID:     a.ConditionID,
		Side:            types.Side(strings.ToUpper(a.Side)),
		Price:           a.Price,
		Size:            a.Size,
		USDCSize:        a.USDCSize,
		Timestamp:       time.Unix(a.Timestamp, 0).UTC(),
		Title:           a.Title,
		Outcome:         a.Outcome,
		TransactionHash: a.TransactionHash,
	}
}

// ActivityClient 拉取交易员活动
type ActivityClient struct {
	host  string
	reads fetch.Fetcher
}

func NewActivityClient(host string, reads fetch.Fetcher) *ActivityClient {
	return &ActivityClient{host: strings.TrimRight(host, "/"), reads: reads}
}

// Activities 最近的活动，按时间倒序。activityType 为空时不过滤。
func (c *ActivityClient) Activities(ctx context.Context, user, activityType string, limit int) ([]Activity, error) {
	q := url.Values{}
	q.Set("user", user)
	if activityType != "" {
		q.Set("type", activityType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Activity
	if err := c.reads.GetJSON(ctx, c.host+"/activity?"+q.Encode(), pacing.ClassRead, &out); err != nil {
		return nil, errors.Wrapf(err, "获取活动失败 user=%s", user)
	}
	return out, nil
}

// ActivityStatus 交易员活跃度
type ActivityStatus string

const (
	StatusVeryActive ActivityStatus = "very_active"
	StatusActive     ActivityStatus = "active"
	StatusInactive   ActivityStatus = "inactive"
	StatusDead       ActivityStatus = "dead"
)

// ActivityReport 单个交易员的活跃度报告
type ActivityReport struct {
	Address        string
	LastTrade      time.Time
	SinceLastTrade time.Duration
	Last24h        int
	Last7d         int
	Total          int
	Status         ActivityStatus
}

// Classify 根据最近成交判断活跃度：<6h very_active，<24h active，<72h inactive，其余 dead
func Classify(address string, trades []Activity, now time.Time) ActivityReport {
	rep := ActivityReport{Address: address, Total: len(trades), Status: StatusDead}
	if len(trades) == 0 {
		return rep
	}
	var last int64
	for _, t := range trades {
		if t.Timestamp > last {
			last = t.Timestamp
		}
		ts := time.Unix(t.Timestamp, 0)
		if now.Sub(ts) <= 24*time.Hour {
			rep.Last24h++
		}
		if now.Sub(ts) <= 7*24*time.Hour {
			rep.Last7d++
		}
	}
	rep.LastTrade = time.Unix(last, 0).UTC()
	rep.SinceLastTrade = now.Sub(rep.LastTrade)
	switch {
	case rep.SinceLastTrade < 6*time.Hour:
		rep.Status = StatusVeryActive
	case rep.SinceLastTrade < 24*time.Hour:
		rep.Status = StatusActive
	case rep.SinceLastTrade < 72*time.Hour:
		rep.Status = StatusInactive
	}
	return rep
}
