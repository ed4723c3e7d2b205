// Package monitor 轮询被跟单账户的活动写入事件存储，并由单个 worker 串行执行。
package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/rtds"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/pkg/clock"
	"github.com/betbot/copybot/pkg/sigchan"
)

// Store 监控需要的存储能力
type Store interface {
	Insert(ctx context.Context, rec domain.TradeRecord) (bool, error)
}

// ActivitySource 活动来源
type ActivitySource interface {
	Activities(ctx context.Context, user, activityType string, limit int) ([]Activity, error)
}

// Config 轮询配置
type Config struct {
	Traders      []string
	PollInterval time.Duration
	// TooOld 首次见到时已超过该时长的活动直接标记为已处理
	TooOld time.Duration
	Limit  int
}

// Monitor 活动轮询器
type Monitor struct {
	cfg     Config
	source  ActivitySource
	store   Store
	tracked map[string]bool
	wake    *sigchan.Chan
	// inserted 有新事件写入时通知 worker
	inserted *sigchan.Chan
	clock    clock.Clock
	log      *logrus.Entry
}

// New 创建轮询器
func New(cfg Config, source ActivitySource, store Store, clk clock.Clock, log *logrus.Entry) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TooOld <= 0 {
		cfg.TooOld = 24 * time.Hour
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	tracked := make(map[string]bool, len(cfg.Traders))
	for _, t := range cfg.Traders {
		tracked[strings.ToLower(t)] = true
	}
	return &Monitor{
		cfg:      cfg,
		source:   source,
		store:    store,
		tracked:  tracked,
		wake:     sigchan.New(1),
		inserted: sigchan.New(1),
		clock:    clk,
		log:      log.WithField("component", "monitor"),
	}
}

// Inserted 有新事件写入时触发
func (m *Monitor) Inserted() <-chan struct{} {
	return m.inserted.C()
}

// Wake 提前触发一次轮询
func (m *Monitor) Wake() {
	m.wake.Emit()
}

// HandleRTDS 跟踪的钱包有成交推送时唤醒轮询
func (m *Monitor) HandleRTDS(msg *rtds.Message) {
	if msg.Topic != rtds.TopicActivity {
		return
	}
	trade, err := rtds.ParseActivityTrade(msg.Payload)
	if err != nil {
		m.log.Debugf("解析推送失败: %v", err)
		return
	}
	if m.tracked[strings.ToLower(trade.ProxyWallet)] {
		m.log.Debugf("推送: %s %s %.2f @ %.4f", trade.ProxyWallet, trade.Side, float64(trade.Size), float64(trade.Price))
		m.Wake()
	}
}

// PollOnce 拉取所有交易员的活动，返回新写入的事件数
func (m *Monitor) PollOnce(ctx context.Context) (int, error) {
	inserted := 0
	cutoff := m.clock.Now().Add(-m.cfg.TooOld)
	for _, trader := range m.cfg.Traders {
		acts, err := m.source.Activities(ctx, trader, "", m.cfg.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			m.log.Warnf("拉取 %s 活动失败: %v", trader, err)
			continue
		}
		for _, a := range acts {
			ev := a.ToEvent(trader)
			if _, ok := domain.ConditionFor(ev); !ok {
				continue
			}
			rec := domain.TradeRecord{TradeEvent: ev}
			if ev.Timestamp.Before(cutoff) {
				rec.Handled = true
				rec.Status = domain.StatusSkipped
				rec.Reason = "too old"
			}
			ok, err := m.store.Insert(ctx, rec)
			if err != nil {
				return inserted, err
			}
			if ok && !rec.Handled {
				inserted++
				m.log.Infof("新事件: %s %s %s $%.2f @ %.4f", trader, ev.Type, ev.Side, ev.USDCSize, ev.Price)
			}
		}
	}
	if inserted > 0 {
		m.inserted.Emit()
	}
	return inserted, nil
}

// Run 按 PollInterval 轮询，Wake 可提前触发
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infof("开始监控 %d 个交易员，间隔 %v", len(m.cfg.Traders), m.cfg.PollInterval)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := m.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Errorf("轮询失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.wake.C():
		}
	}
}
