// Package storage 持久化被跟单账户的交易事件及其处理结果。
//
// 每条事件只会被标记 handled 一次；BUY 事件上附带的 OwnBoughtTokens
// 构成购买台账，卖出时按比例缩减。
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("storage: record not found")

// HandledUpdate MarkHandled 时一并写入的字段
type HandledUpdate struct {
	Status          domain.Status
	Reason          string
	RetryCount      *int
	OwnBoughtTokens *float64
}

// Counts 已处理/未处理的记录数量
type Counts struct {
	Handled   int `json:"handled"`
	Unhandled int `json:"unhandled"`
}

// TradeStore 事件存储
type TradeStore interface {
	// Insert 插入新事件；已存在时返回 false 且不修改原记录
	Insert(ctx context.Context, rec domain.TradeRecord) (bool, error)
	Get(ctx context.Context, id string) (*domain.TradeRecord, error)
	// ListUnhandled 按时间升序返回未处理事件，limit<=0 表示不限
	ListUnhandled(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	MarkHandled(ctx context.Context, id string, upd HandledUpdate) error
	SetOwnBought(ctx context.Context, id string, tokens float64) error
	// PreviousBuys 同一标的上已处理且买入数量 > 0 的 BUY 记录
	PreviousBuys(ctx context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error)
	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// Driver 存储后端
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverBadger   Driver = "badger"
	DriverPostgres Driver = "postgres"
)

// Options 打开存储所需参数
type Options struct {
	Driver Driver
	// DSN sqlite 为文件路径，badger 为目录，postgres 为连接串
	DSN string
	// EncryptionKey 仅 badger 使用（32 字节，hex 或 base64）
	EncryptionKey string
}

// Open 按驱动打开存储
func Open(ctx context.Context, opts Options) (TradeStore, error) {
	switch Driver(strings.ToLower(string(opts.Driver))) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.DSN)
	case DriverBadger:
		key, err := ParseKey(opts.EncryptionKey)
		if err != nil {
			return nil, errors.Wrap(err, "storage: badger encryption key")
		}
		return OpenBadger(BadgerOptions{Path: opts.DSN, EncryptionKey: key})
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("storage: 不支持的驱动 %q", opts.Driver)
	}
}

// isLedgerBuy 判断记录是否计入购买台账
func isLedgerBuy(rec *domain.TradeRecord, inst domain.Instrument) bool {
	return rec.Handled &&
		rec.Side == types.SideBuy &&
		rec.HasOwnBought &&
		rec.OwnBoughtTokens > 0 &&
		rec.Asset == inst.Asset &&
		rec.ConditionID == inst.ConditionID
}

func ledgerEntry(rec *domain.TradeRecord) domain.PurchaseLedgerEntry {
	return domain.PurchaseLedgerEntry{
		TradeEventID: rec.ID,
		Asset:        rec.Asset,
		ConditionID:  rec.ConditionID,
		BoughtTokens: rec.OwnBoughtTokens,
	}
}

// applyHandled 把更新写入内存中的记录（memory/badger 共用）
func applyHandled(rec *domain.TradeRecord, upd HandledUpdate) {
	rec.Handled = true
	rec.Status = upd.Status
	rec.Reason = upd.Reason
	if upd.RetryCount != nil {
		rec.RetryCount = *upd.RetryCount
	}
	if upd.OwnBoughtTokens != nil {
		rec.OwnBoughtTokens = *upd.OwnBoughtTokens
		rec.HasOwnBought = true
	}
}
