package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/internal/domain"
)

const eventKeyPrefix = "evt:"

// Badger 基于 badger 的嵌入式 KV 存储，value 为 JSON 编码的记录。
// 加密由 badger 自身完成（value log + key registry）。
type Badger struct {
	db *badger.DB
}

// BadgerOptions 打开参数
type BadgerOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；nil 时不加密
	InMemory      bool
}

// OpenBadger 打开 badger 存储
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("storage: badger path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 badger 要求设置 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Badger{db: db}, nil
}

func eventKey(id string) []byte { return []byte(eventKeyPrefix + id) }

func (b *Badger) Insert(_ context.Context, rec domain.TradeRecord) (bool, error) {
	inserted := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(eventKey(rec.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now()
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		inserted = true
		return txn.Set(eventKey(rec.ID), raw)
	})
	if err != nil {
		return false, errors.Wrapf(err, "insert %s", rec.ID)
	}
	return inserted, nil
}

func (b *Badger) Get(_ context.Context, id string) (*domain.TradeRecord, error) {
	var rec *domain.TradeRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func getRecord(txn *badger.Txn, id string) (*domain.TradeRecord, error) {
	item, err := txn.Get(eventKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec domain.TradeRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// update 读-改-写单条记录
func (b *Badger) update(id string, fn func(rec *domain.TradeRecord)) error {
	return b.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		fn(rec)
		rec.UpdatedAt = time.Now()
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(eventKey(id), raw)
	})
}

// scan 遍历全部事件
func (b *Badger) scan(fn func(rec *domain.TradeRecord)) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec domain.TradeRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			fn(&rec)
		}
		return nil
	})
}

func (b *Badger) ListUnhandled(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := b.scan(func(rec *domain.TradeRecord) {
		if !rec.Handled {
			out = append(out, *rec)
		}
	})
	if err != nil {
		return nil, err
	}
	sortByTime(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Badger) MarkHandled(_ context.Context, id string, upd HandledUpdate) error {
	return b.update(id, func(rec *domain.TradeRecord) { applyHandled(rec, upd) })
}

func (b *Badger) SetOwnBought(_ context.Context, id string, tokens float64) error {
	return b.update(id, func(rec *domain.TradeRecord) {
		rec.OwnBoughtTokens = tokens
		rec.HasOwnBought = true
	})
}

func (b *Badger) PreviousBuys(_ context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error) {
	var recs []domain.TradeRecord
	err := b.scan(func(rec *domain.TradeRecord) {
		if isLedgerBuy(rec, inst) {
			recs = append(recs, *rec)
		}
	})
	if err != nil {
		return nil, err
	}
	sortByTime(recs)
	out := make([]domain.PurchaseLedgerEntry, 0, len(recs))
	for i := range recs {
		out = append(out, ledgerEntry(&recs[i]))
	}
	return out, nil
}

func (b *Badger) Counts(_ context.Context) (Counts, error) {
	var c Counts
	err := b.scan(func(rec *domain.TradeRecord) {
		if rec.Handled {
			c.Handled++
		} else {
			c.Unhandled++
		}
	})
	return c, err
}

func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ParseKey 解析 32 字节加密密钥（hex 或 base64），空串返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	return b, nil
}
