package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

// SQLite 基于 modernc.org/sqlite 的存储（默认驱动）
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）数据库文件并执行迁移
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "data/copybot.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS trade_events (
  id TEXT PRIMARY KEY,
  trader TEXT NOT NULL,
  type TEXT NOT NULL,
  asset TEXT NOT NULL,
  condition_id TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL DEFAULT 0,
  size REAL NOT NULL DEFAULT 0,
  usdc_size REAL NOT NULL DEFAULT 0,
  ts INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL DEFAULT '',
  tx_hash TEXT NOT NULL DEFAULT '',
  handled INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL DEFAULT '',
  own_bought REAL,           -- NULL 表示未记录买入数量
  updated_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_pending ON trade_events(handled, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_instrument ON trade_events(asset, condition_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %s", firstLine(stmt))
		}
	}
	return nil
}

func (s *SQLite) Insert(ctx context.Context, rec domain.TradeRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trade_events (`+recordColumns+`) VALUES (`+placeholders(19, false)+`)`,
		insertArgs(rec, time.Now())...)
	if err != nil {
		return false, errors.Wrapf(err, "insert %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM trade_events WHERE id=?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLite) ListUnhandled(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM trade_events
WHERE handled=0
ORDER BY ts ASC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLite) MarkHandled(ctx context.Context, id string, upd HandledUpdate) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE trade_events
SET handled=1, status=?, reason=?,
    retry_count=COALESCE(?, retry_count),
    own_bought=COALESCE(?, own_bought),
    updated_at=?
WHERE id=?
`, string(upd.Status), upd.Reason, upd.RetryCount, upd.OwnBoughtTokens, time.Now().UnixMilli(), id)
	return checkAffected(res, err, id)
}

func (s *SQLite) SetOwnBought(ctx context.Context, id string, tokens float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trade_events SET own_bought=?, updated_at=? WHERE id=?`,
		tokens, time.Now().UnixMilli(), id)
	return checkAffected(res, err, id)
}

func (s *SQLite) PreviousBuys(ctx context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, own_bought
FROM trade_events
WHERE handled=1 AND side=? AND asset=? AND condition_id=? AND own_bought > 0
ORDER BY ts ASC, id ASC
`, string(types.SideBuy), inst.Asset, inst.ConditionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PurchaseLedgerEntry
	for rows.Next() {
		e := domain.PurchaseLedgerEntry{Asset: inst.Asset, ConditionID: inst.ConditionID}
		if err := rows.Scan(&e.TradeEventID, &e.BoughtTokens); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(CASE WHEN handled=1 THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN handled=0 THEN 1 ELSE 0 END), 0)
FROM trade_events
`).Scan(&c.Handled, &c.Unhandled)
	return c, err
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func checkAffected(res sql.Result, err error, id string) error {
	if err != nil {
		return errors.Wrapf(err, "update %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
