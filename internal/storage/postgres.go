package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

// Postgres 基于 pgx 连接池的存储，适合多实例共享
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres 连接数据库并执行迁移
func OpenPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse config")
	}
	config.MaxConns = 8
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS trade_events (
  id TEXT PRIMARY KEY,
  trader TEXT NOT NULL,
  type TEXT NOT NULL,
  asset TEXT NOT NULL,
  condition_id TEXT NOT NULL,
  side TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL DEFAULT 0,
  size DOUBLE PRECISION NOT NULL DEFAULT 0,
  usdc_size DOUBLE PRECISION NOT NULL DEFAULT 0,
  ts BIGINT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL DEFAULT '',
  tx_hash TEXT NOT NULL DEFAULT '',
  handled BOOLEAN NOT NULL DEFAULT FALSE,
  retry_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL DEFAULT '',
  own_bought DOUBLE PRECISION,
  updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_pending ON trade_events(handled, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_instrument ON trade_events(asset, condition_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %s", firstLine(stmt))
		}
	}
	return nil
}

func (s *Postgres) Insert(ctx context.Context, rec domain.TradeRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (`+recordColumns+`) VALUES (`+placeholders(19, true)+`) ON CONFLICT (id) DO NOTHING`,
		insertArgs(rec, time.Now())...)
	if err != nil {
		return false, errors.Wrapf(err, "insert %s", rec.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM trade_events WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *Postgres) ListUnhandled(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM trade_events WHERE handled=FALSE ORDER BY ts ASC, id ASC`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
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

func (s *Postgres) MarkHandled(ctx context.Context, id string, upd HandledUpdate) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE trade_events
SET handled=TRUE, status=$1, reason=$2,
    retry_count=COALESCE($3, retry_count),
    own_bought=COALESCE($4, own_bought),
    updated_at=$5
WHERE id=$6
`, string(upd.Status), upd.Reason, upd.RetryCount, upd.OwnBoughtTokens, time.Now().UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "update %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SetOwnBought(ctx context.Context, id string, tokens float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_events SET own_bought=$1, updated_at=$2 WHERE id=$3`,
		tokens, time.Now().UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "update %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) PreviousBuys(ctx context.Context, inst domain.Instrument) ([]domain.PurchaseLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, own_bought
FROM trade_events
WHERE handled=TRUE AND side=$1 AND asset=$2 AND condition_id=$3 AND own_bought > 0
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

func (s *Postgres) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE handled), COUNT(*) FILTER (WHERE NOT handled)
FROM trade_events
`).Scan(&c.Handled, &c.Unhandled)
	return c, err
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
