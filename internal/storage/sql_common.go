package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

const recordColumns = `id, trader, type, asset, condition_id, side, price, size, usdc_size, ts,
title, outcome, tx_hash, handled, retry_count, status, reason, own_bought, updated_at`

// rowScanner 同时适配 database/sql 和 pgx 的行
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TradeRecord, error) {
	var (
		rec       domain.TradeRecord
		typ, side string
		status    string
		ts        int64
		updatedAt int64
		ownBought *float64
	)
	err := row.Scan(
		&rec.ID, &rec.Trader, &typ, &rec.Asset, &rec.ConditionID, &side,
		&rec.Price, &rec.Size, &rec.USDCSize, &ts,
		&rec.Title, &rec.Outcome, &rec.TransactionHash,
		&rec.Handled, &rec.RetryCount, &status, &rec.Reason, &ownBought, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Type = domain.ActivityType(typ)
	rec.Side = types.Side(side)
	rec.Status = domain.Status(status)
	rec.Timestamp = time.UnixMilli(ts)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	if ownBought != nil {
		rec.OwnBoughtTokens = *ownBought
		rec.HasOwnBought = true
	}
	return &rec, nil
}

func insertArgs(rec domain.TradeRecord, now time.Time) []any {
	var ownBought *float64
	if rec.HasOwnBought {
		v := rec.OwnBoughtTokens
		ownBought = &v
	}
	return []any{
		rec.ID, rec.Trader, string(rec.Type), rec.Asset, rec.ConditionID, string(rec.Side),
		rec.Price, rec.Size, rec.USDCSize, rec.Timestamp.UnixMilli(),
		rec.Title, rec.Outcome, rec.TransactionHash,
		rec.Handled, rec.RetryCount, string(rec.Status), rec.Reason, ownBought, now.UnixMilli(),
	}
}

// placeholders 生成 n 个占位符；dollar 为 true 时使用 $1 风格（postgres）
func placeholders(n int, dollar bool) string {
	parts := make([]string, n)
	for i := range parts {
		if dollar {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ",")
}
