package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/betbot/copybot/internal/domain"
)

// HistoryStore 跟单成交历史（SQLite）
// 订单存储只保留恰好一次语义需要的键值记录，
// 历史库面向查询：运维接口的绩效报表从这里聚合
type HistoryStore struct {
	db *sql.DB
}

// CopyFill 一笔已成交的跟单
type CopyFill struct {
	SourceTradeID string
	Trader        string
	Market        string
	Title         string
	Outcome       string
	Side          domain.Side
	Size          decimal.Decimal // 跟单金额（USDC）
	Price         decimal.Decimal // 源交易价格
	OrderID       string
	FilledAt      time.Time
}

// TraderReport 单个交易员的跟单绩效
type TraderReport struct {
	Trader      string
	FillCount   int
	TotalCopied decimal.Decimal
	FirstFill   time.Time
	LastFill    time.Time
}

const historySchema = `
CREATE TABLE IF NOT EXISTS copy_fills (
	source_trade_id TEXT PRIMARY KEY,
	trader          TEXT NOT NULL,
	market          TEXT NOT NULL,
	title           TEXT,
	outcome         TEXT,
	side            TEXT NOT NULL,
	size            TEXT NOT NULL,
	price           TEXT NOT NULL,
	order_id        TEXT,
	filled_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_copy_fills_trader ON copy_fills(trader);
CREATE INDEX IF NOT EXISTS idx_copy_fills_filled_at ON copy_fills(filled_at);
`

// OpenHistoryStore 打开历史库并初始化表结构
func OpenHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开历史库失败: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化历史库表结构失败: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close 关闭历史库
func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordFill 记录一笔成交（按 source_trade_id 幂等）
func (s *HistoryStore) RecordFill(ctx context.Context, fill *CopyFill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_fills (source_trade_id, trader, market, title, outcome, side, size, price, order_id, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_trade_id) DO NOTHING`,
		fill.SourceTradeID,
		strings.ToLower(fill.Trader),
		fill.Market,
		fill.Title,
		fill.Outcome,
		string(fill.Side),
		fill.Size.String(),
		fill.Price.String(),
		fill.OrderID,
		fill.FilledAt.Unix(),
	)
	return err
}

// RecentFills 返回最近的成交记录
func (s *HistoryStore) RecentFills(ctx context.Context, limit int) ([]CopyFill, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_trade_id, trader, market, title, outcome, side, size, price, order_id, filled_at
		FROM copy_fills ORDER BY filled_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []CopyFill
	for rows.Next() {
		var f CopyFill
		var side, size, price string
		var filledAt int64
		if err := rows.Scan(&f.SourceTradeID, &f.Trader, &f.Market, &f.Title, &f.Outcome, &side, &size, &price, &f.OrderID, &filledAt); err != nil {
			return nil, err
		}
		f.Side = domain.Side(side)
		f.Size, err = decimal.NewFromString(size)
		if err != nil {
			return nil, fmt.Errorf("历史记录 %s 金额非法: %w", f.SourceTradeID, err)
		}
		f.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("历史记录 %s 价格非法: %w", f.SourceTradeID, err)
		}
		f.FilledAt = time.Unix(filledAt, 0)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Report 按交易员聚合跟单绩效
// since 为零值时统计全部历史
func (s *HistoryStore) Report(ctx context.Context, since time.Time) ([]TraderReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trader, COUNT(*), MIN(filled_at), MAX(filled_at)
		FROM copy_fills WHERE filled_at >= ?
		GROUP BY trader ORDER BY COUNT(*) DESC`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []TraderReport
	for rows.Next() {
		var r TraderReport
		var first, last int64
		if err := rows.Scan(&r.Trader, &r.FillCount, &first, &last); err != nil {
			return nil, err
		}
		r.FirstFill = time.Unix(first, 0)
		r.LastFill = time.Unix(last, 0)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// decimal 金额存为文本，求和在应用层完成避免浮点误差
	for i := range reports {
		total, err := s.sumCopied(ctx, reports[i].Trader, since)
		if err != nil {
			return nil, err
		}
		reports[i].TotalCopied = total
	}

	return reports, nil
}

func (s *HistoryStore) sumCopied(ctx context.Context, trader string, since time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT size FROM copy_fills WHERE trader = ? AND filled_at >= ?`,
		trader, since.Unix())
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var size string
		if err := rows.Scan(&size); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(size)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}
