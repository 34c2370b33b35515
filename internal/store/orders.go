// Package store 提供跟单状态的持久化存储
package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/copybot/internal/domain"
)

// ErrOrderNotFound 订单记录不存在
var ErrOrderNotFound = errors.New("order record not found")

const orderKeyPrefix = "order:"

// OrderStore 订单记录存储（Badger）
// 以 source_trade_id 为主键，提交前先写入 pending 记录，
// 崩溃重启后据此识别已处理过的交易，保证恰好一次的提交意图
type OrderStore struct {
	db *badger.DB
}

// OpenOrderStore 打开订单存储
func OpenOrderStore(path string) (*OrderStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path is required")
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &OrderStore{db: db}, nil
}

// Close 关闭存储
func (s *OrderStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func orderKey(tradeID string) []byte {
	return []byte(orderKeyPrefix + tradeID)
}

// Put 写入订单记录（覆盖同键旧值）
func (s *OrderStore) Put(record *domain.OrderRecord) error {
	record.UpdatedAt = time.Now()
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(orderKey(record.SourceTradeID), data)
	})
}

// Get 按源交易 ID 查询订单记录
func (s *OrderStore) Get(tradeID string) (*domain.OrderRecord, error) {
	var record domain.OrderRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(orderKey(tradeID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPending 列出所有非最终状态的订单记录（重启后对账用）
func (s *OrderStore) ListPending() ([]*domain.OrderRecord, error) {
	var pending []*domain.OrderRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(orderKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record domain.OrderRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if !record.IsFinal() {
					pending = append(pending, &record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// ListByTrader 列出某交易员的全部订单记录
func (s *OrderStore) ListByTrader(trader string) ([]*domain.OrderRecord, error) {
	trader = strings.ToLower(trader)
	var records []*domain.OrderRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(orderKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record domain.OrderRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if strings.ToLower(record.Trader) == trader {
					records = append(records, &record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
