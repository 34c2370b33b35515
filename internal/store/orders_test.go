package store

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/domain"
)

func openTestOrderStore(t *testing.T) *OrderStore {
	t.Helper()
	s, err := OpenOrderStore(filepath.Join(t.TempDir(), "orders"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(tradeID, trader string, status domain.OrderStatus) *domain.OrderRecord {
	return &domain.OrderRecord{
		SourceTradeID: tradeID,
		Trader:        trader,
		Market:        "0xcondition",
		TokenID:       "7000123",
		Side:          domain.SideBuy,
		Size:          decimal.NewFromInt(50),
		ClientID:      "client-" + tradeID,
		Status:        status,
	}
}

func TestOrderStorePutGet(t *testing.T) {
	s := openTestOrderStore(t)

	record := sampleRecord("0xtx1", "0xabc", domain.OrderStatusPending)
	require.NoError(t, s.Put(record))
	assert.False(t, record.UpdatedAt.IsZero(), "Put 应填充 UpdatedAt")

	got, err := s.Get("0xtx1")
	require.NoError(t, err)
	assert.Equal(t, record.SourceTradeID, got.SourceTradeID)
	assert.Equal(t, record.ClientID, got.ClientID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.True(t, got.Size.Equal(decimal.NewFromInt(50)))
}

func TestOrderStoreGetNotFound(t *testing.T) {
	s := openTestOrderStore(t)

	_, err := s.Get("0xmissing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderStoreOverwrite(t *testing.T) {
	s := openTestOrderStore(t)

	record := sampleRecord("0xtx1", "0xabc", domain.OrderStatusPending)
	require.NoError(t, s.Put(record))

	record.Status = domain.OrderStatusFilled
	record.OrderID = "0xorder1"
	require.NoError(t, s.Put(record))

	got, err := s.Get("0xtx1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.Equal(t, "0xorder1", got.OrderID)
}

func TestOrderStoreListPending(t *testing.T) {
	s := openTestOrderStore(t)

	require.NoError(t, s.Put(sampleRecord("0xtx1", "0xabc", domain.OrderStatusPending)))
	require.NoError(t, s.Put(sampleRecord("0xtx2", "0xabc", domain.OrderStatusFilled)))
	require.NoError(t, s.Put(sampleRecord("0xtx3", "0xabc", domain.OrderStatusFailed)))

	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "0xtx1", pending[0].SourceTradeID)
}

func TestOrderStoreListByTrader(t *testing.T) {
	s := openTestOrderStore(t)

	require.NoError(t, s.Put(sampleRecord("0xtx1", "0xAAA", domain.OrderStatusFilled)))
	require.NoError(t, s.Put(sampleRecord("0xtx2", "0xaaa", domain.OrderStatusPending)))
	require.NoError(t, s.Put(sampleRecord("0xtx3", "0xbbb", domain.OrderStatusFilled)))

	// 地址大小写不敏感
	records, err := s.ListByTrader("0xAaA")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// 重新打开后记录仍在（恰好一次语义依赖这一点）
func TestOrderStoreReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orders")

	s, err := OpenOrderStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(sampleRecord("0xtx1", "0xabc", domain.OrderStatusFilled)))
	require.NoError(t, s.Close())

	s2, err := OpenOrderStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get("0xtx1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
}
