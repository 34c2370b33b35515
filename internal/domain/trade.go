package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 交易方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid 检查方向是否有效
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// SourceTrade 跟单源交易（被跟踪交易员执行的一笔交易）
// 从数据 API 或 WebSocket 观测到后不可变
type SourceTrade struct {
	ID        string          // 交易 ID（trader+market+time 唯一，用于去重）
	Trader    string          // 交易员钱包地址
	Market    string          // 市场 condition_id
	TokenID   string          // 具体 outcome 的 token ID
	Category  string          // 市场分类（Politics / Sports / Crypto ...）
	Side      Side            // 交易方向
	Price     decimal.Decimal // 成交价格（0 < p < 1）
	Amount    decimal.Decimal // 源交易名义金额（USDC）
	Size      decimal.Decimal // 成交份额数量
	Title     string          // 市场问题文本（日志用）
	Outcome   string          // outcome 名称（Yes / No / ...）
	Timestamp time.Time       // 成交时间
}

// Key 返回交易的唯一键（用于去重）
func (t *SourceTrade) Key() string {
	return t.ID
}
