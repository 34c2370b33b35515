package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 跟单订单状态
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending" // 已持久化待提交 / 已提交未成交
	OrderStatusFilled  OrderStatus = "filled"  // 已成交
	OrderStatusFailed  OrderStatus = "failed"  // 提交失败（重试耗尽或被交易所拒绝）
)

// OrderRecord 跟单订单记录
// 以 SourceTradeID 为主键持久化，保证同一笔源交易只会被复制一次：
// 提交前先落盘 pending 记录，崩溃重启后据此恢复而不是重新提交
type OrderRecord struct {
	SourceTradeID string          `json:"source_trade_id"` // 关联的源交易 ID（主键）
	Trader        string          `json:"trader"`          // 被跟踪的交易员地址
	Market        string          `json:"market"`          // 市场 condition_id
	TokenID       string          `json:"token_id"`        // token ID
	Side          Side            `json:"side"`            // 方向
	Size          decimal.Decimal `json:"size"`            // 计算出的跟单金额（USDC）
	ClientID      string          `json:"client_id"`       // 本地生成的幂等 ID（uuid）
	OrderID       string          `json:"order_id"`        // 交易所返回的订单 ID（成功后填充）
	Status        OrderStatus     `json:"status"`          // 当前状态
	FailReason    string          `json:"fail_reason"`     // 失败原因（status=failed 时填充）
	RetryCount    int             `json:"retry_count"`     // 已重试次数
	CreatedAt     time.Time       `json:"created_at"`      // 记录创建时间
	UpdatedAt     time.Time       `json:"updated_at"`      // 最后一次状态变更时间
}

// IsFinal 检查订单是否为最终状态（filled/failed 不会再变化）
func (r *OrderRecord) IsFinal() bool {
	return r.Status == OrderStatusFilled || r.Status == OrderStatusFailed
}
