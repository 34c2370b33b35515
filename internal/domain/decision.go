package domain

import "github.com/shopspring/decimal"

// RejectReason 跟单拒绝原因
// 拒绝不是错误：正常的过滤结果，按 info 级别记录
type RejectReason string

const (
	RejectInvalidPrice         RejectReason = "invalid_price"           // 价格非正，无法换算份额
	RejectBelowMinTraderAmount RejectReason = "below_min_trader_amount" // 源交易金额低于 min_trader_amount
	RejectCategoryNotAllowed   RejectReason = "category_not_allowed"    // 分类不在白名单内
	RejectOddsAboveThreshold   RejectReason = "odds_above_threshold"    // 源价格高于赔率上限
	RejectSellNotCopied        RejectReason = "sell_not_copied"         // copy_sells=false 时的卖单
	RejectDailyCapReached      RejectReason = "daily_cap_reached"       // 当日预算已耗尽
	RejectBelowMinAfterCap     RejectReason = "below_min_after_cap"     // 预算截断后低于最小跟单金额
)

// ReplicationDecision 跟单决策（瞬态，不持久化，每笔交易重新计算）
type ReplicationDecision struct {
	Accepted bool            // 是否跟单
	Size     decimal.Decimal // 跟单金额（Accepted=true 时有效）
	Reason   RejectReason    // 拒绝原因（Accepted=false 时有效）
}

// Accept 构造通过决策
func Accept(size decimal.Decimal) ReplicationDecision {
	return ReplicationDecision{Accepted: true, Size: size}
}

// Reject 构造拒绝决策
func Reject(reason RejectReason) ReplicationDecision {
	return ReplicationDecision{Accepted: false, Reason: reason}
}
