package replicate

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// ComputeSize 计算跟单金额
//
// 算法：
//  1. raw = 源金额 × copy_percentage
//  2. clamped = clamp(raw, min_copy_amount, max_copy_amount)
//  3. remaining = max_daily_copy − 窗口内已跟金额
//  4. remaining ≤ 0 → 拒绝 daily_cap_reached
//  5. final = min(clamped, remaining)；final < min_copy_amount 时
//     拒绝 below_min_after_cap（预算允许也不提交低于下限的碎单）
//  6. 否则接受 final
//
// 全程 decimal 定点运算，预算累计不产生二进制浮点漂移
func ComputeSize(trade *domain.SourceTrade, cfg *domain.TraderConfig, spent decimal.Decimal) domain.ReplicationDecision {
	raw := trade.Amount.Mul(cfg.CopyPercentage)

	clamped := raw
	if clamped.LessThan(cfg.MinCopyAmount) {
		clamped = cfg.MinCopyAmount
	}
	if clamped.GreaterThan(cfg.MaxCopyAmount) {
		clamped = cfg.MaxCopyAmount
	}

	remaining := cfg.MaxDailyCopy.Sub(spent)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return domain.Reject(domain.RejectDailyCapReached)
	}

	final := clamped
	if final.GreaterThan(remaining) {
		final = remaining
	}

	if final.LessThan(cfg.MinCopyAmount) {
		return domain.Reject(domain.RejectBelowMinAfterCap)
	}

	return domain.Accept(final)
}
