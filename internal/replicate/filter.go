// Package replicate 实现跟单管道：过滤 → 定额 → 预算 → 提交
package replicate

import (
	"github.com/betbot/copybot/internal/domain"
)

// Filter 对源交易应用跟单规则，纯函数，无 I/O 无副作用
//
// 检查顺序（命中第一条即返回）：
//  1. 价格非正（脏数据，无法换算份额）
//  2. 卖单且未开启 copy_sells
//  3. 源交易金额低于 min_trader_amount
//  4. 分类不在白名单内
//  5. 源价格高于赔率上限 max_odds_threshold
func Filter(trade *domain.SourceTrade, cfg *domain.TraderConfig) domain.ReplicationDecision {
	if !trade.Price.IsPositive() {
		return domain.Reject(domain.RejectInvalidPrice)
	}

	if trade.Side == domain.SideSell && !cfg.CopySells {
		return domain.Reject(domain.RejectSellNotCopied)
	}

	if trade.Amount.LessThan(cfg.MinTraderAmount) {
		return domain.Reject(domain.RejectBelowMinTraderAmount)
	}

	if !cfg.AllowsCategory(trade.Category) {
		return domain.Reject(domain.RejectCategoryNotAllowed)
	}

	if cfg.MaxOddsThreshold.IsPositive() && trade.Price.GreaterThan(cfg.MaxOddsThreshold) {
		return domain.Reject(domain.RejectOddsAboveThreshold)
	}

	return domain.Accept(trade.Amount)
}
