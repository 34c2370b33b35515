package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TraderConfig 单个被跟踪交易员的跟单规则
// 注册后在一次运行期间不可变
type TraderConfig struct {
	Address          string          `yaml:"address" json:"address"`                       // 交易员钱包地址
	CopyPercentage   decimal.Decimal `yaml:"copy_percentage" json:"copy_percentage"`       // 跟单比例（0 < p <= 1）
	MinCopyAmount    decimal.Decimal `yaml:"min_copy_amount" json:"min_copy_amount"`       // 单笔最小跟单金额（USDC）
	MaxCopyAmount    decimal.Decimal `yaml:"max_copy_amount" json:"max_copy_amount"`       // 单笔最大跟单金额（USDC）
	MaxDailyCopy     decimal.Decimal `yaml:"max_daily_copy" json:"max_daily_copy"`         // 24h 滚动窗口内最大跟单总额（USDC）
	CategoriesFilter []string        `yaml:"categories_filter" json:"categories_filter"`   // 分类白名单（空 = 不限制）
	MinTraderAmount  decimal.Decimal `yaml:"min_trader_amount" json:"min_trader_amount"`   // 源交易最小金额（低于此不跟）
	MaxOddsThreshold decimal.Decimal `yaml:"max_odds_threshold" json:"max_odds_threshold"` // 赔率上限（源价格高于此不跟，0 = 不限制）
	CopySells        bool            `yaml:"copy_sells" json:"copy_sells"`                 // 是否跟卖单
}

// Validate 校验跟单规则，非法配置在注册前报错（不会部分生效）
func (c *TraderConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: 交易员地址不能为空", ErrConfiguration)
	}
	if c.CopyPercentage.LessThanOrEqual(decimal.Zero) || c.CopyPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: copy_percentage 必须在 (0, 1] 之间，实际 %s", ErrConfiguration, c.CopyPercentage)
	}
	if c.MinCopyAmount.IsNegative() {
		return fmt.Errorf("%w: min_copy_amount 不能为负", ErrConfiguration)
	}
	if c.MinCopyAmount.GreaterThan(c.MaxCopyAmount) {
		return fmt.Errorf("%w: min_copy_amount (%s) 不能大于 max_copy_amount (%s)",
			ErrConfiguration, c.MinCopyAmount, c.MaxCopyAmount)
	}
	if c.MaxDailyCopy.IsNegative() {
		return fmt.Errorf("%w: max_daily_copy 不能为负", ErrConfiguration)
	}
	if c.MinTraderAmount.IsNegative() {
		return fmt.Errorf("%w: min_trader_amount 不能为负", ErrConfiguration)
	}
	if c.MaxOddsThreshold.IsNegative() || c.MaxOddsThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: max_odds_threshold 必须在 [0, 1] 之间，实际 %s", ErrConfiguration, c.MaxOddsThreshold)
	}
	return nil
}

// HasCategoryFilter 是否启用分类过滤
func (c *TraderConfig) HasCategoryFilter() bool {
	return len(c.CategoriesFilter) > 0
}

// AllowsCategory 检查分类是否在白名单内（大小写不敏感）
func (c *TraderConfig) AllowsCategory(category string) bool {
	if !c.HasCategoryFilter() {
		return true
	}
	for _, allowed := range c.CategoriesFilter {
		if strings.EqualFold(allowed, category) {
			return true
		}
	}
	return false
}
