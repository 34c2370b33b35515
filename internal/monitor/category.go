package monitor

import (
	"context"
	"time"

	"github.com/betbot/copybot/pkg/cache"
	"github.com/betbot/copybot/pkg/sdk/api"
)

// MarketAPI 市场信息查询接口（gamma API）
type MarketAPI interface {
	ListMarkets(ctx context.Context, params api.MarketQueryParams) ([]api.GammaMarket, error)
}

// CategoryResolver 按市场 slug 解析分类，结果缓存 1 小时
// 分类过滤需要市场元数据，而活动推送里只有 slug
type CategoryResolver struct {
	client MarketAPI
	cache  *cache.InMemoryCache[string, string]
}

// NewCategoryResolver 创建分类解析器
func NewCategoryResolver(client MarketAPI) *CategoryResolver {
	return &CategoryResolver{
		client: client,
		cache:  cache.New[string, string](time.Hour),
	}
}

// Resolve 解析市场分类，查询失败返回空字符串（不阻断跟单流程）
func (r *CategoryResolver) Resolve(ctx context.Context, marketSlug string) string {
	if marketSlug == "" {
		return ""
	}

	if category, ok := r.cache.Get(marketSlug); ok {
		return category
	}

	markets, err := r.client.ListMarkets(ctx, api.MarketQueryParams{Slug: marketSlug, Limit: 1})
	if err != nil || len(markets) == 0 {
		return ""
	}

	category := markets[0].Category
	r.cache.Set(marketSlug, category)
	return category
}
