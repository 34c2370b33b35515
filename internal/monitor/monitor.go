// Package monitor 监控被跟踪交易员的链上活动
//
// 以轮询 data API 为主，可选启用 WebSocket 推送降低延迟；
// 两条路径汇聚到同一个输出 channel，经 SeenTradeSet 去重后
// 每笔源交易恰好下发一次。
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/registry"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/ratelimit"
	"github.com/betbot/copybot/pkg/sdk/api"
	"github.com/betbot/copybot/pkg/sdk/websocket"
)

// ActivityAPI 交易员活动查询接口（data API）
type ActivityAPI interface {
	GetActivity(ctx context.Context, params api.TradeQuery) ([]api.DataTrade, error)
}

// Config 监控器配置
type Config struct {
	PollInterval    time.Duration // 轮询间隔，默认 30s
	PageSize        int           // 每次拉取条数，默认 100
	SeenRetention   time.Duration // 去重保留时长，默认 48h
	EnableWebsocket bool          // 是否启用推送
}

// Monitor 活动监控器
type Monitor struct {
	cfg       Config
	client    ActivityAPI
	registry  *registry.Registry
	resolver  *CategoryResolver
	limiter   *ratelimit.Manager
	seen      *SeenTradeSet
	out       chan domain.SourceTrade
	wsClient  *websocket.ActivityClient
	log       *logrus.Entry
	startedMu sync.Mutex
	started   bool

	// 每个交易员上次观测到的最新成交时间，用于增量拉取
	lastTsMu sync.Mutex
	lastTs   map[string]int64
}

// New 创建监控器
func New(cfg Config, client ActivityAPI, resolver *CategoryResolver, reg *registry.Registry, limiter *ratelimit.Manager) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	return &Monitor{
		cfg:      cfg,
		client:   client,
		registry: reg,
		resolver: resolver,
		limiter:  limiter,
		seen:     NewSeenTradeSet(cfg.SeenRetention),
		out:      make(chan domain.SourceTrade, 256),
		lastTs:   make(map[string]int64),
		log:      logger.WithField("component", "monitor"),
	}
}

// Trades 返回观测到的源交易 channel（去重后）
func (m *Monitor) Trades() <-chan domain.SourceTrade {
	return m.out
}

// Seen 返回去重集合（供测试和运维状态查询使用）
func (m *Monitor) Seen() *SeenTradeSet {
	return m.seen
}

// Forget 撤销一笔交易的去重标记
// 协调器丢弃交易时调用，让下一轮轮询可以重新投递
func (m *Monitor) Forget(key string) {
	m.seen.Forget(key)
}

// Run 运行监控循环，阻塞直到 ctx 取消
func (m *Monitor) Run(ctx context.Context) error {
	m.startedMu.Lock()
	if m.started {
		m.startedMu.Unlock()
		return fmt.Errorf("监控器已在运行")
	}
	m.started = true
	m.startedMu.Unlock()

	if m.cfg.EnableWebsocket {
		m.wsClient = websocket.NewActivityClient(func(event websocket.TradeEvent) {
			m.handlePush(ctx, event)
		})
		m.syncWSWallets()
		if err := m.wsClient.Start(ctx); err != nil {
			// 推送失败不致命，轮询仍然覆盖所有交易
			m.log.Warnf("WebSocket 启动失败，仅使用轮询: %v", err)
			m.wsClient = nil
		} else {
			defer m.wsClient.Stop()
		}
	}

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(time.Hour)
	defer pruneTicker.Stop()

	m.log.Infof("监控启动：间隔 %s，%d 个交易员", m.cfg.PollInterval, m.registry.Len())

	// 启动时立即执行一次轮询
	m.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("监控停止")
			return ctx.Err()
		case <-ticker.C:
			m.pollAll(ctx)
		case <-pruneTicker.C:
			if removed := m.seen.Prune(); removed > 0 {
				m.log.Debugf("清理去重集合 %d 条", removed)
			}
		}
	}
}

// pollAll 轮询所有交易员
// 单个交易员失败只记录告警，不影响其他交易员
func (m *Monitor) pollAll(ctx context.Context) {
	for _, tc := range m.registry.List() {
		if err := m.pollTrader(ctx, tc.Address); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.PollErrors.Add(1)
			m.log.Warnf("轮询交易员 %s 失败: %v", shortAddr(tc.Address), err)
		}
	}
	m.syncWSWallets()
}

func (m *Monitor) pollTrader(ctx context.Context, address string) error {
	if err := m.limiter.Wait(ctx, "data:activity:get"); err != nil {
		return err
	}

	m.lastTsMu.Lock()
	after := m.lastTs[strings.ToLower(address)]
	m.lastTsMu.Unlock()

	// 窗口向前重叠 60 秒，漏单比重复代价高，重复由 SeenTradeSet 挡掉
	if after > 60 {
		after -= 60
	}

	trades, err := m.client.GetActivity(ctx, api.TradeQuery{
		User:  address,
		Limit: m.cfg.PageSize,
		After: after,
	})
	if err != nil {
		return err
	}

	metrics.PollCycles.Add(1)

	var maxTs int64
	for i := range trades {
		dt := &trades[i]
		if dt.Timestamp > maxTs {
			maxTs = dt.Timestamp
		}
		if dt.Type != "" && dt.Type != "TRADE" {
			continue
		}

		st := m.convert(ctx, dt)
		m.emit(ctx, st)
	}

	if maxTs > 0 {
		m.lastTsMu.Lock()
		if maxTs > m.lastTs[strings.ToLower(address)] {
			m.lastTs[strings.ToLower(address)] = maxTs
		}
		m.lastTsMu.Unlock()
	}

	return nil
}

// handlePush 处理 WebSocket 推送的成交
func (m *Monitor) handlePush(ctx context.Context, event websocket.TradeEvent) {
	category := m.resolver.Resolve(ctx, event.Slug)

	// 分类解析不出来时不能直接下发：白名单交易员会把空分类一律拒绝，
	// 而去重标记会挡掉轮询路径的补投，这笔交易就永久丢了。
	// 此时放弃推送快路径，留给轮询按自己的解析结果投递
	if category == "" {
		if tc, ok := m.registry.Get(event.ProxyWallet); ok && len(tc.CategoriesFilter) > 0 {
			return
		}
	}

	price := decimal.NewFromFloat(event.Price)
	size := decimal.NewFromFloat(event.Size)

	st := domain.SourceTrade{
		ID:        tradeID(event.TransactionHash, event.ProxyWallet, event.ConditionID, event.Timestamp),
		Trader:    strings.ToLower(event.ProxyWallet),
		Market:    event.ConditionID,
		TokenID:   event.Asset,
		Category:  category,
		Side:      domain.Side(strings.ToUpper(event.Side)),
		Price:     price,
		Size:      size,
		Amount:    size.Mul(price),
		Title:     event.Title,
		Outcome:   event.Outcome,
		Timestamp: time.Unix(event.Timestamp, 0),
	}

	m.emit(ctx, st)
}

// convert 将 data API 的成交转换为领域对象
func (m *Monitor) convert(ctx context.Context, dt *api.DataTrade) domain.SourceTrade {
	price := decimal.NewFromFloat(dt.Price.Float64())
	size := decimal.NewFromFloat(dt.Size.Float64())
	amount := decimal.NewFromFloat(dt.UsdcSize.Float64())
	if amount.IsZero() {
		amount = size.Mul(price)
	}

	return domain.SourceTrade{
		ID:        tradeID(dt.TransactionHash, dt.ProxyWallet, dt.ConditionID, dt.Timestamp),
		Trader:    strings.ToLower(dt.ProxyWallet),
		Market:    dt.ConditionID,
		TokenID:   dt.Asset,
		Category:  m.resolver.Resolve(ctx, dt.Slug),
		Side:      domain.Side(strings.ToUpper(dt.Side)),
		Price:     price,
		Size:      size,
		Amount:    amount,
		Title:     dt.Title,
		Outcome:   dt.Outcome,
		Timestamp: time.Unix(dt.Timestamp, 0),
	}
}

// emit 去重后下发
func (m *Monitor) emit(ctx context.Context, st domain.SourceTrade) {
	if !st.Side.IsValid() {
		return
	}
	if !m.seen.MarkSeen(st.Key()) {
		return
	}

	metrics.TradesObserved.Add(1)

	select {
	case m.out <- st:
	case <-ctx.Done():
	}
}

// syncWSWallets 将注册表中的钱包同步到推送过滤器
func (m *Monitor) syncWSWallets() {
	if m.wsClient == nil {
		return
	}
	traders := m.registry.List()
	addrs := make([]string, 0, len(traders))
	for _, tc := range traders {
		addrs = append(addrs, tc.Address)
	}
	m.wsClient.SetWallets(addrs)
}

// tradeID 构造交易的全局唯一 ID
// 优先使用链上交易哈希，缺失时退化为 trader+market+timestamp 组合键
func tradeID(txHash, trader, market string, ts int64) string {
	if txHash != "" {
		return txHash
	}
	return fmt.Sprintf("%s-%s-%d", strings.ToLower(trader), market, ts)
}

func shortAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}
