package replicate

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
	"github.com/betbot/copybot/internal/monitor"
	"github.com/betbot/copybot/internal/registry"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/sigchan"
	"github.com/betbot/copybot/pkg/syncgroup"
)

// PipelineState 单交易员管道状态机：Stopped → Running → Stopping → Stopped
type PipelineState string

const (
	StateStopped  PipelineState = "stopped"
	StateRunning  PipelineState = "running"
	StateStopping PipelineState = "stopping"
)

// TraderStatus 运维查询用的交易员管道状态
type TraderStatus struct {
	Trader      string          `json:"trader"`
	State       PipelineState   `json:"state"`
	DailyCap    decimal.Decimal `json:"daily_cap"`
	SpentToday  decimal.Decimal `json:"spent_today"`
	WindowStart time.Time       `json:"window_start"`
}

// pipeline 单个交易员的跟单管道
// 管道内严格按到达顺序处理：第 N 笔的预算预留先于第 N+1 笔的定额计算，
// 避免并发交易超支同一个日预算
type pipeline struct {
	cfg     domain.TraderConfig
	in      chan domain.SourceTrade
	cancel  context.CancelFunc
	stopped *sigchan.Chan
	state   PipelineState
}

// Coordinator 跟单协调器
// 持有全部交易员的管道句柄，监控器的交易流按交易员路由到各自管道
type Coordinator struct {
	registry  *registry.Registry
	monitor   *monitor.Monitor
	budget    *BudgetTracker
	submitter *Submitter

	mu        sync.Mutex
	pipelines map[string]*pipeline
	running   bool
	cancel    context.CancelFunc

	sg  *syncgroup.SyncGroup
	log *logrus.Entry
}

// NewCoordinator 创建协调器
func NewCoordinator(reg *registry.Registry, mon *monitor.Monitor, budget *BudgetTracker, submitter *Submitter) *Coordinator {
	return &Coordinator{
		registry:  reg,
		monitor:   mon,
		budget:    budget,
		submitter: submitter,
		pipelines: make(map[string]*pipeline),
		sg:        syncgroup.NewSyncGroup(),
		log:       logger.WithField("component", "coordinator"),
	}
}

// Start 启动协调器：监控循环、路由循环、注册表监听，
// 以及每个已注册交易员的管道
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("协调器已在运行")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	changes := c.registry.Subscribe()

	c.sg.Add(func() {
		if err := c.monitor.Run(runCtx); err != nil && runCtx.Err() == nil {
			c.log.Errorf("监控循环退出: %v", err)
		}
	})
	c.sg.Add(func() { c.routeLoop(runCtx) })
	c.sg.Add(func() { c.watchRegistry(runCtx, changes) })
	c.sg.Run()

	for _, tc := range c.registry.List() {
		c.startPipeline(runCtx, tc)
	}

	c.log.Infof("协调器启动，%d 个交易员管道", c.registry.Len())
	return nil
}

// Stop 停止协调器，等待所有管道排空在途工作
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	pipelines := make([]*pipeline, 0, len(c.pipelines))
	for _, p := range c.pipelines {
		p.state = StateStopping
		pipelines = append(pipelines, p)
	}
	c.mu.Unlock()

	cancel()

	// 等待管道排空：在途提交允许完成或失败，避免留下半提交的订单记录
	for _, p := range pipelines {
		select {
		case <-p.stopped.C():
		case <-ctx.Done():
			c.log.Warnf("等待管道 %s 排空超时", shortAddr(p.cfg.Address))
		}
	}

	c.sg.WaitAndClear()

	c.mu.Lock()
	for _, p := range c.pipelines {
		p.state = StateStopped
	}
	c.mu.Unlock()

	c.log.Info("协调器已停止")
	return nil
}

// AddTrader 注册并（运行中时）立即启动新交易员的管道
func (c *Coordinator) AddTrader(tc domain.TraderConfig) error {
	return c.registry.Add(tc)
}

// RemoveTrader 移除交易员并停止其管道，不影响其他管道
// 幂等：重复移除同一地址是无操作，返回是否真正移除
func (c *Coordinator) RemoveTrader(address string) bool {
	return c.registry.Remove(address)
}

// Status 返回所有交易员管道的状态快照
func (c *Coordinator) Status() []TraderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]TraderStatus, 0, len(c.pipelines))
	for addr, p := range c.pipelines {
		out = append(out, TraderStatus{
			Trader:      addr,
			State:       p.state,
			DailyCap:    p.cfg.MaxDailyCopy,
			SpentToday:  c.budget.Spent(addr),
			WindowStart: c.budget.WindowStart(addr),
		})
	}
	return out
}

// routeLoop 将监控器的交易流按交易员路由到各自管道
// 单个管道积压时丢弃并告警，绝不阻塞其他交易员的管道
func (c *Coordinator) routeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-c.monitor.Trades():
			if !ok {
				return
			}

			c.mu.Lock()
			p, exists := c.pipelines[strings.ToLower(trade.Trader)]
			c.mu.Unlock()

			if !exists || p.state != StateRunning {
				continue
			}

			select {
			case p.in <- trade:
			default:
				// 丢弃时撤销去重标记，下一轮轮询可以重新投递这笔交易
				c.monitor.Forget(trade.Key())
				c.log.Warnf("管道 %s 积压，丢弃交易 %s，等待轮询重投", shortAddr(trade.Trader), trade.ID)
			}
		}
	}
}

// watchRegistry 监听注册表变更，动态启停管道
func (c *Coordinator) watchRegistry(ctx context.Context, changes <-chan registry.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			switch change.Kind {
			case registry.ChangeAdded:
				c.startPipeline(ctx, change.Trader)
			case registry.ChangeRemoved:
				c.stopPipeline(change.Trader.Address)
			case registry.ChangeUpdated:
				c.mu.Lock()
				if p, ok := c.pipelines[strings.ToLower(change.Trader.Address)]; ok {
					p.cfg = change.Trader
				}
				c.mu.Unlock()
			}
		}
	}
}

func (c *Coordinator) startPipeline(ctx context.Context, tc domain.TraderConfig) {
	key := strings.ToLower(tc.Address)

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	if p, exists := c.pipelines[key]; exists && p.state == StateRunning {
		c.mu.Unlock()
		return
	}

	pipeCtx, cancel := context.WithCancel(ctx)
	p := &pipeline{
		cfg:     tc,
		in:      make(chan domain.SourceTrade, 128),
		cancel:  cancel,
		stopped: sigchan.New(1),
		state:   StateRunning,
	}
	c.pipelines[key] = p
	c.mu.Unlock()

	go c.runPipeline(pipeCtx, p)
	c.log.Infof("交易员 %s 管道启动", shortAddr(tc.Address))
}

func (c *Coordinator) stopPipeline(address string) {
	key := strings.ToLower(address)

	c.mu.Lock()
	p, exists := c.pipelines[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	p.state = StateStopping
	c.mu.Unlock()

	p.cancel()

	select {
	case <-p.stopped.C():
	case <-time.After(10 * time.Second):
		c.log.Warnf("等待管道 %s 停止超时", shortAddr(address))
	}

	c.mu.Lock()
	p.state = StateStopped
	delete(c.pipelines, key)
	c.mu.Unlock()

	c.log.Infof("交易员 %s 管道已停止", shortAddr(address))
}

// runPipeline 管道主循环：过滤 → 定额 → 预算预留 → 提交
func (c *Coordinator) runPipeline(ctx context.Context, p *pipeline) {
	defer p.stopped.Emit()

	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-p.in:
			c.mu.Lock()
			cfg := p.cfg
			c.mu.Unlock()
			c.processTrade(ctx, &trade, &cfg)
		}
	}
}

func (c *Coordinator) processTrade(ctx context.Context, trade *domain.SourceTrade, cfg *domain.TraderConfig) {
	tlog := c.log.WithFields(logrus.Fields{
		"trader": shortAddr(trade.Trader),
		"trade":  trade.ID,
	})

	if decision := Filter(trade, cfg); !decision.Accepted {
		metrics.TradesRejected.Add(1)
		tlog.Infof("过滤拒绝：%s（%s %s USDC @ %s）", decision.Reason, trade.Side, trade.Amount, trade.Price)
		return
	}

	spent := c.budget.Spent(trade.Trader)
	decision := ComputeSize(trade, cfg, spent)
	if !decision.Accepted {
		metrics.TradesRejected.Add(1)
		if decision.Reason == domain.RejectDailyCapReached {
			metrics.BudgetRejects.Add(1)
		}
		tlog.Infof("定额拒绝：%s（已跟 %s / 上限 %s）", decision.Reason, spent, cfg.MaxDailyCopy)
		return
	}

	// 提交前预留预算：同一 trade_id 的重试不会重复占用
	c.budget.Reserve(trade.Trader, trade.ID, decision.Size)

	record, err := c.submitter.Submit(ctx, trade, decision.Size)
	if err != nil {
		if domain.IsDuplicate(err) {
			// 去重命中不是失败：记录已存在，预算预留也是同一笔
			tlog.Debugf("源交易已有订单记录，跳过")
			return
		}
		if domain.IsPermanent(err) {
			// 交易所明确拒绝，回补预算
			c.budget.Release(trade.Trader, trade.ID)
		}
		tlog.Warnf("提交失败: %v", err)
		return
	}

	metrics.TradesCopied.Add(1)
	tlog.Infof("跟单完成：%s %s USDC，订单 %s（%s）", trade.Side, record.Size, record.OrderID, record.Status)
}

func shortAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:6] + ".." + addr[len(addr)-4:]
	}
	return addr
}
