package replicate

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/persistence"
)

// BudgetState 单个交易员的滚动预算窗口状态
// 每次成功预留后落盘，崩溃重启从持久化状态恢复而不是清零
type BudgetState struct {
	WindowStart time.Time       `json:"window_start"`
	AmountSpent decimal.Decimal `json:"amount_spent"`
	// 窗口内已预留的交易 ID，同一笔交易的提交重试不会重复占用预算
	ReservedIDs map[string]string `json:"reserved_ids"` // trade_id -> 预留金额
}

// BudgetTracker 按交易员跟踪 24h 滚动预算
type BudgetTracker struct {
	mu      sync.Mutex
	states  map[string]*BudgetState
	service persistence.Service
	log     *logrus.Entry

	// 测试注入用，默认 time.Now
	now func() time.Time
}

// NewBudgetTracker 创建预算跟踪器并从持久化状态恢复
func NewBudgetTracker(service persistence.Service) *BudgetTracker {
	return &BudgetTracker{
		states:  make(map[string]*BudgetState),
		service: service,
		log:     logger.WithField("component", "budget"),
		now:     time.Now,
	}
}

// Spent 返回交易员当前窗口内已跟金额（过期窗口先滚动归零）
func (t *BudgetTracker) Spent(trader string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(trader)
	t.rollLocked(trader, state)
	return state.AmountSpent
}

// WindowStart 返回当前窗口起点
func (t *BudgetTracker) WindowStart(trader string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(trader)
	t.rollLocked(trader, state)
	return state.WindowStart
}

// Reserve 原子地为一笔已接受的交易预留预算
//
// 语义：
//   - now ≥ window_start + 24h 时先滚动窗口（已跟金额归零，窗口起点 = now）
//   - 按 trade_id 幂等：同一笔交易重复预留直接返回当前状态，不重复累计
//   - 预留成功后立即落盘
//
// 返回预留后的已跟金额
func (t *BudgetTracker) Reserve(trader, tradeID string, amount decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(trader)
	t.rollLocked(trader, state)

	if _, reserved := state.ReservedIDs[tradeID]; reserved {
		return state.AmountSpent
	}

	state.AmountSpent = state.AmountSpent.Add(amount)
	state.ReservedIDs[tradeID] = amount.String()

	t.persistLocked(trader, state)
	return state.AmountSpent
}

// Release 释放一笔已预留的预算（订单被交易所永久拒绝时回补）
func (t *BudgetTracker) Release(trader, tradeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(trader)
	t.rollLocked(trader, state)

	amountStr, reserved := state.ReservedIDs[tradeID]
	if !reserved {
		return
	}

	amount, err := decimal.NewFromString(amountStr)
	if err == nil {
		state.AmountSpent = state.AmountSpent.Sub(amount)
		if state.AmountSpent.IsNegative() {
			state.AmountSpent = decimal.Zero
		}
	}
	delete(state.ReservedIDs, tradeID)

	t.persistLocked(trader, state)
}

// loadLocked 获取交易员状态，首次访问时尝试从磁盘恢复
func (t *BudgetTracker) loadLocked(trader string) *BudgetState {
	key := strings.ToLower(trader)
	if state, ok := t.states[key]; ok {
		return state
	}

	state := &BudgetState{
		WindowStart: t.now(),
		AmountSpent: decimal.Zero,
		ReservedIDs: make(map[string]string),
	}

	store := t.service.NewStore("budget", key, "window")
	if err := store.Load(state); err != nil {
		if !errors.Is(err, persistence.ErrNotExists) {
			t.log.Warnf("恢复预算状态失败 %s: %v", key, err)
		}
		state.WindowStart = t.now()
		state.AmountSpent = decimal.Zero
	}
	if state.ReservedIDs == nil {
		state.ReservedIDs = make(map[string]string)
	}

	t.states[key] = state
	return state
}

// rollLocked 检查并滚动过期窗口
func (t *BudgetTracker) rollLocked(trader string, state *BudgetState) {
	now := t.now()
	if now.Sub(state.WindowStart) < 24*time.Hour {
		return
	}

	t.log.Infof("交易员 %s 预算窗口滚动，上一窗口已跟 %s", trader, state.AmountSpent)
	state.WindowStart = now
	state.AmountSpent = decimal.Zero
	state.ReservedIDs = make(map[string]string)
	t.persistLocked(trader, state)
}

func (t *BudgetTracker) persistLocked(trader string, state *BudgetState) {
	store := t.service.NewStore("budget", strings.ToLower(trader), "window")
	if err := store.Save(state); err != nil {
		t.log.Errorf("保存预算状态失败 %s: %v", trader, err)
	}
}
