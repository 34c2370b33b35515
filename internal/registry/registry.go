// Package registry 维护被跟单交易员的配置集合
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/betbot/copybot/internal/domain"
)

// ErrTraderNotFound 交易员不存在
var ErrTraderNotFound = fmt.Errorf("trader not found")

// ErrTraderExists 交易员已存在
var ErrTraderExists = fmt.Errorf("trader already exists")

// ChangeKind 注册表变更类型
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

// Change 描述一次注册表变更，通过订阅 channel 下发给协调器
type Change struct {
	Kind   ChangeKind
	Trader domain.TraderConfig
}

// Registry 交易员注册表
// 地址统一转为小写后作为键，保证同一钱包不会被重复跟单
type Registry struct {
	mu      sync.RWMutex
	traders map[string]domain.TraderConfig

	subsMu sync.Mutex
	subs   []chan Change
}

// New 创建空注册表
func New() *Registry {
	return &Registry{
		traders: make(map[string]domain.TraderConfig),
	}
}

// NewFromConfigs 从配置列表创建注册表，任意一条非法即返回错误
func NewFromConfigs(configs []domain.TraderConfig) (*Registry, error) {
	r := New()
	for i := range configs {
		if err := r.Add(configs[i]); err != nil {
			return nil, fmt.Errorf("交易员 #%d: %w", i, err)
		}
	}
	return r, nil
}

// Add 添加交易员，配置非法或地址重复时拒绝
func (r *Registry) Add(tc domain.TraderConfig) error {
	if err := tc.Validate(); err != nil {
		return err
	}

	key := strings.ToLower(tc.Address)

	r.mu.Lock()
	if _, exists := r.traders[key]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTraderExists, tc.Address)
	}
	r.traders[key] = tc
	r.mu.Unlock()

	r.notify(Change{Kind: ChangeAdded, Trader: tc})
	return nil
}

// Update 更新已存在交易员的配置
// 更新只影响后续的交易，进行中的复制不受影响
func (r *Registry) Update(tc domain.TraderConfig) error {
	if err := tc.Validate(); err != nil {
		return err
	}

	key := strings.ToLower(tc.Address)

	r.mu.Lock()
	if _, exists := r.traders[key]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTraderNotFound, tc.Address)
	}
	r.traders[key] = tc
	r.mu.Unlock()

	r.notify(Change{Kind: ChangeUpdated, Trader: tc})
	return nil
}

// Remove 移除交易员，幂等：地址不存在时是无操作
// 返回本次调用是否真正移除了条目
func (r *Registry) Remove(address string) bool {
	key := strings.ToLower(address)

	r.mu.Lock()
	tc, exists := r.traders[key]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.traders, key)
	r.mu.Unlock()

	r.notify(Change{Kind: ChangeRemoved, Trader: tc})
	return true
}

// Get 查询交易员配置
func (r *Registry) Get(address string) (domain.TraderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.traders[strings.ToLower(address)]
	return tc, ok
}

// List 返回所有交易员配置的快照
func (r *Registry) List() []domain.TraderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TraderConfig, 0, len(r.traders))
	for _, tc := range r.traders {
		out = append(out, tc)
	}
	return out
}

// Len 返回交易员数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traders)
}

// Subscribe 订阅注册表变更
// 返回的 channel 带缓冲，消费方处理过慢时变更会被丢弃而不是阻塞注册表
func (r *Registry) Subscribe() <-chan Change {
	ch := make(chan Change, 16)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *Registry) notify(change Change) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
