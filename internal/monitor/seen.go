package monitor

import (
	"sync"
	"time"
)

// SeenTradeSet 已观测交易的去重集合
// 轮询窗口之间有重叠，同一笔交易可能被观测多次，必须恰好处理一次。
// 条目按观测时间保留 retention 时长后清理，防止无界增长；
// 超过保留期的旧交易由订单存储里的记录兜底去重。
type SeenTradeSet struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
}

// NewSeenTradeSet 创建去重集合
func NewSeenTradeSet(retention time.Duration) *SeenTradeSet {
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &SeenTradeSet{
		seen:      make(map[string]time.Time),
		retention: retention,
	}
}

// MarkSeen 标记交易已见，返回是否为首次观测
func (s *SeenTradeSet) MarkSeen(key string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = now
	return true
}

// Forget 撤销已见标记，让同一笔交易可以被重新观测
// 下游丢弃交易（如管道积压）时调用，否则丢弃即永久丢失
func (s *SeenTradeSet) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
}

// Contains 检查交易是否已见
func (s *SeenTradeSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Len 返回当前条目数
func (s *SeenTradeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Prune 清理超过保留期的条目，返回清理数量
func (s *SeenTradeSet) Prune() int {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
			removed++
		}
	}
	return removed
}
