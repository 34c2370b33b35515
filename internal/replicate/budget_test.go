package replicate

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/pkg/persistence"
)

const testTrader = "0xAbc0000000000000000000000000000000000001"

func newTestTracker(t *testing.T) (*BudgetTracker, string) {
	t.Helper()
	dir := t.TempDir()
	tracker := NewBudgetTracker(persistence.NewJSONFileService(dir))
	return tracker, dir
}

func TestBudgetReserveAccumulates(t *testing.T) {
	tracker, _ := newTestTracker(t)

	if spent := tracker.Reserve(testTrader, "tx1", dec("100")); !spent.Equal(dec("100")) {
		t.Fatalf("spent got=%s want=100", spent)
	}
	if spent := tracker.Reserve(testTrader, "tx2", dec("50.5")); !spent.Equal(dec("150.5")) {
		t.Fatalf("spent got=%s want=150.5", spent)
	}
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("150.5")) {
		t.Fatalf("Spent got=%s want=150.5", spent)
	}
}

// 同一 trade_id 重复预留不重复累计
func TestBudgetReserveIdempotent(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.Reserve(testTrader, "tx1", dec("100"))
	if spent := tracker.Reserve(testTrader, "tx1", dec("100")); !spent.Equal(dec("100")) {
		t.Fatalf("重复预留不应累计: got=%s want=100", spent)
	}
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("100")) {
		t.Fatalf("Spent got=%s want=100", spent)
	}
}

func TestBudgetRelease(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.Reserve(testTrader, "tx1", dec("100"))
	tracker.Reserve(testTrader, "tx2", dec("60"))

	tracker.Release(testTrader, "tx1")
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("60")) {
		t.Fatalf("释放后 got=%s want=60", spent)
	}

	// 未预留的 ID 释放是 no-op
	tracker.Release(testTrader, "tx-unknown")
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("60")) {
		t.Fatalf("未知 ID 释放不应改变: got=%s", spent)
	}

	// 释放后同一 ID 可重新预留
	tracker.Reserve(testTrader, "tx1", dec("40"))
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("100")) {
		t.Fatalf("重新预留后 got=%s want=100", spent)
	}
}

func TestBudgetWindowRollover(t *testing.T) {
	tracker, _ := newTestTracker(t)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }

	tracker.Reserve(testTrader, "tx1", dec("500"))
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("500")) {
		t.Fatalf("spent got=%s want=500", spent)
	}

	// 23h59m：窗口未到期
	current = current.Add(24*time.Hour - time.Minute)
	if spent := tracker.Spent(testTrader); !spent.Equal(dec("500")) {
		t.Fatalf("窗口未到期不应滚动: got=%s", spent)
	}

	// 正好 24h：窗口滚动归零
	current = current.Add(time.Minute)
	if spent := tracker.Spent(testTrader); !spent.IsZero() {
		t.Fatalf("窗口到期应归零: got=%s", spent)
	}
	if ws := tracker.WindowStart(testTrader); !ws.Equal(current) {
		t.Fatalf("窗口起点应为当前时间: got=%s want=%s", ws, current)
	}

	// 滚动清空预留集合，旧 trade_id 在新窗口可重新预留
	if spent := tracker.Reserve(testTrader, "tx1", dec("200")); !spent.Equal(dec("200")) {
		t.Fatalf("新窗口预留 got=%s want=200", spent)
	}
}

// 崩溃重启恢复：新 tracker 指向同一目录应恢复窗口状态
func TestBudgetRestartRecovery(t *testing.T) {
	dir := t.TempDir()
	service := persistence.NewJSONFileService(dir)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := NewBudgetTracker(service)
	first.now = func() time.Time { return start }
	first.Reserve(testTrader, "tx1", dec("300.25"))

	second := NewBudgetTracker(persistence.NewJSONFileService(dir))
	second.now = func() time.Time { return start.Add(time.Hour) }

	if spent := second.Spent(testTrader); !spent.Equal(dec("300.25")) {
		t.Fatalf("重启后应恢复已跟金额: got=%s want=300.25", spent)
	}
	if ws := second.WindowStart(testTrader); !ws.Equal(start) {
		t.Fatalf("重启后应恢复窗口起点: got=%s want=%s", ws, start)
	}

	// 重启后同一 trade_id 仍幂等
	if spent := second.Reserve(testTrader, "tx1", dec("300.25")); !spent.Equal(dec("300.25")) {
		t.Fatalf("重启后重复预留不应累计: got=%s", spent)
	}
}

func TestBudgetTradersIsolated(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.Reserve("0xaaa0000000000000000000000000000000000001", "tx1", dec("100"))
	tracker.Reserve("0xbbb0000000000000000000000000000000000002", "tx1", dec("200"))

	if spent := tracker.Spent("0xaaa0000000000000000000000000000000000001"); !spent.Equal(dec("100")) {
		t.Fatalf("交易员 A got=%s want=100", spent)
	}
	if spent := tracker.Spent("0xbbb0000000000000000000000000000000000002"); !spent.Equal(dec("200")) {
		t.Fatalf("交易员 B got=%s want=200", spent)
	}
}

// 地址大小写视为同一交易员
func TestBudgetAddressCaseInsensitive(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.Reserve("0xABC0000000000000000000000000000000000001", "tx1", dec("100"))
	if spent := tracker.Spent("0xabc0000000000000000000000000000000000001"); !spent.Equal(dec("100")) {
		t.Fatalf("地址大小写应归一: got=%s want=100", spent)
	}
}

// 属性：任意预留序列下，已跟金额恒等于未释放预留之和，且永不为负
func TestPropertyBudgetConsistency(t *testing.T) {
	property := func(amounts []uint16, releaseMask []bool) bool {
		if len(amounts) == 0 || len(amounts) > 50 {
			return true
		}

		tracker, _ := newTestTracker(t)
		fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		tracker.now = func() time.Time { return fixed }

		expected := decimal.Zero
		for i, a := range amounts {
			amount := decimal.NewFromInt(int64(a % 1000)).Div(dec("100"))
			id := tradeIDForIndex(i)
			tracker.Reserve(testTrader, id, amount)
			expected = expected.Add(amount)
		}
		for i := range amounts {
			if i < len(releaseMask) && releaseMask[i] {
				amount := decimal.NewFromInt(int64(amounts[i] % 1000)).Div(dec("100"))
				tracker.Release(testTrader, tradeIDForIndex(i))
				expected = expected.Sub(amount)
			}
		}

		spent := tracker.Spent(testTrader)
		return spent.Equal(expected) && !spent.IsNegative()
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 30}); err != nil {
		t.Fatalf("预算一致性属性不成立: %v", err)
	}
}

func tradeIDForIndex(i int) string {
	return "tx-" + string(rune('a'+i%26)) + "-" + decimal.NewFromInt(int64(i)).String()
}
