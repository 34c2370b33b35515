package registry

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

func validConfig(address string) domain.TraderConfig {
	return domain.TraderConfig{
		Address:        address,
		CopyPercentage: decimal.NewFromFloat(0.1),
		MinCopyAmount:  decimal.NewFromInt(10),
		MaxCopyAmount:  decimal.NewFromInt(400),
		MaxDailyCopy:   decimal.NewFromInt(1000),
	}
}

func TestAddAndGet(t *testing.T) {
	r := New()
	tc := validConfig("0xAbC0000000000000000000000000000000000001")

	if err := r.Add(tc); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len got=%d want=1", r.Len())
	}

	// 查询大小写不敏感
	got, ok := r.Get("0xabc0000000000000000000000000000000000001")
	if !ok {
		t.Fatalf("Get 未找到")
	}
	if got.Address != tc.Address {
		t.Fatalf("address got=%s want=%s", got.Address, tc.Address)
	}
}

func TestAddRejectsInvalidConfig(t *testing.T) {
	r := New()

	tc := validConfig("0xabc")
	tc.CopyPercentage = decimal.NewFromInt(2) // > 1 非法
	if err := r.Add(tc); err == nil {
		t.Fatalf("非法配置应被拒绝")
	}
	if r.Len() != 0 {
		t.Fatalf("非法配置不应部分生效")
	}
}

// 同一地址不同大小写视为重复
func TestAddRejectsDuplicate(t *testing.T) {
	r := New()
	if err := r.Add(validConfig("0xABC0000000000000000000000000000000000001")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Add(validConfig("0xabc0000000000000000000000000000000000001")); err == nil {
		t.Fatalf("重复地址应被拒绝")
	}
}

func TestUpdateAndRemove(t *testing.T) {
	r := New()
	tc := validConfig("0xabc0000000000000000000000000000000000001")
	if err := r.Add(tc); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	tc.MaxDailyCopy = decimal.NewFromInt(2000)
	if err := r.Update(tc); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	got, _ := r.Get(tc.Address)
	if !got.MaxDailyCopy.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("更新未生效: %s", got.MaxDailyCopy)
	}

	if !r.Remove(tc.Address) {
		t.Fatalf("首次移除应返回 true")
	}
	if _, ok := r.Get(tc.Address); ok {
		t.Fatalf("移除后不应存在")
	}
}

// 移除是幂等的：重复移除同一地址是无操作，不报错
func TestRemoveIdempotent(t *testing.T) {
	r := New()
	tc := validConfig("0xabc0000000000000000000000000000000000001")
	if err := r.Add(tc); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if !r.Remove(tc.Address) {
		t.Fatalf("首次移除应返回 true")
	}
	if r.Remove(tc.Address) {
		t.Fatalf("重复移除应返回 false 而不是 true")
	}
	if r.Remove("0xABC0000000000000000000000000000000000001") {
		t.Fatalf("大小写变体的重复移除同样是无操作")
	}
	if r.Len() != 0 {
		t.Fatalf("Len got=%d want=0", r.Len())
	}
}

func TestUpdateUnknownTrader(t *testing.T) {
	r := New()
	if err := r.Update(validConfig("0xabc")); err == nil {
		t.Fatalf("更新不存在的交易员应报错")
	}
}

func TestNewFromConfigsFailFast(t *testing.T) {
	bad := validConfig("0xdef")
	bad.MinCopyAmount = decimal.NewFromInt(500) // > max 非法

	_, err := NewFromConfigs([]domain.TraderConfig{validConfig("0xabc"), bad})
	if err == nil {
		t.Fatalf("包含非法配置应整体失败")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	r := New()
	ch := r.Subscribe()

	tc := validConfig("0xabc0000000000000000000000000000000000001")
	if err := r.Add(tc); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	select {
	case change := <-ch:
		if change.Kind != ChangeAdded || change.Trader.Address != tc.Address {
			t.Fatalf("变更内容不符: %+v", change)
		}
	default:
		t.Fatalf("应收到 ChangeAdded")
	}

	if !r.Remove(tc.Address) {
		t.Fatalf("Remove 应返回 true")
	}
	select {
	case change := <-ch:
		if change.Kind != ChangeRemoved {
			t.Fatalf("变更类型不符: %+v", change)
		}
	default:
		t.Fatalf("应收到 ChangeRemoved")
	}
}
