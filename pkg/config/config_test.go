package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}
	return path
}

const validYAML = `
dry_run: true
log_level: debug
traders:
  - address: "0xAbc0000000000000000000000000000000000001"
    copy_percentage: "0.1"
    min_copy_amount: "10"
    max_copy_amount: "400"
    max_daily_copy: "1000"
    min_trader_amount: "100"
    categories_filter: ["Politics", "Sports"]
    copy_sells: false
monitor:
  poll_interval: 15
  enable_websocket: true
submit:
  max_attempts: 7
ops:
  enabled: true
  listen_addr: "127.0.0.1:9000"
`

func TestLoadFromYAML(t *testing.T) {
	path := writeConfigFile(t, "copybot.yaml", validYAML)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile error: %v", err)
	}

	if !cfg.DryRun {
		t.Errorf("dry_run 应为 true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level got=%s want=debug", cfg.LogLevel)
	}
	if cfg.Monitor.PollInterval != 15 {
		t.Errorf("poll_interval got=%d want=15", cfg.Monitor.PollInterval)
	}
	if !cfg.Monitor.EnableWebsocket {
		t.Errorf("enable_websocket 应为 true")
	}
	if cfg.Submit.MaxAttempts != 7 {
		t.Errorf("max_attempts got=%d want=7", cfg.Submit.MaxAttempts)
	}
	if cfg.Ops.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("listen_addr got=%s", cfg.Ops.ListenAddr)
	}

	if len(cfg.Traders) != 1 {
		t.Fatalf("traders got=%d want=1", len(cfg.Traders))
	}
	tc := cfg.Traders[0]
	if !tc.CopyPercentage.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("copy_percentage got=%s", tc.CopyPercentage)
	}
	if !tc.MaxDailyCopy.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("max_daily_copy got=%s", tc.MaxDailyCopy)
	}
	if len(tc.CategoriesFilter) != 2 {
		t.Errorf("categories_filter got=%v", tc.CategoriesFilter)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "minimal.yaml", "dry_run: true\n")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile error: %v", err)
	}

	if cfg.Monitor.PollInterval != 30 {
		t.Errorf("默认 poll_interval got=%d want=30", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.SeenRetention != 48 {
		t.Errorf("默认 seen_retention got=%d want=48", cfg.Monitor.SeenRetention)
	}
	if cfg.Submit.MaxAttempts != 5 {
		t.Errorf("默认 max_attempts got=%d want=5", cfg.Submit.MaxAttempts)
	}
	if cfg.Submit.InitialBackoff != 500 {
		t.Errorf("默认 initial_backoff got=%d want=500", cfg.Submit.InitialBackoff)
	}
	if cfg.Ops.ListenAddr != "127.0.0.1:8089" {
		t.Errorf("默认 listen_addr got=%s", cfg.Ops.ListenAddr)
	}
	if cfg.Store.OrderDBDir != "data/orders" {
		t.Errorf("默认 order_db_dir got=%s", cfg.Store.OrderDBDir)
	}
}

// 非 dry_run 模式必须配置私钥
func TestValidateRequiresWalletKey(t *testing.T) {
	path := writeConfigFile(t, "nokey.yaml", "dry_run: false\n")

	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("缺少私钥应报错")
	}
}

func TestValidateRejectsBadTrader(t *testing.T) {
	bad := `
dry_run: true
traders:
  - address: "0xabc"
    copy_percentage: "1.5"
    min_copy_amount: "10"
    max_copy_amount: "400"
    max_daily_copy: "1000"
`
	path := writeConfigFile(t, "badtrader.yaml", bad)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("copy_percentage > 1 应整体拒绝")
	}
}

func TestLoadRejectsMalformedAmount(t *testing.T) {
	bad := `
dry_run: true
traders:
  - address: "0xabc0000000000000000000000000000000000001"
    copy_percentage: "ten percent"
    min_copy_amount: "10"
    max_copy_amount: "400"
    max_daily_copy: "1000"
`
	path := writeConfigFile(t, "badamount.yaml", bad)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("非法金额字符串应报错")
	}
}

func TestValidateRejectsDuplicateTrader(t *testing.T) {
	dup := `
dry_run: true
traders:
  - address: "0xABC0000000000000000000000000000000000001"
    copy_percentage: "0.1"
    min_copy_amount: "10"
    max_copy_amount: "400"
    max_daily_copy: "1000"
  - address: "0xabc0000000000000000000000000000000000001"
    copy_percentage: "0.2"
    min_copy_amount: "10"
    max_copy_amount: "400"
    max_daily_copy: "1000"
`
	path := writeConfigFile(t, "dup.yaml", dup)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("重复地址（不同大小写）应被拒绝")
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfigFile(t, "config.toml", "dry_run = true")
	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("不支持的扩展名应报错")
	}
}

func TestTraderConfigValidate(t *testing.T) {
	valid := domain.TraderConfig{
		Address:        "0xabc",
		CopyPercentage: decimal.NewFromFloat(0.5),
		MinCopyAmount:  decimal.NewFromInt(10),
		MaxCopyAmount:  decimal.NewFromInt(100),
		MaxDailyCopy:   decimal.NewFromInt(500),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.TraderConfig)
	}{
		{"空地址", func(c *domain.TraderConfig) { c.Address = "  " }},
		{"比例为零", func(c *domain.TraderConfig) { c.CopyPercentage = decimal.Zero }},
		{"比例大于一", func(c *domain.TraderConfig) { c.CopyPercentage = decimal.NewFromInt(2) }},
		{"下限为负", func(c *domain.TraderConfig) { c.MinCopyAmount = decimal.NewFromInt(-1) }},
		{"下限大于上限", func(c *domain.TraderConfig) { c.MinCopyAmount = decimal.NewFromInt(200) }},
		{"赔率上限越界", func(c *domain.TraderConfig) { c.MaxOddsThreshold = decimal.NewFromInt(2) }},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: 应报错", tc.name)
		}
	}
}
