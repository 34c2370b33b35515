package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/copybot/internal/domain"
)

// WalletConfig 钱包配置
type WalletConfig struct {
	PrivateKey    string
	FunderAddress string
}

// MonitorConfig 活动监控配置
type MonitorConfig struct {
	PollInterval     int  // 轮询间隔（秒），默认 30
	EnableWebsocket  bool // 是否启用 WebSocket 推送（轮询仍然保留，作为兜底）
	SeenRetention    int  // 已见交易去重的保留时长（小时），默认 48
	ActivityPageSize int  // 每次轮询拉取的活动条数，默认 100
}

// SubmitConfig 订单提交配置
type SubmitConfig struct {
	MaxAttempts    int // 最大尝试次数（含首次），默认 5
	InitialBackoff int // 首次重试退避（毫秒），默认 500
	MaxBackoff     int // 退避上限（毫秒），默认 10000
}

// OpsConfig 运维 HTTP 接口配置
type OpsConfig struct {
	Enabled    bool
	ListenAddr string // 默认 "127.0.0.1:8089"
}

// StoreConfig 持久化配置
type StoreConfig struct {
	DataDir    string // 预算状态等 JSON 文件目录，默认 "data"
	OrderDBDir string // 订单记录 badger 目录，默认 "data/orders"
	HistoryDB  string // 成交历史 sqlite 文件，默认 "data/history.db"
}

// Config 应用配置
type Config struct {
	Wallet   WalletConfig
	Traders  []domain.TraderConfig // 跟单的交易员列表
	Monitor  MonitorConfig
	Submit   SubmitConfig
	Ops      OpsConfig
	Store    StoreConfig
	LogLevel string // 日志级别
	LogFile  string // 日志文件路径（可选）
	DryRun   bool   // 纸交易模式，为 true 时不提交真实订单，只记录日志
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// TraderFileConfig 配置文件里的交易员条目
// 金额字段以字符串解析后转为 decimal，避免 YAML 数字经过 float64 损失精度
type TraderFileConfig struct {
	Address          string   `yaml:"address" json:"address"`
	CopyPercentage   string   `yaml:"copy_percentage" json:"copy_percentage"`
	MinCopyAmount    string   `yaml:"min_copy_amount" json:"min_copy_amount"`
	MaxCopyAmount    string   `yaml:"max_copy_amount" json:"max_copy_amount"`
	MaxDailyCopy     string   `yaml:"max_daily_copy" json:"max_daily_copy"`
	CategoriesFilter []string `yaml:"categories_filter" json:"categories_filter"`
	MinTraderAmount  string   `yaml:"min_trader_amount" json:"min_trader_amount"`
	MaxOddsThreshold string   `yaml:"max_odds_threshold" json:"max_odds_threshold"`
	CopySells        bool     `yaml:"copy_sells" json:"copy_sells"`
}

// toDomain 转换为领域配置，任意金额字段非法即报错
func (t *TraderFileConfig) toDomain() (domain.TraderConfig, error) {
	tc := domain.TraderConfig{
		Address:          t.Address,
		CategoriesFilter: t.CategoriesFilter,
		CopySells:        t.CopySells,
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"copy_percentage", t.CopyPercentage, &tc.CopyPercentage},
		{"min_copy_amount", t.MinCopyAmount, &tc.MinCopyAmount},
		{"max_copy_amount", t.MaxCopyAmount, &tc.MaxCopyAmount},
		{"max_daily_copy", t.MaxDailyCopy, &tc.MaxDailyCopy},
		{"min_trader_amount", t.MinTraderAmount, &tc.MinTraderAmount},
		{"max_odds_threshold", t.MaxOddsThreshold, &tc.MaxOddsThreshold},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return tc, fmt.Errorf("%w: %s 非法: %q", domain.ErrConfiguration, f.name, f.raw)
		}
		*f.dst = d
	}
	return tc, nil
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Wallet struct {
		PrivateKey    string `yaml:"private_key" json:"private_key"`
		FunderAddress string `yaml:"funder_address" json:"funder_address"`
	} `yaml:"wallet" json:"wallet"`
	Traders []TraderFileConfig `yaml:"traders" json:"traders"`
	Monitor struct {
		PollInterval     int  `yaml:"poll_interval" json:"poll_interval"`
		EnableWebsocket  bool `yaml:"enable_websocket" json:"enable_websocket"`
		SeenRetention    int  `yaml:"seen_retention_hours" json:"seen_retention_hours"`
		ActivityPageSize int  `yaml:"activity_page_size" json:"activity_page_size"`
	} `yaml:"monitor" json:"monitor"`
	Submit struct {
		MaxAttempts    int `yaml:"max_attempts" json:"max_attempts"`
		InitialBackoff int `yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
		MaxBackoff     int `yaml:"max_backoff_ms" json:"max_backoff_ms"`
	} `yaml:"submit" json:"submit"`
	Ops struct {
		Enabled    bool   `yaml:"enabled" json:"enabled"`
		ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	} `yaml:"ops" json:"ops"`
	Store struct {
		DataDir    string `yaml:"data_dir" json:"data_dir"`
		OrderDBDir string `yaml:"order_db_dir" json:"order_db_dir"`
		HistoryDB  string `yaml:"history_db" json:"history_db"`
	} `yaml:"store" json:"store"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	DryRun   bool   `yaml:"dry_run" json:"dry_run"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置
// 优先级：配置文件 > 环境变量 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	config := &Config{
		Wallet: WalletConfig{
			PrivateKey:    getValueFromSources(configFile != nil && configFile.Wallet.PrivateKey != "", safeWalletPrivateKey(configFile), getEnv("WALLET_PRIVATE_KEY", "")),
			FunderAddress: getValueFromSources(configFile != nil && configFile.Wallet.FunderAddress != "", safeWalletFunder(configFile), getEnv("WALLET_FUNDER_ADDRESS", "")),
		},
		Monitor: MonitorConfig{
			PollInterval:     getIntFromSources(configFile != nil && configFile.Monitor.PollInterval > 0, safeMonitorInt(configFile, func(cf *ConfigFile) int { return cf.Monitor.PollInterval }), parseIntEnv("MONITOR_POLL_INTERVAL", 30)),
			EnableWebsocket:  getBoolFromSources(configFile != nil, safeMonitorBool(configFile, func(cf *ConfigFile) bool { return cf.Monitor.EnableWebsocket }), parseBoolEnv("MONITOR_ENABLE_WEBSOCKET", false)),
			SeenRetention:    getIntFromSources(configFile != nil && configFile.Monitor.SeenRetention > 0, safeMonitorInt(configFile, func(cf *ConfigFile) int { return cf.Monitor.SeenRetention }), parseIntEnv("MONITOR_SEEN_RETENTION_HOURS", 48)),
			ActivityPageSize: getIntFromSources(configFile != nil && configFile.Monitor.ActivityPageSize > 0, safeMonitorInt(configFile, func(cf *ConfigFile) int { return cf.Monitor.ActivityPageSize }), parseIntEnv("MONITOR_ACTIVITY_PAGE_SIZE", 100)),
		},
		Submit: SubmitConfig{
			MaxAttempts:    getIntFromSources(configFile != nil && configFile.Submit.MaxAttempts > 0, safeSubmitInt(configFile, func(cf *ConfigFile) int { return cf.Submit.MaxAttempts }), parseIntEnv("SUBMIT_MAX_ATTEMPTS", 5)),
			InitialBackoff: getIntFromSources(configFile != nil && configFile.Submit.InitialBackoff > 0, safeSubmitInt(configFile, func(cf *ConfigFile) int { return cf.Submit.InitialBackoff }), parseIntEnv("SUBMIT_INITIAL_BACKOFF_MS", 500)),
			MaxBackoff:     getIntFromSources(configFile != nil && configFile.Submit.MaxBackoff > 0, safeSubmitInt(configFile, func(cf *ConfigFile) int { return cf.Submit.MaxBackoff }), parseIntEnv("SUBMIT_MAX_BACKOFF_MS", 10000)),
		},
		Ops: OpsConfig{
			Enabled:    getBoolFromSources(configFile != nil, configFile != nil && configFile.Ops.Enabled, parseBoolEnv("OPS_ENABLED", false)),
			ListenAddr: getValueFromSources(configFile != nil && configFile.Ops.ListenAddr != "", safeOpsAddr(configFile), getEnv("OPS_LISTEN_ADDR", "127.0.0.1:8089")),
		},
		Store: StoreConfig{
			DataDir:    getValueFromSources(configFile != nil && configFile.Store.DataDir != "", safeStoreString(configFile, func(cf *ConfigFile) string { return cf.Store.DataDir }), getEnv("STORE_DATA_DIR", "data")),
			OrderDBDir: getValueFromSources(configFile != nil && configFile.Store.OrderDBDir != "", safeStoreString(configFile, func(cf *ConfigFile) string { return cf.Store.OrderDBDir }), getEnv("STORE_ORDER_DB_DIR", "data/orders")),
			HistoryDB:  getValueFromSources(configFile != nil && configFile.Store.HistoryDB != "", safeStoreString(configFile, func(cf *ConfigFile) string { return cf.Store.HistoryDB }), getEnv("STORE_HISTORY_DB", "data/history.db")),
		},
		LogLevel: func() string {
			if configFile != nil && configFile.LogLevel != "" {
				return configFile.LogLevel
			}
			return getEnv("LOG_LEVEL", "info")
		}(),
		LogFile: func() string {
			if configFile != nil && configFile.LogFile != "" {
				return configFile.LogFile
			}
			return getEnv("LOG_FILE", "logs/copybot.log")
		}(),
		DryRun: func() bool {
			if configFile != nil {
				return configFile.DryRun
			}
			return parseBoolEnv("DRY_RUN", false)
		}(),
	}

	if configFile != nil {
		for i := range configFile.Traders {
			tc, err := configFile.Traders[i].toDomain()
			if err != nil {
				return nil, fmt.Errorf("交易员配置 #%d: %w", i, err)
			}
			config.Traders = append(config.Traders, tc)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Get 获取全局配置（必须先调用 Load）
func Get() *Config {
	return globalConfig
}

// Validate 校验配置
// 交易员配置逐条校验，任意一条非法即整体拒绝启动
func (c *Config) Validate() error {
	if !c.DryRun && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("%w: 非 dry_run 模式下必须配置钱包私钥", domain.ErrConfiguration)
	}

	seen := make(map[string]bool)
	for i := range c.Traders {
		tc := &c.Traders[i]
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("交易员配置 #%d (%s): %w", i, tc.Address, err)
		}
		addr := strings.ToLower(tc.Address)
		if seen[addr] {
			return fmt.Errorf("%w: 重复的交易员地址 %s", domain.ErrConfiguration, tc.Address)
		}
		seen[addr] = true
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval 必须大于 0", domain.ErrConfiguration)
	}
	if c.Submit.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts 必须大于 0", domain.ErrConfiguration)
	}

	return nil
}

func safeWalletPrivateKey(cf *ConfigFile) string {
	if cf == nil {
		return ""
	}
	return cf.Wallet.PrivateKey
}

func safeWalletFunder(cf *ConfigFile) string {
	if cf == nil {
		return ""
	}
	return cf.Wallet.FunderAddress
}

func safeMonitorInt(cf *ConfigFile, getter func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func safeMonitorBool(cf *ConfigFile, getter func(*ConfigFile) bool) bool {
	if cf == nil {
		return false
	}
	return getter(cf)
}

func safeSubmitInt(cf *ConfigFile, getter func(*ConfigFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

func safeOpsAddr(cf *ConfigFile) string {
	if cf == nil {
		return ""
	}
	return cf.Ops.ListenAddr
}

func safeStoreString(cf *ConfigFile, getter func(*ConfigFile) string) string {
	if cf == nil {
		return ""
	}
	return getter(cf)
}

// getValueFromSources 从多个源获取字符串值（优先级：配置文件 > 环境变量/默认值）
func getValueFromSources(hasConfigValue bool, configValue, envValue string) string {
	if hasConfigValue && configValue != "" {
		return configValue
	}
	return envValue
}

// getIntFromSources 从多个源获取整数值
func getIntFromSources(hasConfigValue bool, configValue, envValue int) int {
	if hasConfigValue {
		return configValue
	}
	return envValue
}

// getBoolFromSources 从多个源获取布尔值
func getBoolFromSources(hasConfigValue bool, configValue, envValue bool) bool {
	if hasConfigValue {
		return configValue
	}
	return envValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
