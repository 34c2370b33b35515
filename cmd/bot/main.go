package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/monitor"
	"github.com/betbot/copybot/internal/ops"
	"github.com/betbot/copybot/internal/registry"
	"github.com/betbot/copybot/internal/replicate"
	"github.com/betbot/copybot/internal/store"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/persistence"
	"github.com/betbot/copybot/pkg/ratelimit"
	"github.com/betbot/copybot/pkg/sdk/api"
	"github.com/betbot/copybot/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不提交真实订单")
	flag.Parse()

	// .env 文件可选，不存在就跳过
	_ = godotenv.Load()

	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	if *configPath != "" {
		config.SetConfigPath(*configPath)
		logrus.Infof("使用配置文件: %s", *configPath)
	} else if _, err := os.Stat("copybot.yaml"); err == nil {
		config.SetConfigPath("copybot.yaml")
		logrus.Info("使用默认配置文件: copybot.yaml")
	} else {
		logrus.Warnf("未指定配置文件，将使用环境变量和默认值")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	// 使用配置重新初始化日志
	logConfig := logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}
	if err := logger.Init(logConfig); err != nil {
		logrus.Errorf("重新初始化日志失败: %v", err)
		os.Exit(1)
	}

	logrus.Info("🚀 启动跟单机器人...")
	if cfg.DryRun {
		logrus.Warnf("📝 纸交易模式已启用：不会提交真实订单，镜像订单仅记录在本地")
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 注册表：启动时任意一条交易员配置非法即拒绝启动
	reg, err := registry.NewFromConfigs(cfg.Traders)
	if err != nil {
		logrus.Errorf("交易员配置无效: %v", err)
		os.Exit(1)
	}
	logrus.Infof("已加载 %d 个交易员", reg.Len())

	// 持久化：预算窗口（JSON）、订单记录（badger）、成交历史（sqlite）
	persistenceService := persistence.NewJSONFileService(cfg.Store.DataDir)

	orderStore, err := store.OpenOrderStore(cfg.Store.OrderDBDir)
	if err != nil {
		logrus.Errorf("打开订单存储失败: %v", err)
		os.Exit(1)
	}

	historyStore, err := store.OpenHistoryStore(cfg.Store.HistoryDB)
	if err != nil {
		logrus.Errorf("打开历史存储失败: %v", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewManager()
	dataClient := api.NewClient()

	// CLOB 客户端：dry_run 模式下不需要私钥和 API 凭证
	var exchange replicate.ExchangeClient
	var lookup replicate.OrderLookup
	if !cfg.DryRun {
		auth, err := api.NewAuthFromKey(cfg.Wallet.PrivateKey)
		if err != nil {
			logrus.Errorf("解析私钥失败: %v", err)
			os.Exit(1)
		}

		clobClient, err := api.NewClobClient(os.Getenv("POLYMARKET_CLOB_API_URL"), auth)
		if err != nil {
			logrus.Errorf("创建 CLOB 客户端失败: %v", err)
			os.Exit(1)
		}

		logrus.Info("推导 API 凭证...")
		creds, err := clobClient.DeriveAPICreds(rootCtx)
		if err != nil {
			logrus.Errorf("推导 API 凭证失败: %v", err)
			os.Exit(1)
		}
		logrus.Infof("API 凭证已获取: key=%s...", creds.APIKey[:12])

		if cfg.Wallet.FunderAddress != "" {
			clobClient.SetFunder(cfg.Wallet.FunderAddress)
			clobClient.SetSignatureType(2)
			logrus.Infof("已配置代理钱包: funderAddress=%s", cfg.Wallet.FunderAddress)
		}

		exchange = clobClient
		lookup = clobClient
	}

	resolver := monitor.NewCategoryResolver(dataClient)
	mon := monitor.New(monitor.Config{
		PollInterval:    time.Duration(cfg.Monitor.PollInterval) * time.Second,
		PageSize:        cfg.Monitor.ActivityPageSize,
		SeenRetention:   time.Duration(cfg.Monitor.SeenRetention) * time.Hour,
		EnableWebsocket: cfg.Monitor.EnableWebsocket,
	}, dataClient, resolver, reg, limiter)

	budget := replicate.NewBudgetTracker(persistenceService)
	submitter := replicate.NewSubmitter(replicate.SubmitConfig{
		MaxAttempts:    cfg.Submit.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Submit.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Submit.MaxBackoff) * time.Millisecond,
		DryRun:         cfg.DryRun,
	}, exchange, orderStore, historyStore, limiter)

	// 启动对账：处理上次运行崩溃时遗留的 pending 订单记录
	if err := submitter.ReconcilePending(rootCtx, lookup); err != nil {
		logrus.Errorf("启动对账失败: %v", err)
		os.Exit(1)
	}

	coordinator := replicate.NewCoordinator(reg, mon, budget, submitter)
	if err := coordinator.Start(rootCtx); err != nil {
		logrus.Errorf("启动协调器失败: %v", err)
		os.Exit(1)
	}

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.New(cfg.Ops, coordinator, historyStore)
		opsServer.Start()
	}

	// 关停顺序：先停协调器排空在途订单，再关运维接口和存储
	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if err := coordinator.Stop(ctx); err != nil {
			logrus.Errorf("停止协调器失败: %v", err)
		}
	})
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if opsServer != nil {
			if err := opsServer.Stop(ctx); err != nil {
				logrus.Errorf("停止运维接口失败: %v", err)
			}
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logrus.Infof("收到信号 %v，开始关停...", sig)

	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)

	if err := orderStore.Close(); err != nil {
		logrus.Errorf("关闭订单存储失败: %v", err)
	}
	if err := historyStore.Close(); err != nil {
		logrus.Errorf("关闭历史存储失败: %v", err)
	}

	logrus.Info("跟单机器人已退出")
}
