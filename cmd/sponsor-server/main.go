package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/handler"
	"sponsor-core/internal/ledger"
	"sponsor-core/internal/model"
	"sponsor-core/internal/server"
	"sponsor-core/internal/service"
	"sponsor-core/internal/service/mq"
	"sponsor-core/internal/sponsor"
	"sponsor-core/internal/store"
	"sponsor-core/pkg/config"
	"sponsor-core/pkg/database"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
	"sponsor-core/pkg/tronaddr"
	"sponsor-core/pkg/utils/lock"
)

func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 初始化监控指标
	monitor.Init()

	cfg := config.Global
	if !tronaddr.IsValid(cfg.Sponsor.Address) {
		logger.Fatal("赞助账户地址非法", zap.String("address", cfg.Sponsor.Address))
	}
	costs := ledger.Costs{
		EnergyPerTx:    cfg.Sponsor.EnergyPerTx,
		BandwidthPerTx: cfg.Sponsor.BandwidthPerTx,
		ActivationSun:  cfg.Sponsor.ActivationSun,
	}
	if err := costs.Validate(); err != nil {
		logger.Fatal("赞助开销配置非法", zap.Error(err))
	}

	// 3. 数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}
	requestStore := store.NewGormStore(db)

	// 4. Redis (分布式锁 + 可选 MQ)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	dlock := lock.NewRedisLock(rdb)

	// 5. MQ Producer (运营告警通道)
	var producer mq.Producer
	if cfg.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为告警通道...")
		producer = mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
	} else {
		logger.Info("使用 Redis Streams 作为告警通道...")
		producer = mq.NewRedisProducer(rdb)
	}
	alerter := service.NewAlerter(producer, cfg.Kafka.AlertTopic)

	// 6. 链客户端 + 资源账本
	client := chain.NewNodeClient(chain.NodeClientOptions{
		BaseURL:    cfg.Chain.NodeURL,
		APIKey:     cfg.Chain.APIKey,
		Timeout:    cfg.Chain.Timeout,
		DefaultKey: cfg.Chain.PrivateKey,
	})
	resourceLedger := ledger.New(client, cfg.Sponsor.Address, costs)

	// 7. 回执等待器 + 编排器
	waiter := chain.NewWaiter(client.GetReceipt, cfg.Monitor.ConfirmAttempts, cfg.Monitor.ConfirmDelay)
	sizing := sponsor.Sizing{
		ActivationSun:   cfg.Sponsor.ActivationSun,
		EnergyPerTx:     cfg.Sponsor.EnergyPerTx,
		BandwidthPerTx:  cfg.Sponsor.BandwidthPerTx,
		DailyTxEstimate: cfg.Sponsor.DailyTxEstimate,
		MinDelegateSun:  cfg.Sponsor.MinDelegateSun,
		EnergyPerSun:    decimal.RequireFromString(cfg.Sponsor.EnergyPerSun),
		BandwidthPerSun: decimal.RequireFromString(cfg.Sponsor.BandwidthPerSun),
	}
	orchestrator := sponsor.NewOrchestrator(client, resourceLedger, waiter, dlock, cfg.Sponsor.Address, sizing)

	// 8. 后台服务
	ctx, cancel := context.WithCancel(context.Background())

	paymentMonitor := service.NewPaymentMonitor(requestStore, client, orchestrator, alerter, service.MonitorOptions{
		USDTContract: cfg.Chain.USDTContract,
		Interval:     cfg.Monitor.ScanInterval,
		BatchSize:    cfg.Monitor.ScanBatchSize,
		SponsorDays:  cfg.Sponsor.DefaultDays,
	})
	paymentMonitor.Start(ctx)

	if cfg.Sponsor.TreasuryAddress != "" {
		sweeper := service.NewSweeperService(requestStore, client, waiter, alerter, dlock,
			cfg.Chain.USDTContract, cfg.Sponsor.TreasuryAddress, cfg.Monitor.ScanInterval, cfg.Monitor.ScanBatchSize)
		sweeper.Start(ctx)
	} else {
		logger.Warn("未配置国库地址，归集服务不启动")
	}

	cronService := service.NewCronService(dlock, requestStore, resourceLedger, alerter,
		cfg.Monitor.PendingTTL, cfg.Monitor.ActivatingTimeout, cfg.Monitor.MaxSponsorRetries)
	cronService.Start()
	defer cronService.Stop()

	// 9. HTTP (健康检查 / 指标 / 运维查询)
	ops := handler.NewOpsHandler(resourceLedger, requestStore)
	router := server.NewHTTPRouter(ops)

	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, router, cancel)
	app.Run()

	// 10. 退出后资源清理
	logger.Info("正在关闭连接...")
	producer.Close()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}
