package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/ledger"
	"sponsor-core/pkg/config"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "sponsor-cli",
	Short: "TRON 赞助账户运维工具",
	Long: `赞助服务的命令行运维工具。
查看赞助账户的资源快照与当日容量，或手动对某个地址执行赞助。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// mustSetup 加载配置并构造链客户端与资源账本，所有子命令共用
// 业务指标必须在任何赞助流程前初始化，否则确认计时会空指针
func mustSetup() (chain.Client, *ledger.Ledger) {
	config.Init()
	logger.Init(config.Global.App.Env)
	monitor.InitBusinessMetrics()

	cfg := config.Global
	costs := ledger.Costs{
		EnergyPerTx:    cfg.Sponsor.EnergyPerTx,
		BandwidthPerTx: cfg.Sponsor.BandwidthPerTx,
		ActivationSun:  cfg.Sponsor.ActivationSun,
	}
	if err := costs.Validate(); err != nil {
		logger.Fatal("赞助开销配置非法", zap.Error(err))
	}
	client := chain.NewNodeClient(chain.NodeClientOptions{
		BaseURL:    cfg.Chain.NodeURL,
		APIKey:     cfg.Chain.APIKey,
		Timeout:    cfg.Chain.Timeout,
		DefaultKey: cfg.Chain.PrivateKey,
	})
	return client, ledger.New(client, cfg.Sponsor.Address, costs)
}
