package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/sponsor"
	"sponsor-core/pkg/config"
	"sponsor-core/pkg/tronaddr"
	"sponsor-core/pkg/utils/lock"
)

// sponsorCmd 代表 sponsor 命令
var sponsorCmd = &cobra.Command{
	Use:   "sponsor <address>",
	Short: "手动赞助一个 TRON 地址",
	Long: `对指定地址执行完整赞助流程：激活 (如未激活) -> 能量代理 -> 带宽代理。
与线上监控走同一把分布式锁，可以安全地和服务并行使用。`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		address := args[0]
		days, _ := cmd.Flags().GetInt("days")

		if !tronaddr.IsValid(address) {
			fmt.Printf("地址非法: %s\n", address)
			os.Exit(1)
		}

		client, lg := mustSetup()
		cfg := config.Global
		if days <= 0 {
			days = cfg.Sponsor.DefaultDays
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		dlock := lock.NewRedisLock(rdb)

		waiter := chain.NewWaiter(client.GetReceipt, cfg.Monitor.ConfirmAttempts, cfg.Monitor.ConfirmDelay)
		orch := sponsor.NewOrchestrator(client, lg, waiter, dlock, cfg.Sponsor.Address, sponsor.Sizing{
			ActivationSun:   cfg.Sponsor.ActivationSun,
			EnergyPerTx:     cfg.Sponsor.EnergyPerTx,
			BandwidthPerTx:  cfg.Sponsor.BandwidthPerTx,
			DailyTxEstimate: cfg.Sponsor.DailyTxEstimate,
			MinDelegateSun:  cfg.Sponsor.MinDelegateSun,
			EnergyPerSun:    decimal.RequireFromString(cfg.Sponsor.EnergyPerSun),
			BandwidthPerSun: decimal.RequireFromString(cfg.Sponsor.BandwidthPerSun),
		})

		fmt.Printf("正在赞助 %s (时长 %d 天)...\n", address, days)
		result, err := orch.Sponsor(context.Background(), address, days)
		if err != nil {
			fmt.Printf("❌ 赞助失败: %v\n", err)
			if result != nil {
				printResult(result)
			}
			os.Exit(1)
		}
		fmt.Printf("✅ 赞助完成: %s\n", result.Outcome)
		printResult(result)
	},
}

func printResult(r *sponsor.Result) {
	fmt.Println("---------------------------------------------------")
	if r.ActivationTx != "" {
		fmt.Printf("激活交易:   %s\n", r.ActivationTx)
	}
	if r.EnergyTx != "" {
		fmt.Printf("能量代理:   %s\n", r.EnergyTx)
	}
	if r.BandwidthTx != "" {
		fmt.Printf("带宽代理:   %s\n", r.BandwidthTx)
	}
	if r.Reason != "" {
		fmt.Printf("原因:       %s\n", r.Reason)
	}
	fmt.Println("---------------------------------------------------")
}

func init() {
	sponsorCmd.Flags().IntP("days", "d", 0, "代理时长 (天)，0 表示使用配置默认值")
	rootCmd.AddCommand(sponsorCmd)
}
