package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// resourcesCmd 代表 resources 命令
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "查看赞助账户的资源快照",
	Long:  `拉取赞助账户的余额、能量/带宽额度、质押分布与效率比，快照按需计算不落库。`,
	Run: func(cmd *cobra.Command, args []string) {
		_, lg := mustSetup()

		snap, err := lg.Snapshot(context.Background())
		if err != nil {
			fmt.Printf("拉取快照失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("余额 (sun):   %d\n", snap.BalanceSun)
		fmt.Printf("能量:         limit=%d used=%d available=%d\n",
			snap.Energy.Limit, snap.Energy.Used, snap.Energy.Available)
		fmt.Printf("带宽:         limit=%d used=%d available=%d\n",
			snap.Bandwidth.Limit, snap.Bandwidth.Used, snap.Bandwidth.Available)
		fmt.Println("---------------------------------------------------")
		fmt.Printf("质押-能量:    %d sun\n", snap.Stakes.EnergySun)
		fmt.Printf("质押-带宽:    %d sun\n", snap.Stakes.BandwidthSun)
		fmt.Printf("质押-投票权:  %d sun\n", snap.Stakes.GovernanceSun)
		if snap.Stakes.UnclassifiedSun > 0 {
			fmt.Printf("质押-未识别:  %d sun (请人工核对标签)\n", snap.Stakes.UnclassifiedSun)
		}
		fmt.Printf("效率比:       energy=%s bandwidth=%s\n",
			snap.Efficiency.Energy.StringFixed(4), snap.Efficiency.Bandwidth.StringFixed(4))
		fmt.Printf("快照时间:     %s\n", snap.Taken.Format("2006-01-02 15:04:05"))
		fmt.Println("---------------------------------------------------")
	},
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}
