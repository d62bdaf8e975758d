package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// capacityCmd 代表 capacity 命令
var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "查看当日可赞助容量",
	Long:  `按当前链上余额与资源余量估算：今天还能支撑多少笔交易、激活多少个新地址，以及瓶颈资源。`,
	Run: func(cmd *cobra.Command, args []string) {
		_, lg := mustSetup()

		c, err := lg.DailyCapacity(context.Background())
		if err != nil {
			fmt.Printf("容量计算失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("可支撑交易笔数: %d\n", c.TxCapacity)
		fmt.Printf("可激活地址数量: %d\n", c.ActivationCapacity)
		fmt.Printf("瓶颈资源:       %s\n", c.Bottleneck)
		fmt.Println("---------------------------------------------------")
	},
}

func init() {
	rootCmd.AddCommand(capacityCmd)
}
