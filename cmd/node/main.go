// QPC节点入口
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qpchain/v1/internal/app"
)

var (
	configPath  string
	mining      bool
	minerAddr   string
	listenAddrs []string
)

// rootCmd 节点根命令
var rootCmd = &cobra.Command{
	Use:   "qpc-node",
	Short: "QPC工作量证明链节点",
	Long: `QPC节点：运行模幂谜题工作量证明链核心。

启动后节点装配谜题引擎、难度控制、链评分与挖矿协调子系统，
监听外部矿工连接并持续生产区块。`,
	Run: func(cmd *cobra.Command, args []string) {
		app.Run(configPath, app.Overrides{
			Mining:      mining,
			ListenAddrs: listenAddrs,
			MinerAddr:   minerAddr,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（JSON；缺省使用内置默认配置）")
	rootCmd.PersistentFlags().BoolVar(&mining, "mining", true, "是否启动区块生产循环")
	rootCmd.PersistentFlags().StringVar(&minerAddr, "miner-addr", "", "外部矿工multiaddr（覆盖配置文件）")
	rootCmd.PersistentFlags().StringSliceVar(&listenAddrs, "listen", nil, "挖矿协调监听multiaddr（可重复，覆盖配置文件）")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
