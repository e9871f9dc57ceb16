package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "vault-cli",
	Short: "托管金库命令行工具",
	Long: `vault-core 的离线运维工具。
支持初始化加密 Keystore、生成 BIP-39 助记词、按 owner 派生 BTC/ETH 地址以及离线签名。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 在这里可以定义全局标志 (Global Flags)
}
