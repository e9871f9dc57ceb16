package cmd

import (
	"fmt"
	"os"
	"syscall"

	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/pkg/address"
	"vault-core/pkg/bip39"
	"vault-core/pkg/keystore"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// deriveCmd 从 Keystore 批量派生 owner 的地址, 用于离线核对充值地址
var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "按 owner 批量派生地址",
	Long:  `加载本地 Keystore，按 owner 基路径连续派生指定数量的地址。`,
	Run: func(cmd *cobra.Command, args []string) {
		keystoreFile, _ := cmd.Flags().GetString("keystore")
		ownerName, _ := cmd.Flags().GetString("owner")
		start, _ := cmd.Flags().GetUint32("start")
		count, _ := cmd.Flags().GetUint32("count")
		typName, _ := cmd.Flags().GetString("type")
		networkName, _ := cmd.Flags().GetString("network")

		var typ address.BTCAddressType
		switch typName {
		case "p2pkh":
			typ = address.P2PKH
		case "p2wpkh":
			typ = address.P2WPKH
		default:
			fmt.Printf("不支持的地址类型: %s (可选 p2pkh / p2wpkh)\n", typName)
			os.Exit(1)
		}

		encryptedKey, err := keystore.LoadFromFile(keystoreFile)
		if err != nil {
			fmt.Printf("加载 Keystore 失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Print("请输入 Keystore 密码: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\n读取密码失败:", err)
			os.Exit(1)
		}
		fmt.Println()

		mnemonic, err := keystore.DecryptMnemonic(encryptedKey, string(bytePassword))
		if err != nil {
			fmt.Printf("解密失败 (密码错误?): %v\n", err)
			os.Exit(1)
		}

		seed := bip39.NewMnemonicService().MnemonicToSeed(mnemonic, "")

		owner := model.Owner(ownerName)
		path := hdwallet.OwnerPath(owner)
		engine, err := hdwallet.New(seed, path, resolveNetwork(networkName), nil)
		if err != nil {
			fmt.Printf("初始化派生引擎失败: %v\n", err)
			os.Exit(1)
		}

		addrs, err := engine.BatchDeriveAddresses(start, count, typ)
		if err != nil {
			fmt.Printf("派生失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Owner: %s (基路径 %s, 类型 %s)\n", owner, path, typ)
		for _, a := range addrs {
			fmt.Printf("  [%d] %s\n", a.Index, a.Address)
		}
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
	deriveCmd.Flags().StringP("keystore", "k", "wallet.json", "Keystore 文件路径")
	deriveCmd.Flags().String("owner", "", "金库 owner 名称")
	deriveCmd.Flags().Uint32("start", 0, "起始派生索引")
	deriveCmd.Flags().Uint32("count", 5, "派生数量")
	deriveCmd.Flags().String("type", "p2wpkh", "地址类型: p2pkh / p2wpkh")
	deriveCmd.Flags().String("network", "mainnet", "网络: mainnet / testnet / regtest")

	deriveCmd.MarkFlagRequired("owner")
}
