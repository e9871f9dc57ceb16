package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"syscall"

	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/pkg/bip39"
	"vault-core/pkg/keystore"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// signCmd 离线签名: 用 owner 派生的私钥对数据摘要签名
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "离线签名 (Offline Signing)",
	Long:  `加载本地 Keystore，按 owner 基路径派生私钥，对输入数据的 SHA-256 摘要签名并输出 DER 十六进制。`,
	Run: func(cmd *cobra.Command, args []string) {
		keystoreFile, _ := cmd.Flags().GetString("keystore")
		ownerName, _ := cmd.Flags().GetString("owner")
		index, _ := cmd.Flags().GetUint32("index")
		dataHex, _ := cmd.Flags().GetString("data")
		networkName, _ := cmd.Flags().GetString("network")

		data, err := hex.DecodeString(dataHex)
		if err != nil {
			fmt.Printf("数据必须是十六进制: %v\n", err)
			os.Exit(1)
		}

		// 1. 加载 Keystore
		fmt.Printf("正在从 %s 加载 Keystore...\n", keystoreFile)
		encryptedKey, err := keystore.LoadFromFile(keystoreFile)
		if err != nil {
			fmt.Printf("加载 Keystore 失败: %v\n", err)
			os.Exit(1)
		}

		// 2. 输入密码并解密
		fmt.Print("请输入 Keystore 密码以确认签名: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\n读取密码失败:", err)
			os.Exit(1)
		}
		fmt.Println()
		password := string(bytePassword)

		mnemonic, err := keystore.DecryptMnemonic(encryptedKey, password)
		if err != nil {
			fmt.Printf("解密失败 (密码错误?): %v\n", err)
			os.Exit(1)
		}

		// 3. 恢复种子并构建派生引擎
		seed := bip39.NewMnemonicService().MnemonicToSeed(mnemonic, "")

		owner := model.Owner(ownerName)
		engine, err := hdwallet.New(seed, hdwallet.OwnerPath(owner), resolveNetwork(networkName), nil)
		if err != nil {
			fmt.Printf("初始化派生引擎失败: %v\n", err)
			os.Exit(1)
		}

		// 4. 签名
		sig, err := engine.SignData(index, data)
		if err != nil {
			fmt.Printf("签名失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n✅ 签名成功!\n")
		fmt.Printf("Owner:     %s\n", owner)
		fmt.Printf("Index:     %d\n", index)
		fmt.Printf("Signature: %s\n", hex.EncodeToString(sig))
	},
}

func resolveNetwork(name string) *chaincfg.Params {
	switch name {
	case "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringP("keystore", "k", "wallet.json", "Keystore 文件路径")
	signCmd.Flags().String("owner", "", "金库 owner 名称")
	signCmd.Flags().Uint32("index", 0, "派生索引")
	signCmd.Flags().StringP("data", "d", "", "待签数据 (Hex)")
	signCmd.Flags().String("network", "mainnet", "网络: mainnet / testnet / regtest")

	signCmd.MarkFlagRequired("owner")
	signCmd.MarkFlagRequired("data")
}
