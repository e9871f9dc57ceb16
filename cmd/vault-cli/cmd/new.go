package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"

	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/pkg/address"
	"vault-core/pkg/bip32"
	"vault-core/pkg/bip39"
)

// newCmd 生成一个全新的主钱包并预览派生结果, 不落盘
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "生成一个新的主钱包 (预览, 不保存)",
	Long:  `生成一个新的随机 BIP-39 助记词，显示种子、主密钥以及示例 owner 的派生地址。`,
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")

		fmt.Println("正在生成新钱包...")
		fmt.Println("---------------------------------------------------")

		// 1. 生成助记词
		mnemonicService := bip39.NewMnemonicService()
		mnemonic, err := mnemonicService.GenerateMnemonic(256) // 24 words
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			return
		}
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")

		// 2. 生成种子
		seed := mnemonicService.MnemonicToSeed(mnemonic, "")
		fmt.Printf("种子 (Seed Hex): %s\n", hex.EncodeToString(seed))

		// 3. 主密钥 (xprv/xpub)
		wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
		if err != nil {
			fmt.Printf("生成主密钥失败: %v\n", err)
			return
		}
		masterKey := wallet.MasterKey()
		fmt.Printf("主私钥 (xprv): %s\n", masterKey.String())

		pubMasterKey, _ := masterKey.Neuter()
		fmt.Printf("主公钥 (xpub): %s\n", pubMasterKey.String())
		fmt.Println("---------------------------------------------------")

		// 4. 示例 owner 的派生地址
		path := hdwallet.OwnerPath(model.Owner(owner))
		engine, err := hdwallet.New(seed, path, &chaincfg.MainNetParams, nil)
		if err != nil {
			fmt.Printf("初始化派生引擎失败: %v\n", err)
			return
		}

		fmt.Printf("Owner: %s (基路径 %s)\n", owner, path)

		if btcAddr, err := engine.DeriveAddress(0, address.P2WPKH); err == nil {
			fmt.Printf("Bitcoin Address (P2WPKH) [index 0]: %s\n", btcAddr)
		}
		if btcAddr, err := engine.DeriveAddress(0, address.P2PKH); err == nil {
			fmt.Printf("Bitcoin Address (P2PKH)  [index 0]: %s\n", btcAddr)
		}

		if priv, err := engine.DerivePrivateKey(0); err == nil {
			ethGen := address.NewETHGenerator()
			if ethAddr, err := ethGen.PubKeyToAddress(priv.PubKey().SerializeUncompressed()); err == nil {
				fmt.Printf("Ethereum Address [index 0]: %s\n", ethAddr)
			}
		}

		fmt.Println("---------------------------------------------------")
		fmt.Println("请妥善保管您的助记词！任何拥有助记词的人都可以控制该钱包的所有资产。")
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().String("owner", "treasury", "用于预览派生地址的 owner 名称")
}
