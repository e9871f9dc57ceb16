package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"vault-core/internal/backup"
	"vault-core/internal/hdwallet"
	"vault-core/internal/ledger"
	"vault-core/internal/model"
	"vault-core/internal/server"
	"vault-core/internal/service"
	"vault-core/internal/service/mq"
	"vault-core/internal/signing"
	"vault-core/internal/vault"

	"vault-core/pkg/bip39"
	"vault-core/pkg/cache"
	"vault-core/pkg/config"
	"vault-core/pkg/database"
	"vault-core/pkg/keystore"
	"vault-core/pkg/logger"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"
)

// 外部账本/铸币/签名服务的请求超时
const clientTimeout = 10 * time.Second

func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 构造 DSN
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)

	// ---------------------------------------------------------
	// 🔐 Local Key Management
	// 优先尝试从本地 Keystore 文件加载加密的助记词
	// ---------------------------------------------------------
	var mnemonic string
	keystorePath := config.Global.Wallet.KeystorePath
	keystorePassword := config.Global.Wallet.Password

	// 检查 Keystore 文件是否存在
	if _, err := os.Stat(keystorePath); err == nil {
		logger.Info("发现本地 Keystore 文件，尝试加载...", zap.String("path", keystorePath))

		if keystorePassword == "" {
			logger.Fatal("加载 Keystore 失败: 未提供密码 (环境变量 WALLET_PASSWORD)")
		}

		// 加载文件
		encryptedKey, err := keystore.LoadFromFile(keystorePath)
		if err != nil {
			logger.Fatal("读取 Keystore 文件失败", zap.Error(err))
		}

		// 解密
		decryptedMnemonic, err := keystore.DecryptMnemonic(encryptedKey, keystorePassword)
		if err != nil {
			logger.Fatal("解密 Keystore 失败: 密码错误或文件损坏", zap.Error(err))
		}

		mnemonic = decryptedMnemonic
		logger.Info("✅ 成功从 Keystore 加载并解密助记词")
	} else {
		// Fallback: 尝试从环境变量/配置加载 (仅限开发环境)
		if config.Global.Wallet.Mnemonic != "" {
			logger.Warn("⚠️  未找到 Keystore 文件，使用配置文件中的明文助记词 (仅限开发环境使用，生产环境极不安全!)")
			mnemonic = config.Global.Wallet.Mnemonic
		} else {
			logger.Fatal("启动失败: 未找到 Keystore 文件，且未配置 WALLET_MNEMONIC。请先运行 'vault-cli init' 初始化钱包。")
		}
	}

	// 3. 连接数据库
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 5. 初始化核心钱包模块
	// 5.1 生成 Seed
	mnemonicService := bip39.NewMnemonicService()
	seed := mnemonicService.MnemonicToSeed(mnemonic, "")

	network := resolveNetwork(config.Global.Wallet.Network)

	// 5.2 HD 钱包注册表 (每个 owner 一个派生引擎)
	wallets, err := hdwallet.NewRegistry(seed, network, nil)
	if err != nil {
		logger.Fatal("初始化 HD 钱包失败", zap.Error(err))
	}
	logger.Info("Master Seed 加载成功 (内存中)")

	// 5.3 初始化缓存
	// L1: Memory (TTL 1m), L2: Redis (TTL from Set)
	localCache := cache.NewMemoryCache(1*time.Minute, 5*time.Minute)
	redisCache := cache.NewRedisCache(rdb)
	multiCache := cache.NewMultiLevelCache(localCache, redisCache)

	// 6. 外部账本/铸币/签名客户端
	ledgerCfg := config.Global.Ledger
	nativeLedger := ledger.NewHTTPLedger(ledgerCfg.NativeURL, clientTimeout)
	btcLedger := ledger.NewHTTPLedger(ledgerCfg.BtcURL, clientTimeout)
	usdtLedger := ledger.NewHTTPLedger(ledgerCfg.UsdtURL, clientTimeout)
	minter := ledger.NewHTTPMinter(ledgerCfg.MinterURL, clientTimeout)
	oracle := ledger.NewHTTPOracle(config.Global.Signing.OracleURL, clientTimeout)

	// 7. 金库注册表
	vaults := vault.NewRegistry(vault.RegistryConfig{
		NativeLedger: nativeLedger,
		BtcLedger:    btcLedger,
		UsdtLedger:   usdtLedger,
		Minter:       minter,
		Network:      network,
		NativeCfg:    assetConfig(model.AssetNative, config.Global.Vault.Native),
		BtcCfg:       assetConfig(model.AssetBTC, config.Global.Vault.BTC),
		UsdtCfg:      assetConfig(model.AssetUSDT, config.Global.Vault.USDT),
		Limits: map[model.AssetKind]vault.RateLimits{
			model.AssetNative: assetRateLimits(config.Global.Vault.Native),
			model.AssetBTC:    assetRateLimits(config.Global.Vault.BTC),
			model.AssetUSDT:   assetRateLimits(config.Global.Vault.USDT),
		},
	}, nil)

	// 8. 签名服务
	signingSvc := signing.NewService(oracle, signing.Config{
		KeyName:              config.Global.Signing.KeyName,
		MaxRequestsPerMinute: config.Global.Signing.MaxRequestsPerMinute,
	}, nil)

	// 9. 初始化消息队列
	mqType := config.Global.Redis.MQType
	var producer mq.Producer
	if mqType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	}

	// 10. 启动消息中继服务 (Outbox -> MQ)
	relayService := service.NewRelayService(db, producer)
	go relayService.Start(context.Background())

	// 11. 业务服务与备份协调器
	vaultSvc := service.NewVaultService(vaults, wallets, signingSvc, db, producer, multiCache, nil)

	snapshotStore := backup.NewGormStore(db)
	coordinator := backup.NewCoordinator(snapshotStore, signingSvc, wallets, vaults, keystorePassword, nil)

	// 启动时尝试恢复上一次快照, 没有快照属正常冷启动;
	// 恢复失败不阻断启动, 以全新状态继续并留下审计日志
	if err := coordinator.Restore(context.Background()); err != nil {
		if err == backup.ErrNoSnapshot {
			logger.Info("未找到历史快照, 冷启动")
		} else {
			logger.Error("快照恢复失败, 以全新状态启动", zap.Error(err))
		}
	} else {
		logger.Info("已从快照恢复", zap.Int("wallets", vaults.Count()))
	}

	// 12. 启动定时任务服务
	cronService := service.NewCronService(rdb, signingSvc, wallets, vaults, coordinator)
	cronService.Start()
	defer cronService.Stop()

	// 13. HTTP Router
	r := server.NewHTTPRouter(vaultSvc, signingSvc)

	// 14. 启动应用 (阻塞)
	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)
	app.Run()

	// 15. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}

// resolveNetwork 将配置的网络名映射为链参数, 未知值回退主网
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

func assetConfig(asset model.AssetKind, limits config.AssetLimits) vault.Config {
	return vault.Config{
		Asset:                asset,
		TransferFee:          limits.TransferFee,
		MinTransfer:          limits.MinTransfer,
		MinWithdrawal:        limits.MinWithdrawal,
		DailyWithdrawalLimit: limits.DailyWithdrawalLimit,
		BalanceCacheTTL:      time.Duration(config.Global.Vault.BalanceCacheSec) * time.Second,
		BreakerThreshold:     config.Global.Vault.BreakerThreshold,
		BreakerTimeout:       time.Duration(config.Global.Vault.BreakerTimeoutSec) * time.Second,
		MaxRetries:           config.Global.Vault.MaxRetries,
	}
}

func assetRateLimits(limits config.AssetLimits) vault.RateLimits {
	return vault.RateLimits{
		Transfers:   limits.TransfersPerMinute,
		Refreshes:   limits.RefreshesPerMinute,
		Withdrawals: limits.WithdrawalsPerMinute,
	}
}
