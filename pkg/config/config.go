package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Signing SigningConfig `mapstructure:"signing"`
	Vault   VaultConfig   `mapstructure:"vault"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type WalletConfig struct {
	Mnemonic     string `mapstructure:"mnemonic"`
	BasePath     string `mapstructure:"base_path"` // 派生基路径, e.g. m/44'/223'
	Network      string `mapstructure:"network"`   // mainnet / testnet / regtest
	KeystorePath string `mapstructure:"keystore_path"`
	Password     string `mapstructure:"password"` // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
}

type SigningConfig struct {
	KeyName              string `mapstructure:"key_name"`
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"`
	OracleURL            string `mapstructure:"oracle_url"` // 门限签名服务地址
}

// VaultConfig 各资产金库的风控参数, 金额单位为链上最小单位
type VaultConfig struct {
	Native AssetLimits `mapstructure:"native"`
	BTC    AssetLimits `mapstructure:"btc"`
	USDT   AssetLimits `mapstructure:"usdt"`

	BreakerThreshold  uint32 `mapstructure:"breaker_threshold"`
	BreakerTimeoutSec int    `mapstructure:"breaker_timeout_sec"`
	BalanceCacheSec   int    `mapstructure:"balance_cache_sec"`
	MaxRetries        int    `mapstructure:"max_retries"`
}

type AssetLimits struct {
	TransferFee          uint64 `mapstructure:"transfer_fee"`
	MinTransfer          uint64 `mapstructure:"min_transfer"`
	MinWithdrawal        uint64 `mapstructure:"min_withdrawal"`
	DailyWithdrawalLimit uint64 `mapstructure:"daily_withdrawal_limit"`
	TransfersPerMinute   int    `mapstructure:"transfers_per_minute"`
	RefreshesPerMinute   int    `mapstructure:"refreshes_per_minute"`
	WithdrawalsPerMinute int    `mapstructure:"withdrawals_per_minute"`
}

// LedgerConfig 外部账本与铸币服务的接入地址
type LedgerConfig struct {
	NativeURL string `mapstructure:"native_url"`
	BtcURL    string `mapstructure:"btc_url"`
	UsdtURL   string `mapstructure:"usdt_url"`
	MinterURL string `mapstructure:"minter_url"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			// Config file was found but another error was produced
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "vault_user")
	viper.SetDefault("db.password", "vault_password")
	viper.SetDefault("db.name", "vault_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("wallet.base_path", "m/44'/223'")
	viper.SetDefault("wallet.network", "mainnet")
	viper.SetDefault("wallet.keystore_path", "wallet.json")

	viper.SetDefault("signing.key_name", "vault_core_key")
	viper.SetDefault("signing.max_requests_per_minute", 5)

	// 原生代币: 转账费 10_000, 最小转账 1_000
	viper.SetDefault("vault.native.transfer_fee", 10_000)
	viper.SetDefault("vault.native.min_transfer", 1_000)
	viper.SetDefault("vault.native.transfers_per_minute", 10)
	viper.SetDefault("vault.native.refreshes_per_minute", 20)

	// BTC: 日提现上限 1 BTC, 最小提现 10_000 sats
	viper.SetDefault("vault.btc.transfer_fee", 10)
	viper.SetDefault("vault.btc.min_transfer", 1_000)
	viper.SetDefault("vault.btc.min_withdrawal", 10_000)
	viper.SetDefault("vault.btc.daily_withdrawal_limit", 100_000_000)
	viper.SetDefault("vault.btc.transfers_per_minute", 10)
	viper.SetDefault("vault.btc.refreshes_per_minute", 20)
	viper.SetDefault("vault.btc.withdrawals_per_minute", 10)

	// USDT: 日提现上限 10_000 USDT (6 位小数), 最小提现 1 USDT
	viper.SetDefault("vault.usdt.transfer_fee", 100)
	viper.SetDefault("vault.usdt.min_transfer", 1_000)
	viper.SetDefault("vault.usdt.min_withdrawal", 1_000_000)
	viper.SetDefault("vault.usdt.daily_withdrawal_limit", 10_000_000_000)
	viper.SetDefault("vault.usdt.transfers_per_minute", 10)
	viper.SetDefault("vault.usdt.refreshes_per_minute", 20)
	viper.SetDefault("vault.usdt.withdrawals_per_minute", 5)

	viper.SetDefault("vault.breaker_threshold", 5)
	viper.SetDefault("vault.breaker_timeout_sec", 60)
	viper.SetDefault("vault.balance_cache_sec", 30)
	viper.SetDefault("vault.max_retries", 3)
}
