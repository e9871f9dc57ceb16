package model

import "time"

// Owner 托管钱包持有者的稳定身份标识 (由外部身份系统验证后传入)
type Owner string

func (o Owner) String() string {
	return string(o)
}

// AssetKind 金库支持的资产类型
type AssetKind string

const (
	AssetNative AssetKind = "NATIVE" // 原生账本代币
	AssetBTC    AssetKind = "BTC"    // 桥接比特币
	AssetUSDT   AssetKind = "USDT"   // 桥接稳定币
)

// AllAssets 固定顺序, 刷新余额与聚合时遍历使用
var AllAssets = []AssetKind{AssetNative, AssetBTC, AssetUSDT}

func (a AssetKind) Valid() bool {
	switch a {
	case AssetNative, AssetBTC, AssetUSDT:
		return true
	}
	return false
}

// CachedBalance 带时间戳的余额缓存条目
type CachedBalance struct {
	Amount   uint64        `json:"amount"`
	CachedAt time.Time     `json:"cached_at"`
	TTL      time.Duration `json:"ttl"`
}

// Valid 用注入的当前时间判断, 便于用模拟时钟测试
func (c *CachedBalance) Valid(now time.Time) bool {
	if c == nil {
		return false
	}
	return now.Sub(c.CachedAt) < c.TTL
}

// HealthStatus 系统健康度分级
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

// SystemHealth 聚合只读视图, 失败率超过 5% 判定为 degraded
type SystemHealth struct {
	Status          HealthStatus `json:"status"`
	ActiveWallets   int          `json:"active_wallets"`
	TotalOperations uint64       `json:"total_operations"`
	FailedOps       uint64       `json:"failed_ops"`
	ErrorRate       float64      `json:"error_rate"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// WithdrawalState 跨链提现在铸币服务侧的状态
type WithdrawalState string

const (
	WithdrawalPending   WithdrawalState = "pending"
	WithdrawalSigning   WithdrawalState = "signing"
	WithdrawalSubmitted WithdrawalState = "submitted"
	WithdrawalConfirmed WithdrawalState = "confirmed"
	WithdrawalAmountLow WithdrawalState = "amount_too_low"
	WithdrawalNotFound  WithdrawalState = "not_found"
)

// WithdrawalStatus 铸币服务返回的提现进度
type WithdrawalStatus struct {
	ID            uint64          `json:"id"`
	State         WithdrawalState `json:"state"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Confirmations uint32          `json:"confirmations"`
}
