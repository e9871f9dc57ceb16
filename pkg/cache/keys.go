package cache

import "fmt"

// 统一的缓存 key 前缀, 避免与其他服务共用 Redis 时冲突
const keyPrefix = "vault"

// BalancesKey 某个 owner 的全量余额响应缓存
func BalancesKey(owner string) string {
	return fmt.Sprintf("%s:balances:%s", keyPrefix, owner)
}

// SystemHealthKey 系统健康聚合结果缓存
func SystemHealthKey() string {
	return fmt.Sprintf("%s:health", keyPrefix)
}

// DepositAddressKey BTC 充值地址缓存
func DepositAddressKey(owner string) string {
	return fmt.Sprintf("%s:deposit_addr:%s", keyPrefix, owner)
}
