// Package vault 实现按 owner 隔离的多资产托管金库:
// 余额缓存、转账/提现编排、日限额、熔断与交易台账。
package vault

import (
	"context"

	"vault-core/internal/model"
)

// LedgerClient 资产对应的外部账本
type LedgerClient interface {
	// BalanceOf 查询 owner 在账本上的余额 (最小单位)
	BalanceOf(ctx context.Context, owner model.Owner) (uint64, error)
	// Transfer 从 owner 的子账户向 recipient 转账, 返回区块索引
	Transfer(ctx context.Context, owner model.Owner, recipient string, amount, fee uint64) (uint64, error)
}

// MinterClient 桥接资产的铸币/赎回服务
type MinterClient interface {
	// DepositAddress 获取 owner 的外链充值地址
	DepositAddress(ctx context.Context, owner model.Owner) (string, error)
	// Withdraw 发起跨链提现, 返回铸币服务的提现单号
	Withdraw(ctx context.Context, owner model.Owner, amount uint64, externalAddress string) (uint64, error)
	// WithdrawalStatus 查询提现单进度
	WithdrawalStatus(ctx context.Context, id uint64) (model.WithdrawalStatus, error)
}
