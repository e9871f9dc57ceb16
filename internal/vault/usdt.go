package vault

import (
	"context"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"vault-core/internal/model"
	"vault-core/pkg/address"
	"vault-core/pkg/errno"
	"vault-core/pkg/logger"
)

// UsdtVault 桥接稳定币金库: 托管内转账 + 跨链提现到以太坊地址
type UsdtVault struct {
	*baseVault
	minter MinterClient
}

func NewUsdtVault(owner model.Owner, cfg Config, ledger LedgerClient, minter MinterClient, clk clock.Clock) *UsdtVault {
	cfg.Asset = model.AssetUSDT
	v := &UsdtVault{
		baseVault: newBaseVault(owner, cfg, ledger, clk),
		minter:    minter,
	}
	v.validateRecipient = validateNativeAccount
	return v
}

// Withdraw 跨链提现到以太坊地址
func (v *UsdtVault) Withdraw(ctx context.Context, amount uint64, externalAddress string) (uint64, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if amount < v.cfg.MinWithdrawal {
		return 0, errno.Validationf("amount %d below minimum withdrawal %d", amount, v.cfg.MinWithdrawal)
	}
	if err := address.ValidateETHAddress(externalAddress); err != nil {
		return 0, errno.Validationf("bad eth address: %v", err)
	}

	v.mu.Lock()
	if v.balance < amount {
		v.mu.Unlock()
		return 0, errno.ErrInsufficientFunds
	}
	v.mu.Unlock()

	if err := v.checkDailyLimit(amount); err != nil {
		return 0, err
	}

	if !v.brk.CanExecute() {
		v.releaseDailyLimit(amount)
		return 0, errno.ErrCircuitOpen
	}

	tx := v.beginTransaction(amount, 0, externalAddress)

	withdrawalID, err := v.minter.Withdraw(ctx, v.owner, amount, externalAddress)
	if err != nil {
		v.brk.RecordFailure()
		v.failTransaction(tx.ID, err.Error())
		v.releaseDailyLimit(amount)
		return 0, &errno.VaultError{Op: "withdraw_usdt", Details: err.Error()}
	}
	v.brk.RecordSuccess()

	v.completeTransaction(tx.ID, amount, nil, &withdrawalID)
	logger.Info("usdt withdrawal submitted",
		zap.String("owner", v.owner.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("withdrawal_id", withdrawalID))
	return withdrawalID, nil
}

// WithdrawalStatus 查询铸币服务侧的提现进度
func (v *UsdtVault) WithdrawalStatus(ctx context.Context, id uint64) (model.WithdrawalStatus, error) {
	if !v.brk.CanExecute() {
		return model.WithdrawalStatus{}, errno.ErrCircuitOpen
	}
	st, err := v.minter.WithdrawalStatus(ctx, id)
	if err != nil {
		v.brk.RecordFailure()
		return model.WithdrawalStatus{}, &errno.VaultError{Op: "withdrawal_status", Details: err.Error()}
	}
	v.brk.RecordSuccess()
	return st, nil
}
