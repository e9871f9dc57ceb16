package vault

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"vault-core/internal/model"
	"vault-core/pkg/address"
	"vault-core/pkg/errno"
	"vault-core/pkg/logger"
)

// 充值地址缓存有效期
const depositAddressTTL = time.Hour

// BtcVault 桥接比特币金库: 托管内转账 + 跨链提现 + 充值地址
type BtcVault struct {
	*baseVault
	minter MinterClient
	btcGen *address.BTCGenerator

	depositAddr     string
	depositCachedAt time.Time
}

func NewBtcVault(owner model.Owner, cfg Config, ledger LedgerClient, minter MinterClient, network *chaincfg.Params, clk clock.Clock) *BtcVault {
	cfg.Asset = model.AssetBTC
	if network == nil {
		network = &chaincfg.MainNetParams
	}
	v := &BtcVault{
		baseVault: newBaseVault(owner, cfg, ledger, clk),
		minter:    minter,
		btcGen:    address.NewBTCGenerator(network),
	}
	// 托管内转账的收款方是账本账户, 不是比特币地址
	v.validateRecipient = validateNativeAccount
	return v
}

// DepositAddress 获取外链充值地址, 1 小时内命中缓存
func (v *BtcVault) DepositAddress(ctx context.Context) (string, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.depositAddr != "" && v.clock.Now().Sub(v.depositCachedAt) < depositAddressTTL {
		addr := v.depositAddr
		v.mu.Unlock()
		return addr, nil
	}
	v.mu.Unlock()

	if !v.brk.CanExecute() {
		return "", errno.ErrCircuitOpen
	}

	addr, err := v.minter.DepositAddress(ctx, v.owner)
	if err != nil {
		v.brk.RecordFailure()
		v.recordFailure()
		return "", &errno.VaultError{Op: "deposit_address", Details: err.Error()}
	}
	v.brk.RecordSuccess()

	v.mu.Lock()
	v.depositAddr = addr
	v.depositCachedAt = v.clock.Now()
	v.successfulOps++
	v.mu.Unlock()
	return addr, nil
}

// Withdraw 跨链提现到比特币地址
func (v *BtcVault) Withdraw(ctx context.Context, amount uint64, externalAddress string) (uint64, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if amount < v.cfg.MinWithdrawal {
		return 0, errno.Validationf("amount %d below minimum withdrawal %d", amount, v.cfg.MinWithdrawal)
	}
	if err := v.btcGen.Validate(externalAddress); err != nil {
		return 0, errno.Validationf("bad btc address: %v", err)
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
		return 0, &errno.VaultError{Op: "withdraw_btc", Details: err.Error()}
	}
	v.brk.RecordSuccess()

	v.completeTransaction(tx.ID, amount, nil, &withdrawalID)
	logger.Info("btc withdrawal submitted",
		zap.String("owner", v.owner.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("withdrawal_id", withdrawalID))
	return withdrawalID, nil
}
