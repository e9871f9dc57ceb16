package vault

import (
	"strings"

	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
	"vault-core/pkg/errno"
)

// NativeVault 原生账本代币金库, 只支持托管内转账, 无跨链提现
type NativeVault struct {
	*baseVault
}

func NewNativeVault(owner model.Owner, cfg Config, ledger LedgerClient, clk clock.Clock) *NativeVault {
	cfg.Asset = model.AssetNative
	v := &NativeVault{baseVault: newBaseVault(owner, cfg, ledger, clk)}
	v.validateRecipient = validateNativeAccount
	return v
}

// validateNativeAccount 账户文本格式: 非空、无空白、长度封顶
func validateNativeAccount(acct string) error {
	if acct == "" {
		return errno.Validationf("account is empty")
	}
	if len(acct) > 128 {
		return errno.Validationf("account too long: %d", len(acct))
	}
	if strings.ContainsAny(acct, " \t\n") {
		return errno.Validationf("account contains whitespace")
	}
	return nil
}
