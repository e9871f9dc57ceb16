// Package backup 聚合签名服务、HD 钱包与金库的快照, 统一落库与恢复
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/internal/signing"
	"vault-core/internal/vault"
	"vault-core/pkg/crypto_util"
	"vault-core/pkg/keystore"
	"vault-core/pkg/logger"
)

// 快照格式版本, 结构变更时递增
const snapshotVersion = 1

// payload 快照载荷
// 配置了口令时钱包段整体加密 (主种子在内), 否则明文存储
type payload struct {
	Version    int                        `json:"version"`
	CreatedAt  time.Time                  `json:"created_at"`
	Signing    signing.State              `json:"signing"`
	Wallets    *hdwallet.RegistryState    `json:"wallets,omitempty"`
	WalletsEnc *keystore.EncryptedKeyJSON `json:"wallets_enc,omitempty"`
	Vaults     vault.RegistryState        `json:"vaults"`
}

// Coordinator 定期把三个子系统的状态合并成单个快照
//
// 限流窗口、熔断器与各级缓存都不入快照: 恢复后从安全的初始值重新累积
type Coordinator struct {
	clock    clock.Clock
	store    Store
	signing  *signing.Service
	wallets  *hdwallet.Registry
	vaults   *vault.Registry
	password string
}

func NewCoordinator(store Store, sig *signing.Service, wallets *hdwallet.Registry, vaults *vault.Registry, password string, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Coordinator{
		clock:    clk,
		store:    store,
		signing:  sig,
		wallets:  wallets,
		vaults:   vaults,
		password: password,
	}
}

// Backup 采集快照并落库, 返回载荷的 blake3 校验和
func (c *Coordinator) Backup(ctx context.Context) (string, error) {
	p := payload{
		Version:   snapshotVersion,
		CreatedAt: c.clock.Now(),
		Signing:   c.signing.Snapshot(),
		Vaults:    c.vaults.Snapshot(),
	}

	walletState := c.wallets.Snapshot()
	if c.password != "" {
		raw, err := json.Marshal(walletState)
		if err != nil {
			return "", fmt.Errorf("marshal wallet state: %w", err)
		}
		enc, err := keystore.EncryptSecret(raw, c.password)
		if err != nil {
			return "", fmt.Errorf("encrypt wallet state: %w", err)
		}
		p.WalletsEnc = enc
	} else {
		p.Wallets = &walletState
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	checksum := crypto_util.CalculateBlake3(raw)

	rec := &model.SnapshotRecord{
		Version:  snapshotVersion,
		Payload:  raw,
		Checksum: checksum,
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	logger.Info("backup completed",
		zap.Int("version", snapshotVersion),
		zap.String("checksum", checksum),
		zap.Int("payload_bytes", len(raw)))
	return checksum, nil
}

// Restore 读取最近快照并恢复三个子系统
// 校验和不符或解码失败时放弃恢复, 各子系统保持当前状态
func (c *Coordinator) Restore(ctx context.Context) error {
	rec, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	if got := crypto_util.CalculateBlake3(rec.Payload); got != rec.Checksum {
		logger.Error("backup checksum mismatch, snapshot rejected",
			zap.String("expected", rec.Checksum),
			zap.String("actual", got))
		return fmt.Errorf("backup: checksum mismatch")
	}

	var p payload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		logger.Error("backup payload corrupted", zap.Error(err))
		return fmt.Errorf("backup: decode payload: %w", err)
	}
	if p.Version != snapshotVersion {
		return fmt.Errorf("backup: unsupported snapshot version %d", p.Version)
	}

	walletState, err := c.decodeWalletState(&p)
	if err != nil {
		return err
	}

	// 钱包先恢复: 种子重建失败时不触碰其余子系统
	if err := c.wallets.Restore(*walletState); err != nil {
		return fmt.Errorf("restore wallets: %w", err)
	}
	if err := c.vaults.Restore(p.Vaults); err != nil {
		return fmt.Errorf("restore vaults: %w", err)
	}
	c.signing.Restore(p.Signing)

	logger.Info("backup restored",
		zap.Time("snapshot_at", p.CreatedAt),
		zap.Int("wallets", len(walletState.Engines)))
	return nil
}

func (c *Coordinator) decodeWalletState(p *payload) (*hdwallet.RegistryState, error) {
	if p.WalletsEnc != nil {
		if c.password == "" {
			return nil, fmt.Errorf("backup: snapshot is encrypted but no password configured")
		}
		raw, err := keystore.DecryptSecret(p.WalletsEnc, c.password)
		if err != nil {
			logger.Error("backup wallet decryption failed", zap.Error(err))
			return nil, fmt.Errorf("backup: decrypt wallet state: %w", err)
		}
		var st hdwallet.RegistryState
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("backup: decode wallet state: %w", err)
		}
		return &st, nil
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("backup: snapshot missing wallet state")
	}
	return p.Wallets, nil
}
