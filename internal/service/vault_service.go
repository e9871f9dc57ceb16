package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vault-core/internal/event"
	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/internal/service/mq"
	"vault-core/internal/signing"
	"vault-core/internal/vault"
	"vault-core/pkg/cache"
	"vault-core/pkg/errno"
	"vault-core/pkg/logger"
	"vault-core/pkg/monitor"
)

// 健康聚合结果缓存时间
const healthCacheTTL = 5 * time.Second

// VaultService 对外编排层: 金库、HD 钱包与签名服务的统一入口
// 业务事件走本地消息表 (Outbox), 由 RelayService 异步投递
type VaultService struct {
	clock    clock.Clock
	vaults   *vault.Registry
	wallets  *hdwallet.Registry
	signing  *signing.Service
	db       *gorm.DB
	producer mq.Producer
	cache    cache.Cache
}

func NewVaultService(vaults *vault.Registry, wallets *hdwallet.Registry, sig *signing.Service,
	db *gorm.DB, producer mq.Producer, c cache.Cache, clk clock.Clock) *VaultService {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &VaultService{
		clock:    clk,
		vaults:   vaults,
		wallets:  wallets,
		signing:  sig,
		db:       db,
		producer: producer,
		cache:    c,
	}
}

// CreateWallet 幂等创建 owner 的钱包: 三资产金库 + 派生引擎
func (s *VaultService) CreateWallet(ctx context.Context, owner model.Owner) (bool, error) {
	_, created := s.vaults.CreateOrGet(owner)
	if _, err := s.wallets.CreateOrGet(owner); err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if monitor.Business != nil {
		monitor.Business.WalletCreatedTotal.Inc()
	}
	s.emitEvent(ctx, event.TopicWallet, owner, event.WalletCreatedEvent{
		Owner:     owner.String(),
		CreatedAt: s.clock.Now(),
	})
	logger.Info("wallet created", zap.String("owner", owner.String()))
	return true, nil
}

// Balance 本地记账余额
func (s *VaultService) Balance(owner model.Owner, asset model.AssetKind) (uint64, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return 0, err
	}
	return m.Balance(asset)
}

// AllBalances 所有资产的本地余额
func (s *VaultService) AllBalances(owner model.Owner) (map[model.AssetKind]uint64, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return nil, err
	}
	return m.AllBalances(), nil
}

// RefreshBalances 穿透到外部账本刷新, 单个资产失败不中断其余
func (s *VaultService) RefreshBalances(ctx context.Context, owner model.Owner) (map[model.AssetKind]uint64, map[model.AssetKind]error, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return nil, nil, err
	}
	balances, errs := m.RefreshBalances(ctx)
	for asset, bal := range balances {
		s.emitEvent(ctx, event.TopicBalance, owner, event.BalanceRefreshedEvent{
			Owner:       owner.String(),
			Asset:       string(asset),
			Balance:     bal,
			RefreshedAt: s.clock.Now(),
		})
	}
	return balances, errs, nil
}

// Transfer 托管内转账
func (s *VaultService) Transfer(ctx context.Context, owner model.Owner, asset model.AssetKind, amount uint64, recipient string) (uint64, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return 0, err
	}
	blockIndex, err := m.Transfer(ctx, asset, amount, recipient)
	if err != nil {
		return 0, err
	}

	if txID, fee, ok := s.latestTransaction(m, asset); ok {
		s.emitEvent(ctx, event.TopicTransfer, owner, event.TransferCompletedEvent{
			TransactionID: txID,
			Owner:         owner.String(),
			Recipient:     recipient,
			Asset:         string(asset),
			Amount:        amount,
			Fee:           fee,
			BlockIndex:    blockIndex,
			CompletedAt:   s.clock.Now(),
		})
	}
	return blockIndex, nil
}

// Withdraw 跨链提现
func (s *VaultService) Withdraw(ctx context.Context, owner model.Owner, asset model.AssetKind, amount uint64, externalAddress string) (uint64, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return 0, err
	}
	withdrawalID, err := m.Withdraw(ctx, asset, amount, externalAddress)
	if err != nil {
		return 0, err
	}

	if txID, _, ok := s.latestTransaction(m, asset); ok {
		s.emitEvent(ctx, event.TopicWithdrawal, owner, event.WithdrawalSubmittedEvent{
			TransactionID:   txID,
			WithdrawalID:    withdrawalID,
			Owner:           owner.String(),
			Asset:           string(asset),
			Amount:          amount,
			ExternalAddress: externalAddress,
			SubmittedAt:     s.clock.Now(),
		})
	}
	return withdrawalID, nil
}

// DepositAddress 获取 BTC 外链充值地址
func (s *VaultService) DepositAddress(ctx context.Context, owner model.Owner) (string, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return "", err
	}
	v, err := m.Vault(model.AssetBTC)
	if err != nil {
		return "", err
	}
	provider, ok := v.(interface {
		DepositAddress(context.Context) (string, error)
	})
	if !ok {
		return "", errno.Validationf("asset %s has no deposit address", model.AssetBTC)
	}
	return provider.DepositAddress(ctx)
}

// WithdrawalStatus 查询 USDT 提现在铸币服务侧的进度
func (s *VaultService) WithdrawalStatus(ctx context.Context, owner model.Owner, id uint64) (model.WithdrawalStatus, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return model.WithdrawalStatus{}, err
	}
	v, err := m.Vault(model.AssetUSDT)
	if err != nil {
		return model.WithdrawalStatus{}, err
	}
	tracker, ok := v.(interface {
		WithdrawalStatus(context.Context, uint64) (model.WithdrawalStatus, error)
	})
	if !ok {
		return model.WithdrawalStatus{}, errno.Validationf("asset %s does not track withdrawals", model.AssetUSDT)
	}
	return tracker.WithdrawalStatus(ctx, id)
}

// History 交易历史, 新的在前
func (s *VaultService) History(owner model.Owner, asset model.AssetKind, limit int) ([]model.Transaction, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return nil, err
	}
	return m.History(asset, limit)
}

// PendingTransactions 列出未进入终态的交易
func (s *VaultService) PendingTransactions(owner model.Owner, asset model.AssetKind) ([]model.Transaction, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return nil, err
	}
	v, err := m.Vault(asset)
	if err != nil {
		return nil, err
	}
	return v.PendingTransactions(), nil
}

// CancelTransaction 取消 pending 交易
func (s *VaultService) CancelTransaction(owner model.Owner, asset model.AssetKind, idHex string) error {
	v, id, err := s.lookupTx(owner, asset, idHex)
	if err != nil {
		return err
	}
	return v.CancelTransaction(id)
}

// RetryTransaction 把失败交易重置回 pending
func (s *VaultService) RetryTransaction(owner model.Owner, asset model.AssetKind, idHex string) error {
	v, id, err := s.lookupTx(owner, asset, idHex)
	if err != nil {
		return err
	}
	return v.RetryFailedTransaction(id)
}

func (s *VaultService) lookupTx(owner model.Owner, asset model.AssetKind, idHex string) (vault.Vault, model.TransactionID, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return nil, model.TransactionID{}, err
	}
	v, err := m.Vault(asset)
	if err != nil {
		return nil, model.TransactionID{}, err
	}
	id, ok := model.ParseTransactionID(idHex)
	if !ok {
		return nil, model.TransactionID{}, errno.Validationf("bad transaction id %q", idHex)
	}
	return v, id, nil
}

// Metrics 单个钱包的聚合指标
func (s *VaultService) Metrics(owner model.Owner) (vault.ManagerMetrics, error) {
	m, err := s.vaults.Get(owner)
	if err != nil {
		return vault.ManagerMetrics{}, err
	}
	return m.Metrics(), nil
}

// SystemHealth 系统健康聚合, 结果缓存 5s
func (s *VaultService) SystemHealth(ctx context.Context) model.SystemHealth {
	if s.cache != nil {
		var cached model.SystemHealth
		if err := s.cache.Get(ctx, cache.SystemHealthKey(), &cached); err == nil {
			return cached
		}
	}

	health := s.vaults.Health()
	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.SystemHealthKey(), health, healthCacheTTL); err != nil {
			logger.Warn("cache system health failed", zap.Error(err))
		}
	}
	return health
}

// latestTransaction 取最近一笔交易的 ID 与手续费, 供事件携带
func (s *VaultService) latestTransaction(m *vault.Manager, asset model.AssetKind) (string, uint64, bool) {
	history, err := m.History(asset, 1)
	if err != nil || len(history) == 0 {
		return "", 0, false
	}
	return history[0].ID.Hex(), history[0].Fee, true
}

// emitEvent 事件落到本地消息表; 没有配置数据库时直接投递 MQ
// 事件失败只记日志, 不影响主流程
func (s *VaultService) emitEvent(ctx context.Context, topic string, owner model.Owner, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal event failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	if s.db != nil {
		msg := model.OutboxMessage{Topic: topic, Payload: raw, Status: "PENDING"}
		if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
			logger.Error("write outbox failed", zap.String("topic", topic), zap.Error(err))
		}
		return
	}
	if s.producer != nil {
		if err := s.producer.Publish(ctx, topic, owner.String(), raw); err != nil {
			logger.Error("publish event failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
