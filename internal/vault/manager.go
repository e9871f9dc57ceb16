package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
	"vault-core/pkg/errno"
	"vault-core/pkg/monitor"
	"vault-core/pkg/ratelimit"
)

// RateLimits 每资产的操作频率上限 (次/分钟)
type RateLimits struct {
	Transfers   int
	Refreshes   int
	Withdrawals int
}

func (r RateLimits) applyDefaults() RateLimits {
	if r.Transfers <= 0 {
		r.Transfers = 10
	}
	if r.Refreshes <= 0 {
		r.Refreshes = 20
	}
	if r.Withdrawals <= 0 {
		r.Withdrawals = 10
	}
	return r
}

// Manager 聚合单个 owner 的全部资产金库
// 限流在金库之上统一执行, 指标跨资产累计
type Manager struct {
	mu    sync.Mutex
	clock clock.Clock
	owner model.Owner

	vaults   map[model.AssetKind]Vault
	limiters map[model.AssetKind]*ratelimit.Limiter

	totalOps      uint64
	successfulOps uint64
	failedOps     uint64
	volumeByAsset map[model.AssetKind]uint64
	avgResponse   map[string]time.Duration

	createdAt   time.Time
	lastUpdated time.Time
}

func NewManager(owner model.Owner, vaults map[model.AssetKind]Vault, limits map[model.AssetKind]RateLimits, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	m := &Manager{
		clock:         clk,
		owner:         owner,
		vaults:        vaults,
		limiters:      make(map[model.AssetKind]*ratelimit.Limiter, len(vaults)),
		volumeByAsset: make(map[model.AssetKind]uint64),
		avgResponse:   make(map[string]time.Duration),
		createdAt:     clk.Now(),
		lastUpdated:   clk.Now(),
	}
	for asset := range vaults {
		lim := limits[asset].applyDefaults()
		l := ratelimit.New(lim.Transfers, clk)
		l.SetOperationLimit("transfer", lim.Transfers)
		l.SetOperationLimit("refresh", lim.Refreshes)
		l.SetOperationLimit("withdraw", lim.Withdrawals)
		m.limiters[asset] = l
	}
	return m
}

func (m *Manager) Owner() model.Owner { return m.owner }

// Vault 返回指定资产的金库
func (m *Manager) Vault(asset model.AssetKind) (Vault, error) {
	v, ok := m.vaults[asset]
	if !ok {
		return nil, errno.Validationf("unsupported asset %s", asset)
	}
	return v, nil
}

// Balance 本地记账余额, 不触发外部调用
func (m *Manager) Balance(asset model.AssetKind) (uint64, error) {
	v, err := m.Vault(asset)
	if err != nil {
		return 0, err
	}
	return v.Balance(), nil
}

// AllBalances 所有资产的本地余额
func (m *Manager) AllBalances() map[model.AssetKind]uint64 {
	out := make(map[model.AssetKind]uint64, len(m.vaults))
	for asset, v := range m.vaults {
		out[asset] = v.Balance()
	}
	return out
}

// RefreshBalances 逐资产刷新, 单个失败不中断其余资产
func (m *Manager) RefreshBalances(ctx context.Context) (map[model.AssetKind]uint64, map[model.AssetKind]error) {
	balances := make(map[model.AssetKind]uint64, len(m.vaults))
	errs := make(map[model.AssetKind]error)

	for _, asset := range model.AllAssets {
		v, ok := m.vaults[asset]
		if !ok {
			continue
		}
		if err := m.checkLimit(asset, "refresh"); err != nil {
			errs[asset] = err
			continue
		}
		start := m.clock.Now()
		bal, err := v.UpdateBalance(ctx)
		m.recordOperation("refresh_"+string(asset), err == nil, m.clock.Now().Sub(start))
		if err != nil {
			errs[asset] = err
			continue
		}
		balances[asset] = bal
	}
	return balances, errs
}

// Transfer 托管内转账
func (m *Manager) Transfer(ctx context.Context, asset model.AssetKind, amount uint64, recipient string) (uint64, error) {
	v, err := m.Vault(asset)
	if err != nil {
		return 0, err
	}
	if err := m.checkLimit(asset, "transfer"); err != nil {
		return 0, err
	}

	start := m.clock.Now()
	blockIndex, err := v.Transfer(ctx, amount, recipient)
	m.recordOperation("transfer_"+string(asset), err == nil, m.clock.Now().Sub(start))
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.volumeByAsset[asset] += amount
	m.mu.Unlock()
	if monitor.Business != nil {
		monitor.Business.TransferAmountTotal.WithLabelValues(string(asset)).Add(float64(amount))
	}
	return blockIndex, nil
}

// Withdraw 跨链提现, 仅桥接资产支持
func (m *Manager) Withdraw(ctx context.Context, asset model.AssetKind, amount uint64, externalAddress string) (uint64, error) {
	v, err := m.Vault(asset)
	if err != nil {
		return 0, err
	}
	ext, ok := v.(ExternalChainVault)
	if !ok {
		return 0, errno.Validationf("asset %s does not support external withdrawal", asset)
	}
	if err := m.checkLimit(asset, "withdraw"); err != nil {
		return 0, err
	}

	start := m.clock.Now()
	withdrawalID, err := ext.Withdraw(ctx, amount, externalAddress)
	m.recordOperation("withdraw_"+string(asset), err == nil, m.clock.Now().Sub(start))
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.volumeByAsset[asset] += amount
	m.mu.Unlock()
	if monitor.Business != nil {
		monitor.Business.WithdrawAmountTotal.WithLabelValues(string(asset)).Add(float64(amount))
	}
	return withdrawalID, nil
}

// History 指定资产的交易历史
func (m *Manager) History(asset model.AssetKind, limit int) ([]model.Transaction, error) {
	v, err := m.Vault(asset)
	if err != nil {
		return nil, err
	}
	return v.TransactionHistory(limit), nil
}

func (m *Manager) checkLimit(asset model.AssetKind, operation string) error {
	l, ok := m.limiters[asset]
	if !ok {
		return nil
	}
	if err := l.Check(operation); err != nil {
		if monitor.Business != nil {
			monitor.Business.RateLimitRejectedTotal.WithLabelValues(operation).Inc()
		}
		return err
	}
	return nil
}

// recordOperation 滚动平均: avg = (avg + latest) / 2
func (m *Manager) recordOperation(name string, ok bool, dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalOps++
	if ok {
		m.successfulOps++
	} else {
		m.failedOps++
	}
	if prev, exists := m.avgResponse[name]; exists {
		m.avgResponse[name] = (prev + dur) / 2
	} else {
		m.avgResponse[name] = dur
	}
	m.lastUpdated = m.clock.Now()

	if monitor.Business != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		monitor.Business.VaultOperationsTotal.WithLabelValues(name, status).Inc()
		monitor.Business.VaultOperationDuration.WithLabelValues(name).Observe(dur.Seconds())
	}
}

// ManagerMetrics 跨资产聚合指标
type ManagerMetrics struct {
	Owner         model.Owner                 `json:"owner"`
	TotalOps      uint64                      `json:"total_ops"`
	SuccessfulOps uint64                      `json:"successful_ops"`
	FailedOps     uint64                      `json:"failed_ops"`
	VolumeByAsset map[model.AssetKind]uint64  `json:"volume_by_asset"`
	AvgResponse   map[string]time.Duration    `json:"avg_response"`
	VaultMetrics  map[model.AssetKind]Metrics `json:"vault_metrics"`
	CreatedAt     time.Time                   `json:"created_at"`
	LastUpdated   time.Time                   `json:"last_updated"`
}

func (m *Manager) Metrics() ManagerMetrics {
	m.mu.Lock()
	mm := ManagerMetrics{
		Owner:         m.owner,
		TotalOps:      m.totalOps,
		SuccessfulOps: m.successfulOps,
		FailedOps:     m.failedOps,
		VolumeByAsset: make(map[model.AssetKind]uint64, len(m.volumeByAsset)),
		AvgResponse:   make(map[string]time.Duration, len(m.avgResponse)),
		VaultMetrics:  make(map[model.AssetKind]Metrics, len(m.vaults)),
		CreatedAt:     m.createdAt,
		LastUpdated:   m.lastUpdated,
	}
	for k, v := range m.volumeByAsset {
		mm.VolumeByAsset[k] = v
	}
	for k, v := range m.avgResponse {
		mm.AvgResponse[k] = v
	}
	m.mu.Unlock()

	for asset, v := range m.vaults {
		mm.VaultMetrics[asset] = v.Metrics()
	}
	return mm
}

// ResetRateLimiters 清空所有限流窗口 (备份恢复后调用)
func (m *Manager) ResetRateLimiters() {
	for _, l := range m.limiters {
		l.Reset()
	}
}

// ManagerState 可序列化的快照
type ManagerState struct {
	Owner         model.Owner                `json:"owner"`
	TotalOps      uint64                     `json:"total_ops"`
	SuccessfulOps uint64                     `json:"successful_ops"`
	FailedOps     uint64                     `json:"failed_ops"`
	VolumeByAsset map[model.AssetKind]uint64 `json:"volume_by_asset"`
	Vaults        map[model.AssetKind]State  `json:"vaults"`
	CreatedAt     time.Time                  `json:"created_at"`
}

func (m *Manager) Snapshot() ManagerState {
	m.mu.Lock()
	st := ManagerState{
		Owner:         m.owner,
		TotalOps:      m.totalOps,
		SuccessfulOps: m.successfulOps,
		FailedOps:     m.failedOps,
		VolumeByAsset: make(map[model.AssetKind]uint64, len(m.volumeByAsset)),
		Vaults:        make(map[model.AssetKind]State, len(m.vaults)),
		CreatedAt:     m.createdAt,
	}
	for k, v := range m.volumeByAsset {
		st.VolumeByAsset[k] = v
	}
	m.mu.Unlock()

	for asset, v := range m.vaults {
		st.Vaults[asset] = v.Snapshot()
	}
	return st
}

// Restore 恢复台账与计数, 限流窗口与平均耗时不入快照
func (m *Manager) Restore(st ManagerState) error {
	for asset, vs := range st.Vaults {
		v, ok := m.vaults[asset]
		if !ok {
			return fmt.Errorf("snapshot contains unknown asset %s", asset)
		}
		v.Restore(vs)
	}

	m.mu.Lock()
	m.totalOps = st.TotalOps
	m.successfulOps = st.SuccessfulOps
	m.failedOps = st.FailedOps
	m.volumeByAsset = make(map[model.AssetKind]uint64, len(st.VolumeByAsset))
	for k, v := range st.VolumeByAsset {
		m.volumeByAsset[k] = v
	}
	if !st.CreatedAt.IsZero() {
		m.createdAt = st.CreatedAt
	}
	m.avgResponse = make(map[string]time.Duration)
	m.mu.Unlock()

	m.ResetRateLimiters()
	return nil
}
