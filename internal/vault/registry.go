package vault

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
	"vault-core/pkg/errno"
)

// 失败率超过该值判定系统为 degraded
const degradedErrorRate = 0.05

// RegistryConfig 注册表构造参数: 各资产的账本/铸币客户端与风控配置
type RegistryConfig struct {
	NativeLedger LedgerClient
	BtcLedger    LedgerClient
	UsdtLedger   LedgerClient
	Minter       MinterClient
	Network      *chaincfg.Params

	NativeCfg Config
	BtcCfg    Config
	UsdtCfg   Config

	Limits map[model.AssetKind]RateLimits
}

// Registry 按 owner 管理 VaultManager, 取代进程级全局表
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	cfg      RegistryConfig
	managers map[model.Owner]*Manager
}

func NewRegistry(cfg RegistryConfig, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Registry{
		clock:    clk,
		cfg:      cfg,
		managers: make(map[model.Owner]*Manager),
	}
}

// CreateOrGet 幂等获取 owner 的管理器, 返回是否为新建
func (r *Registry) CreateOrGet(owner model.Owner) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[owner]; ok {
		return m, false
	}
	m := r.buildManager(owner)
	r.managers[owner] = m
	return m, true
}

// Get 仅查找, 不存在返回 ErrWalletNotFound
func (r *Registry) Get(owner model.Owner) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.managers[owner]
	if !ok {
		return nil, errno.ErrWalletNotFound
	}
	return m, nil
}

func (r *Registry) buildManager(owner model.Owner) *Manager {
	vaults := map[model.AssetKind]Vault{
		model.AssetNative: NewNativeVault(owner, r.cfg.NativeCfg, r.cfg.NativeLedger, r.clock),
		model.AssetBTC:    NewBtcVault(owner, r.cfg.BtcCfg, r.cfg.BtcLedger, r.cfg.Minter, r.cfg.Network, r.clock),
		model.AssetUSDT:   NewUsdtVault(owner, r.cfg.UsdtCfg, r.cfg.UsdtLedger, r.cfg.Minter, r.clock),
	}
	return NewManager(owner, vaults, r.cfg.Limits, r.clock)
}

// Owners 已注册的 owner 列表
func (r *Registry) Owners() []model.Owner {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Owner, 0, len(r.managers))
	for owner := range r.managers {
		out = append(out, owner)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Health 聚合所有钱包的操作计数并计算失败率
func (r *Registry) Health() model.SystemHealth {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	var total, failed uint64
	for _, m := range managers {
		mm := m.Metrics()
		total += mm.TotalOps
		failed += mm.FailedOps
	}

	health := model.SystemHealth{
		Status:          model.HealthHealthy,
		ActiveWallets:   len(managers),
		TotalOperations: total,
		FailedOps:       failed,
		GeneratedAt:     r.clock.Now(),
	}
	if total > 0 {
		health.ErrorRate = float64(failed) / float64(total)
		if health.ErrorRate > degradedErrorRate {
			health.Status = model.HealthDegraded
		}
	}
	return health
}

// CleanupOldTransactions 清理所有金库的过期终态交易
func (r *Registry) CleanupOldTransactions(maxAge time.Duration) int {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	removed := 0
	for _, m := range managers {
		for _, asset := range model.AllAssets {
			if v, err := m.Vault(asset); err == nil {
				removed += v.CleanupOldTransactions(maxAge)
			}
		}
	}
	return removed
}

// RegistryState 全部钱包的可序列化快照
type RegistryState struct {
	Managers map[model.Owner]ManagerState `json:"managers"`
}

func (r *Registry) Snapshot() RegistryState {
	r.mu.Lock()
	managers := make(map[model.Owner]*Manager, len(r.managers))
	for owner, m := range r.managers {
		managers[owner] = m
	}
	r.mu.Unlock()

	st := RegistryState{Managers: make(map[model.Owner]ManagerState, len(managers))}
	for owner, m := range managers {
		st.Managers[owner] = m.Snapshot()
	}
	return st
}

// Restore 重建所有管理器并恢复台账
func (r *Registry) Restore(st RegistryState) error {
	rebuilt := make(map[model.Owner]*Manager, len(st.Managers))
	for owner, ms := range st.Managers {
		m := r.buildManager(owner)
		if err := m.Restore(ms); err != nil {
			return err
		}
		rebuilt[owner] = m
	}

	r.mu.Lock()
	r.managers = rebuilt
	r.mu.Unlock()
	return nil
}
