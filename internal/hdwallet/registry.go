package hdwallet

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
)

// Registry 按 owner 管理派生引擎
// 所有 owner 共享同一个主种子, 各自使用确定性的个人基路径
type Registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	network *chaincfg.Params
	seed    []byte

	engines map[model.Owner]*Engine
}

func NewRegistry(masterSeed []byte, network *chaincfg.Params, clk clock.Clock) (*Registry, error) {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if network == nil {
		network = &chaincfg.MainNetParams
	}
	// 提前校验种子, 避免第一个 owner 注册时才失败
	if _, err := New(masterSeed, OwnerPath("probe"), network, clk); err != nil {
		return nil, err
	}
	return &Registry{
		clock:   clk,
		network: network,
		seed:    append([]byte(nil), masterSeed...),
		engines: make(map[model.Owner]*Engine),
	}, nil
}

// CreateOrGet 幂等获取 owner 的引擎
func (r *Registry) CreateOrGet(owner model.Owner) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[owner]; ok {
		return e, nil
	}
	e, err := New(r.seed, OwnerPath(owner), r.network, r.clock)
	if err != nil {
		return nil, err
	}
	r.engines[owner] = e
	return e, nil
}

// WithEngine 串行化地访问 owner 的引擎
func (r *Registry) WithEngine(owner model.Owner, fn func(*Engine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.engines[owner]
	if !ok {
		var err error
		e, err = New(r.seed, OwnerPath(owner), r.network, r.clock)
		if err != nil {
			return err
		}
		r.engines[owner] = e
	}
	return fn(e)
}

// CleanupCaches 清理所有引擎的过期缓存, 返回总淘汰条数
func (r *Registry) CleanupCaches() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, e := range r.engines {
		total += e.CleanupCache()
	}
	return total
}

// Count 已注册的 owner 数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// RegistryState 可序列化的全量引擎快照
type RegistryState struct {
	Network string                `json:"network"`
	Engines map[model.Owner]State `json:"engines"`
}

func (r *Registry) Snapshot() RegistryState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RegistryState{
		Network: r.network.Name,
		Engines: make(map[model.Owner]State, len(r.engines)),
	}
	for owner, e := range r.engines {
		st.Engines[owner] = e.Snapshot()
	}
	return st
}

// Restore 用快照覆盖现有引擎, 任一引擎重建失败则整体失败
func (r *Registry) Restore(st RegistryState) error {
	rebuilt := make(map[model.Owner]*Engine, len(st.Engines))
	for owner, es := range st.Engines {
		e, err := FromState(es, r.clock)
		if err != nil {
			return err
		}
		rebuilt[owner] = e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = rebuilt
	return nil
}
