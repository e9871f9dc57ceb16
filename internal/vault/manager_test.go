package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
	"vault-core/pkg/errno"
)

// testRig 一个 owner 的三资产管理器及其全部假外部依赖
type testRig struct {
	clk          *clock.TestClock
	nativeLedger *fakeLedger
	btcLedger    *fakeLedger
	usdtLedger   *fakeLedger
	minter       *fakeMinter
	manager      *Manager
}

func newTestRig(t *testing.T, limits map[model.AssetKind]RateLimits) *testRig {
	t.Helper()
	r := &testRig{
		clk:          testClock(),
		nativeLedger: &fakeLedger{},
		btcLedger:    &fakeLedger{},
		usdtLedger:   &fakeLedger{},
		minter:       &fakeMinter{},
	}
	vaults := map[model.AssetKind]Vault{
		model.AssetNative: NewNativeVault("alice", Config{TransferFee: 10, MinTransfer: 100}, r.nativeLedger, r.clk),
		model.AssetBTC: NewBtcVault("alice", Config{MinWithdrawal: 10_000, DailyWithdrawalLimit: 100_000_000},
			r.btcLedger, r.minter, &chaincfg.MainNetParams, r.clk),
		model.AssetUSDT: NewUsdtVault("alice", Config{MinWithdrawal: 1_000_000, DailyWithdrawalLimit: 10_000_000_000},
			r.usdtLedger, r.minter, r.clk),
	}
	r.manager = NewManager("alice", vaults, limits, r.clk)
	return r
}

func (r *testRig) seed(t *testing.T, asset model.AssetKind, ledger *fakeLedger, amount uint64) {
	t.Helper()
	v, err := r.manager.Vault(asset)
	if err != nil {
		t.Fatal(err)
	}
	seedBalance(t, v, ledger, amount)
}

func TestManagerTransferRateLimit(t *testing.T) {
	rig := newTestRig(t, map[model.AssetKind]RateLimits{
		model.AssetNative: {Transfers: 10, Refreshes: 20, Withdrawals: 10},
	})
	rig.seed(t, model.AssetNative, rig.nativeLedger, 100_000_000)
	ctx := context.Background()

	// 每分钟 10 笔转账
	for i := 0; i < 10; i++ {
		if _, err := rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob"); err != nil {
			t.Fatalf("第 %d 笔转账应成功: %v", i+1, err)
		}
	}
	_, err := rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob")
	if !errors.Is(err, errno.ErrRateLimitExceeded) {
		t.Fatalf("第 11 笔应被限流: %v", err)
	}

	// 限流不应留下交易记录
	history, _ := rig.manager.History(model.AssetNative, 0)
	if len(history) != 10 {
		t.Fatalf("应只有 10 条记录, 实际 %d", len(history))
	}

	// 窗口滑过后恢复
	rig.clk.SetTime(rig.clk.Now().Add(61 * time.Second))
	if _, err := rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob"); err != nil {
		t.Fatalf("窗口滑过后应放行: %v", err)
	}
}

func TestManagerRateLimitPerOperation(t *testing.T) {
	rig := newTestRig(t, map[model.AssetKind]RateLimits{
		model.AssetNative: {Transfers: 2, Refreshes: 20, Withdrawals: 10},
	})
	rig.seed(t, model.AssetNative, rig.nativeLedger, 100_000_000)
	ctx := context.Background()

	_, _ = rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob")
	_, _ = rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob")
	if _, err := rig.manager.Transfer(ctx, model.AssetNative, 1_000, "bob"); !errors.Is(err, errno.ErrRateLimitExceeded) {
		t.Fatalf("转账配额应已耗尽: %v", err)
	}

	// 转账配额耗尽不影响余额刷新
	rig.clk.SetTime(rig.clk.Now().Add(31 * time.Second))
	if _, errs := rig.manager.RefreshBalances(ctx); len(errs) != 0 {
		t.Fatalf("刷新不应受转账限流影响: %v", errs)
	}
}

func TestManagerRefreshPartialFailure(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.btcLedger.failBalance = errors.New("btc ledger down")
	rig.nativeLedger.balance = 111
	rig.usdtLedger.balance = 333

	balances, errs := rig.manager.RefreshBalances(context.Background())

	if len(errs) != 1 {
		t.Fatalf("应只有 BTC 失败, 实际 %v", errs)
	}
	if _, ok := errs[model.AssetBTC]; !ok {
		t.Fatal("错误表中应包含 BTC")
	}
	if balances[model.AssetNative] != 111 || balances[model.AssetUSDT] != 333 {
		t.Fatalf("其余资产仍应刷新成功: %v", balances)
	}
}

func TestManagerWithdrawUnsupportedAsset(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.seed(t, model.AssetNative, rig.nativeLedger, 1_000_000)

	_, err := rig.manager.Withdraw(context.Background(), model.AssetNative, 100_000, validBTCAddr)
	if !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("原生资产不支持外链提现: %v", err)
	}
}

func TestManagerUnknownAsset(t *testing.T) {
	rig := newTestRig(t, nil)
	if _, err := rig.manager.Balance("DOGE"); !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("未知资产应被拒绝: %v", err)
	}
}

func TestManagerAvgResponseRollingAverage(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// 第一次外部调用耗时 100ms
	rig.nativeLedger.onBalance = func() { rig.clk.SetTime(rig.clk.Now().Add(100 * time.Millisecond)) }
	if _, errs := rig.manager.RefreshBalances(ctx); errs[model.AssetNative] != nil {
		t.Fatal(errs[model.AssetNative])
	}
	// 缓存过期后第二次耗时 300ms
	rig.clk.SetTime(rig.clk.Now().Add(31 * time.Second))
	rig.nativeLedger.onBalance = func() { rig.clk.SetTime(rig.clk.Now().Add(300 * time.Millisecond)) }
	if _, errs := rig.manager.RefreshBalances(ctx); errs[model.AssetNative] != nil {
		t.Fatal(errs[model.AssetNative])
	}

	mm := rig.manager.Metrics()
	// avg = (100ms + 300ms) / 2
	if got := mm.AvgResponse["refresh_NATIVE"]; got != 200*time.Millisecond {
		t.Fatalf("滚动平均期望 200ms, 实际 %v", got)
	}
	// 两轮 x 三资产
	if mm.TotalOps != 6 || mm.SuccessfulOps != 6 {
		t.Fatalf("操作计数不符: %+v", mm)
	}
}

func TestManagerMetricsAggregation(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.seed(t, model.AssetNative, rig.nativeLedger, 1_000_000)
	rig.seed(t, model.AssetBTC, rig.btcLedger, 1_000_000)
	ctx := context.Background()

	if _, err := rig.manager.Transfer(ctx, model.AssetNative, 10_000, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.manager.Withdraw(ctx, model.AssetBTC, 20_000, validBTCAddr); err != nil {
		t.Fatal(err)
	}

	mm := rig.manager.Metrics()
	if mm.VolumeByAsset[model.AssetNative] != 10_000 {
		t.Fatalf("NATIVE 交易量期望 10000, 实际 %d", mm.VolumeByAsset[model.AssetNative])
	}
	if mm.VolumeByAsset[model.AssetBTC] != 20_000 {
		t.Fatalf("BTC 交易量期望 20000, 实际 %d", mm.VolumeByAsset[model.AssetBTC])
	}
	if mm.VaultMetrics[model.AssetNative].TotalTxs != 1 {
		t.Fatal("NATIVE 金库应有 1 笔交易")
	}
	if mm.VaultMetrics[model.AssetBTC].TotalTxs != 1 {
		t.Fatal("BTC 金库应有 1 笔交易")
	}
}

func newTestRegistry(clk *clock.TestClock, nativeLedger, btcLedger, usdtLedger *fakeLedger, minter *fakeMinter) *Registry {
	return NewRegistry(RegistryConfig{
		NativeLedger: nativeLedger,
		BtcLedger:    btcLedger,
		UsdtLedger:   usdtLedger,
		Minter:       minter,
		Network:      &chaincfg.MainNetParams,
		NativeCfg:    Config{TransferFee: 10, MinTransfer: 100},
		BtcCfg:       Config{MinWithdrawal: 10_000, DailyWithdrawalLimit: 100_000_000},
		UsdtCfg:      Config{MinWithdrawal: 1_000_000, DailyWithdrawalLimit: 10_000_000_000},
	}, clk)
}

func TestRegistryCreateOrGetIdempotent(t *testing.T) {
	clk := testClock()
	reg := newTestRegistry(clk, &fakeLedger{}, &fakeLedger{}, &fakeLedger{}, &fakeMinter{})

	m1, created := reg.CreateOrGet("alice")
	if !created {
		t.Fatal("首次创建 created 应为 true")
	}
	m2, created := reg.CreateOrGet("alice")
	if created {
		t.Fatal("二次获取 created 应为 false")
	}
	if m1 != m2 {
		t.Fatal("同一 owner 应返回同一管理器")
	}
	if reg.Count() != 1 {
		t.Fatalf("注册表应有 1 个钱包, 实际 %d", reg.Count())
	}

	if _, err := reg.Get("bob"); !errors.Is(err, errno.ErrWalletNotFound) {
		t.Fatalf("未注册 owner 应返回钱包不存在: %v", err)
	}
}

func TestRegistryHealthDegraded(t *testing.T) {
	clk := testClock()
	nativeLedger := &fakeLedger{balance: 100}
	reg := newTestRegistry(clk, nativeLedger, &fakeLedger{}, &fakeLedger{}, &fakeMinter{})
	m, _ := reg.CreateOrGet("alice")
	ctx := context.Background()

	// 一次成功
	if _, errs := m.RefreshBalances(ctx); len(errs) != 0 {
		t.Fatalf("首轮刷新应成功: %v", errs)
	}
	h := reg.Health()
	if h.Status != model.HealthHealthy {
		t.Fatalf("无失败时应为 healthy, 实际 %s", h.Status)
	}

	// 账本故障, 接下来全部失败, 失败率远超 5%
	nativeLedger.mu.Lock()
	nativeLedger.failBalance = errors.New("ledger down")
	nativeLedger.mu.Unlock()
	for i := 0; i < 3; i++ {
		clk.SetTime(clk.Now().Add(31 * time.Second))
		m.RefreshBalances(ctx)
	}

	h = reg.Health()
	if h.Status != model.HealthDegraded {
		t.Fatalf("失败率 %v 应判定 degraded", h.ErrorRate)
	}
	if h.ActiveWallets != 1 {
		t.Fatalf("活跃钱包数期望 1, 实际 %d", h.ActiveWallets)
	}
}

func TestRegistrySnapshotRestore(t *testing.T) {
	clk := testClock()
	nativeLedger := &fakeLedger{}
	btcLedger := &fakeLedger{}
	minter := &fakeMinter{}
	reg := newTestRegistry(clk, nativeLedger, btcLedger, &fakeLedger{}, minter)
	ctx := context.Background()

	m, _ := reg.CreateOrGet("alice")
	vNative, _ := m.Vault(model.AssetNative)
	seedBalance(t, vNative, nativeLedger, 1_000_000)
	if _, err := m.Transfer(ctx, model.AssetNative, 10_000, "bob"); err != nil {
		t.Fatal(err)
	}
	reg.CreateOrGet("carol")

	st := reg.Snapshot()

	restored := newTestRegistry(clk, nativeLedger, btcLedger, &fakeLedger{}, minter)
	if err := restored.Restore(st); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	if restored.Count() != 2 {
		t.Fatalf("恢复后应有 2 个钱包, 实际 %d", restored.Count())
	}
	rm, err := restored.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	bal, err := rm.Balance(model.AssetNative)
	if err != nil {
		t.Fatal(err)
	}
	if want, _ := m.Balance(model.AssetNative); bal != want {
		t.Fatalf("恢复后余额不一致: %d != %d", bal, want)
	}
	history, _ := rm.History(model.AssetNative, 0)
	if len(history) != 1 || history[0].Status != model.TxCompleted {
		t.Fatal("交易历史应随快照恢复")
	}
	// 平均耗时不入快照
	if len(rm.Metrics().AvgResponse) != 0 {
		t.Fatal("恢复后平均耗时应清空")
	}
}
