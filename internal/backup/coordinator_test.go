package backup

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/hdwallet"
	"vault-core/internal/model"
	"vault-core/internal/signing"
	"vault-core/internal/vault"
	"vault-core/pkg/address"
)

var testSeed, _ = hex.DecodeString("fffcf9f6da3247d8a846f4b6113e6173")

// stubOracle 返回确定性签名结果
type stubOracle struct{}

func (stubOracle) PublicKey(_ context.Context, keyName string, path [][]byte) ([]byte, error) {
	out := []byte(keyName)
	for _, seg := range path {
		out = append(out, seg...)
	}
	return out, nil
}

func (stubOracle) Sign(_ context.Context, _ string, _ [][]byte, digest []byte) ([]byte, error) {
	return append([]byte("sig:"), digest...), nil
}

// stubLedger 固定余额账本
type stubLedger struct {
	balance uint64
	blocks  uint64
}

func (s *stubLedger) BalanceOf(_ context.Context, _ model.Owner) (uint64, error) {
	return s.balance, nil
}

func (s *stubLedger) Transfer(_ context.Context, _ model.Owner, _ string, amount, fee uint64) (uint64, error) {
	s.balance -= amount + fee
	s.blocks++
	return s.blocks, nil
}

type stubMinter struct{ nextID uint64 }

func (s *stubMinter) DepositAddress(_ context.Context, _ model.Owner) (string, error) {
	return "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", nil
}

func (s *stubMinter) Withdraw(_ context.Context, _ model.Owner, _ uint64, _ string) (uint64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *stubMinter) WithdrawalStatus(_ context.Context, id uint64) (model.WithdrawalStatus, error) {
	return model.WithdrawalStatus{ID: id, State: model.WithdrawalPending}, nil
}

// testSystem 三个子系统加协调器的完整组装
type testSystem struct {
	clk     *clock.TestClock
	ledger  *stubLedger
	signing *signing.Service
	wallets *hdwallet.Registry
	vaults  *vault.Registry
	coord   *Coordinator
}

func newTestSystem(t *testing.T, store Store, password string) *testSystem {
	t.Helper()
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))

	sig := signing.NewService(stubOracle{}, signing.Config{KeyName: "vault_key", MaxRequestsPerMinute: 100}, clk)

	wallets, err := hdwallet.NewRegistry(testSeed, &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatalf("构建钱包注册表失败: %v", err)
	}

	ledger := &stubLedger{balance: 1_000_000}
	vaults := vault.NewRegistry(vault.RegistryConfig{
		NativeLedger: ledger,
		BtcLedger:    &stubLedger{},
		UsdtLedger:   &stubLedger{},
		Minter:       &stubMinter{},
		Network:      &chaincfg.MainNetParams,
		NativeCfg:    vault.Config{TransferFee: 10, MinTransfer: 100},
	}, clk)

	return &testSystem{
		clk:     clk,
		ledger:  ledger,
		signing: sig,
		wallets: wallets,
		vaults:  vaults,
		coord:   NewCoordinator(store, sig, wallets, vaults, password, clk),
	}
}

// populate 造出有代表性的状态: 钱包、派生路径、转账台账
func (s *testSystem) populate(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if err := s.signing.SetDerivationPath("alice", [][]byte{{0, 0, 0, 7}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.wallets.CreateOrGet("alice"); err != nil {
		t.Fatal(err)
	}
	m, _ := s.vaults.CreateOrGet("alice")
	v, _ := m.Vault(model.AssetNative)
	if _, err := v.UpdateBalance(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Transfer(ctx, model.AssetNative, 10_000, "bob"); err != nil {
		t.Fatal(err)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	sys := newTestSystem(t, store, "")
	sys.populate(t)

	checksum, err := sys.coord.Backup(context.Background())
	if err != nil {
		t.Fatalf("备份失败: %v", err)
	}
	if len(checksum) != 64 {
		t.Fatalf("校验和应为 64 位 hex, 实际 %q", checksum)
	}

	// 恢复到一套全新的子系统
	fresh := newTestSystem(t, store, "")
	if err := fresh.coord.Restore(context.Background()); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	m, err := fresh.vaults.Get("alice")
	if err != nil {
		t.Fatalf("恢复后钱包应存在: %v", err)
	}
	bal, _ := m.Balance(model.AssetNative)
	if bal != 1_000_000-10_010 {
		t.Fatalf("恢复后余额期望 989990, 实际 %d", bal)
	}
	history, _ := m.History(model.AssetNative, 0)
	if len(history) != 1 || history[0].Status != model.TxCompleted {
		t.Fatal("交易历史应随快照恢复")
	}

	// 钱包引擎用种子重建, 派生结果保持确定性
	var addr1, addr2 string
	if err := sys.wallets.WithEngine("alice", func(e *hdwallet.Engine) error {
		var derr error
		addr1, derr = e.DeriveAddress(0, address.P2WPKH)
		return derr
	}); err != nil {
		t.Fatal(err)
	}
	if err := fresh.wallets.WithEngine("alice", func(e *hdwallet.Engine) error {
		var derr error
		addr2, derr = e.DeriveAddress(0, address.P2WPKH)
		return derr
	}); err != nil {
		t.Fatal(err)
	}
	if addr1 != addr2 {
		t.Fatalf("恢复后派生地址应一致: %s != %s", addr1, addr2)
	}

	// 签名服务的派生路径恢复
	if fresh.signing.Metrics().ActiveOwners != 1 {
		t.Fatal("签名服务路径表应随快照恢复")
	}
}

func TestRestoreRejectsCorruptedPayload(t *testing.T) {
	store := NewMemoryStore()
	sys := newTestSystem(t, store, "")
	sys.populate(t)

	if _, err := sys.coord.Backup(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 篡改载荷, 校验和不再匹配
	rec, _ := store.Load(context.Background())
	rec.Payload[0] ^= 0xff
	_ = store.Save(context.Background(), rec)

	fresh := newTestSystem(t, store, "")
	err := fresh.coord.Restore(context.Background())
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Fatalf("篡改的快照应被拒绝: %v", err)
	}
	// 拒绝后子系统保持原状
	if fresh.vaults.Count() != 0 {
		t.Fatal("恢复失败不应改动金库状态")
	}
}

func TestBackupEncryptedWallets(t *testing.T) {
	store := NewMemoryStore()
	sys := newTestSystem(t, store, "correct horse battery staple")
	sys.populate(t)

	if _, err := sys.coord.Backup(context.Background()); err != nil {
		t.Fatalf("加密备份失败: %v", err)
	}

	// 载荷中不应出现明文种子
	rec, _ := store.Load(context.Background())
	if strings.Contains(string(rec.Payload), hex.EncodeToString(testSeed)) {
		t.Fatal("种子不应以明文出现在快照中")
	}

	// 正确口令恢复成功
	fresh := newTestSystem(t, store, "correct horse battery staple")
	if err := fresh.coord.Restore(context.Background()); err != nil {
		t.Fatalf("正确口令应恢复成功: %v", err)
	}
	if fresh.wallets.Count() != 1 {
		t.Fatalf("钱包数期望 1, 实际 %d", fresh.wallets.Count())
	}

	// 错误口令恢复失败
	wrong := newTestSystem(t, store, "wrong password")
	if err := wrong.coord.Restore(context.Background()); err == nil {
		t.Fatal("错误口令应恢复失败")
	}

	// 未配置口令也无法恢复加密快照
	none := newTestSystem(t, store, "")
	if err := none.coord.Restore(context.Background()); err == nil {
		t.Fatal("缺少口令应恢复失败")
	}
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	sys := newTestSystem(t, NewMemoryStore(), "")
	if err := sys.coord.Restore(context.Background()); err != ErrNoSnapshot {
		t.Fatalf("空存储应返回 ErrNoSnapshot: %v", err)
	}
}

func TestBackupOverwritesPreviousSnapshot(t *testing.T) {
	store := NewMemoryStore()
	sys := newTestSystem(t, store, "")
	sys.populate(t)

	c1, err := sys.coord.Backup(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// 状态变化后再次备份, 单行覆盖
	sys.clk.SetTime(sys.clk.Now().Add(time.Minute))
	m, _ := sys.vaults.Get("alice")
	if _, err := m.Transfer(context.Background(), model.AssetNative, 10_000, "bob"); err != nil {
		t.Fatal(err)
	}
	c2, err := sys.coord.Backup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Fatal("状态变化后校验和应不同")
	}

	fresh := newTestSystem(t, store, "")
	if err := fresh.coord.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	m2, _ := fresh.vaults.Get("alice")
	history, _ := m2.History(model.AssetNative, 0)
	if len(history) != 2 {
		t.Fatalf("应恢复最新快照的 2 笔交易, 实际 %d", len(history))
	}
}
