package hdwallet

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/pkg/address"
	"vault-core/pkg/crypto_util"
)

var testSeed, _ = hex.DecodeString("fffcf9f6da3247d8a846f4b6113e6173")

func newTestEngine(t *testing.T) (*Engine, *clock.TestClock) {
	t.Helper()
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	e, err := New(testSeed, "m/44'/0'/0'/0", &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatalf("构建引擎失败: %v", err)
	}
	return e, clk
}

func TestNewSeedValidation(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))

	// 种子过短
	if _, err := New(make([]byte, 15), "m/0", &chaincfg.MainNetParams, clk); err == nil {
		t.Fatal("15 字节种子应被拒绝")
	}
	// 种子过长
	if _, err := New(make([]byte, 65), "m/0", &chaincfg.MainNetParams, clk); err == nil {
		t.Fatal("65 字节种子应被拒绝")
	}
	// 基路径过深
	if _, err := New(testSeed, "m/1/2/3/4/5/6/7", &chaincfg.MainNetParams, clk); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("7 层基路径应被拒绝, 实际: %v", err)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	e1, _ := newTestEngine(t)
	e2, _ := newTestEngine(t)

	for _, index := range []uint32{0, 1, 1000} {
		pub1, err := e1.DerivePublicKey(index)
		if err != nil {
			t.Fatalf("派生索引 %d 失败: %v", index, err)
		}
		pub2, err := e2.DerivePublicKey(index)
		if err != nil {
			t.Fatal(err)
		}
		if hex.EncodeToString(pub1) != hex.EncodeToString(pub2) {
			t.Fatalf("索引 %d 两个引擎派生结果不一致", index)
		}
	}
}

func TestDeriveSameAfterCacheEviction(t *testing.T) {
	e, clk := newTestEngine(t)

	addr1, err := e.DeriveAddress(5, address.P2WPKH)
	if err != nil {
		t.Fatal(err)
	}

	// 缓存全部过期后重新派生, 结果必须一致
	clk.SetTime(clk.Now().Add(2 * time.Hour))
	if n := e.CleanupCache(); n == 0 {
		t.Fatal("应有缓存条目被淘汰")
	}
	addr2, err := e.DeriveAddress(5, address.P2WPKH)
	if err != nil {
		t.Fatal(err)
	}
	if addr1 != addr2 {
		t.Fatalf("缓存淘汰后地址不一致: %s != %s", addr1, addr2)
	}
}

func TestCleanupKeepsKeyCache(t *testing.T) {
	e, clk := newTestEngine(t)

	if _, err := e.DerivePrivateKey(7); err != nil {
		t.Fatal(err)
	}
	if _, err := e.DeriveAddress(7, address.P2PKH); err != nil {
		t.Fatal(err)
	}

	// 只淘汰地址缓存, 私钥缓存不设过期
	clk.SetTime(clk.Now().Add(2 * time.Hour))
	e.CleanupCache()

	stats := e.Stats()
	if stats.CachedAddresses != 0 {
		t.Fatalf("过期地址缓存应被清空, 实际 %d 条", stats.CachedAddresses)
	}
	if stats.CachedKeys != 1 {
		t.Fatalf("私钥缓存不应被淘汰, 期望 1 条, 实际 %d", stats.CachedKeys)
	}
}

func TestIndexBounds(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.DerivePublicKey(MaxIndex); err != nil {
		t.Fatalf("上限内索引应可用: %v", err)
	}
	if _, err := e.DerivePublicKey(MaxIndex + 1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("超限索引应被拒绝, 实际: %v", err)
	}
}

func TestAddressTypesDiffer(t *testing.T) {
	e, _ := newTestEngine(t)

	p2pkh, err := e.DeriveAddress(0, address.P2PKH)
	if err != nil {
		t.Fatal(err)
	}
	p2sh, err := e.DeriveAddress(0, address.P2SH)
	if err != nil {
		t.Fatal(err)
	}
	p2wpkh, err := e.DeriveAddress(0, address.P2WPKH)
	if err != nil {
		t.Fatal(err)
	}

	t.Logf("P2PKH: %s, P2SH: %s, P2WPKH: %s", p2pkh, p2sh, p2wpkh)
	if p2pkh == p2sh || p2sh == p2wpkh || p2pkh == p2wpkh {
		t.Fatal("三种地址类型应互不相同")
	}
	if p2pkh[0] != '1' {
		t.Errorf("P2PKH 主网地址应以 1 开头: %s", p2pkh)
	}
	if p2sh[0] != '3' {
		t.Errorf("P2SH 主网地址应以 3 开头: %s", p2sh)
	}
	if p2wpkh[:3] != "bc1" {
		t.Errorf("P2WPKH 主网地址应以 bc1 开头: %s", p2wpkh)
	}
}

func TestBatchDeriveFailFast(t *testing.T) {
	e, _ := newTestEngine(t)

	// 超过单次上限
	if _, err := e.BatchDeriveAddresses(0, 101, address.P2PKH); err == nil {
		t.Fatal("101 个应被拒绝")
	}
	// 区间越界
	if _, err := e.BatchDeriveAddresses(MaxIndex-5, 10, address.P2PKH); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("越界批量应被拒绝, 实际: %v", err)
	}

	out, err := e.BatchDeriveAddresses(100, 10, address.P2WPKH)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 10 {
		t.Fatalf("应派生 10 个, 实际 %d", len(out))
	}
	if out[0].Index != 100 || out[9].Index != 109 {
		t.Fatal("索引区间不正确")
	}
}

func TestSignDataVerifies(t *testing.T) {
	e, _ := newTestEngine(t)
	data := []byte("spend 42 sats")

	sigBytes, err := e.SignData(3, data)
	if err != nil {
		t.Fatal(err)
	}

	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		t.Fatalf("签名应为合法 DER: %v", err)
	}
	priv, err := e.DerivePrivateKey(3)
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto_util.SHA256Bytes(data)
	if !sig.Verify(digest[:], priv.PubKey()) {
		t.Fatal("签名应能被对应公钥验证")
	}

	// 超限数据
	if _, err := e.SignData(3, make([]byte, maxSignSize+1)); !errors.Is(err, ErrOversizedData) {
		t.Fatalf("超限数据应被拒绝, 实际: %v", err)
	}
}

func TestStatsTrackUsage(t *testing.T) {
	e, clk := newTestEngine(t)

	if got := e.Stats().UsageCount; got != 0 {
		t.Fatalf("新引擎使用次数应为 0, 实际 %d", got)
	}

	clk.SetTime(clk.Now().Add(time.Minute))
	if _, err := e.DeriveAddress(0, address.P2PKH); err != nil {
		t.Fatal(err)
	}
	if _, err := e.DerivePrivateKey(1); err != nil {
		t.Fatal(err)
	}

	st := e.Stats()
	if st.UsageCount == 0 {
		t.Fatal("派生后使用次数应增长")
	}
	if st.CachedKeys == 0 || st.CachedAddresses == 0 {
		t.Fatalf("缓存条数应被统计: keys=%d addrs=%d", st.CachedKeys, st.CachedAddresses)
	}
	if !st.LastUsed.After(st.CreatedAt) {
		t.Fatal("最近使用时间应晚于创建时间")
	}
}

func TestRegistryDeterministicPerOwner(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	seed := append(testSeed, testSeed...) // 32 bytes

	r1, err := NewRegistry(seed, &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := NewRegistry(seed, &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatal(err)
	}

	e1, _ := r1.CreateOrGet("alice")
	e2, _ := r2.CreateOrGet("alice")
	a1, _ := e1.DeriveAddress(0, address.P2PKH)
	a2, _ := e2.DeriveAddress(0, address.P2PKH)
	if a1 != a2 {
		t.Fatal("相同种子与 owner 应派生相同地址")
	}

	// 不同 owner 使用不同基路径
	e3, _ := r1.CreateOrGet("bob")
	a3, _ := e3.DeriveAddress(0, address.P2PKH)
	if a1 == a3 {
		t.Fatal("不同 owner 不应派生出相同地址")
	}
}

func TestRegistrySnapshotRestore(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	seed := append(testSeed, testSeed...)

	r, err := NewRegistry(seed, &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatal(err)
	}
	e, _ := r.CreateOrGet("alice")
	before, _ := e.DeriveAddress(7, address.P2WPKH)

	st := r.Snapshot()

	restored, err := NewRegistry(seed, &chaincfg.MainNetParams, clk)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(st); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	e2, _ := restored.CreateOrGet("alice")
	after, _ := e2.DeriveAddress(7, address.P2WPKH)
	if before != after {
		t.Fatal("恢复后的引擎应派生出相同地址")
	}
	if restored.Count() != 1 {
		t.Fatalf("恢复后应有 1 个引擎, 实际 %d", restored.Count())
	}
}
