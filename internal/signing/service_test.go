package signing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"vault-core/pkg/errno"
)

// fakeOracle 记录调用次数, 按派生路径返回确定性公钥
type fakeOracle struct {
	pubKeyCalls int
	signCalls   int
	failNext    error
}

func (f *fakeOracle) PublicKey(_ context.Context, keyName string, path [][]byte) ([]byte, error) {
	f.pubKeyCalls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	out := []byte(keyName)
	for _, seg := range path {
		out = append(out, seg...)
	}
	return out, nil
}

func (f *fakeOracle) Sign(_ context.Context, _ string, _ [][]byte, digest []byte) ([]byte, error) {
	f.signCalls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	return append([]byte("sig:"), digest...), nil
}

func newTestService(maxPerMinute int) (*Service, *fakeOracle, *clock.TestClock) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	oracle := &fakeOracle{}
	svc := NewService(oracle, Config{KeyName: "test_key", MaxRequestsPerMinute: maxPerMinute}, clk)
	return svc, oracle, clk
}

func path(segs ...uint8) [][]byte {
	out := make([][]byte, len(segs))
	for i, s := range segs {
		out[i] = []byte{0, 0, 0, s}
	}
	return out
}

func TestSetDerivationPathValidation(t *testing.T) {
	svc, _, _ := newTestService(5)

	// 超过 10 段应被拒绝
	long := make([][]byte, 11)
	for i := range long {
		long[i] = []byte{0, 0, 0, 1}
	}
	if err := svc.SetDerivationPath("alice", long); !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("超长路径应返回校验错误, 实际: %v", err)
	}

	// 段长度必须是 4 字节
	if err := svc.SetDerivationPath("alice", [][]byte{{1, 2, 3}}); !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("非 4 字节段应被拒绝, 实际: %v", err)
	}

	if err := svc.SetDerivationPath("alice", path(1, 2)); err != nil {
		t.Fatalf("合法路径不应报错: %v", err)
	}
}

func TestDerivationPathReturnsCopy(t *testing.T) {
	svc, _, _ := newTestService(5)

	_ = svc.SetDerivationPath("alice", path(1, 2))
	p, ok := svc.DerivationPath("alice")
	if !ok {
		t.Fatal("alice 应已绑定路径")
	}

	// 篡改返回值不应影响内部状态
	p[0][3] = 0xff
	again, _ := svc.DerivationPath("alice")
	if !bytes.Equal(again[0], []byte{0, 0, 0, 1}) {
		t.Fatalf("内部路径被外部修改污染: %x", again[0])
	}
}

func TestPublicKeyCaching(t *testing.T) {
	svc, oracle, clk := newTestService(5)
	ctx := context.Background()

	if err := svc.SetDerivationPath("alice", path(7)); err != nil {
		t.Fatal(err)
	}

	key1, err := svc.PublicKey(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	key2, err := svc.PublicKey(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatal("缓存命中应返回相同公钥")
	}
	if oracle.pubKeyCalls != 1 {
		t.Fatalf("缓存期内应只调用一次远程, 实际 %d 次", oracle.pubKeyCalls)
	}

	// TTL 过期后重新调用远程
	clk.SetTime(clk.Now().Add(5*time.Minute + time.Second))
	if _, err := svc.PublicKey(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if oracle.pubKeyCalls != 2 {
		t.Fatalf("缓存过期应触发第二次远程调用, 实际 %d 次", oracle.pubKeyCalls)
	}
}

func TestPathChangeInvalidatesCache(t *testing.T) {
	svc, oracle, _ := newTestService(10)
	ctx := context.Background()

	_ = svc.SetDerivationPath("alice", path(1))
	k1, _ := svc.PublicKey(ctx, "alice")

	_ = svc.SetDerivationPath("alice", path(2))
	k2, err := svc.PublicKey(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k1, k2) {
		t.Fatal("路径变更后公钥应不同")
	}
	if oracle.pubKeyCalls != 2 {
		t.Fatalf("期望 2 次远程调用, 实际 %d", oracle.pubKeyCalls)
	}
}

func TestSigningRateLimit(t *testing.T) {
	svc, _, clk := newTestService(5)
	ctx := context.Background()
	_ = svc.SetDerivationPath("alice", path(1))

	// 每分钟 5 次配额, 第 6 次必须被拒绝
	for i := 0; i < 5; i++ {
		if _, err := svc.Sign(ctx, "alice", []byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("第 %d 次签名不应失败: %v", i+1, err)
		}
	}
	_, err := svc.Sign(ctx, "alice", []byte("msg-6"))
	if !errors.Is(err, errno.ErrRateLimitExceeded) {
		t.Fatalf("期望限流错误, 实际: %v", err)
	}

	// 窗口滑过后恢复
	clk.SetTime(clk.Now().Add(61 * time.Second))
	if _, err := svc.Sign(ctx, "alice", []byte("msg-7")); err != nil {
		t.Fatalf("窗口过期后应恢复: %v", err)
	}
}

func TestSignMessageValidation(t *testing.T) {
	svc, oracle, _ := newTestService(5)
	ctx := context.Background()
	_ = svc.SetDerivationPath("alice", path(1))

	if _, err := svc.Sign(ctx, "alice", nil); !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("空消息应被拒绝: %v", err)
	}
	if _, err := svc.Sign(ctx, "alice", make([]byte, 1025)); !errors.Is(err, errno.ErrValidation) {
		t.Fatalf("超长消息应被拒绝: %v", err)
	}
	if oracle.signCalls != 0 {
		t.Fatal("校验失败不应触碰远程服务")
	}

	// 校验失败不消耗限流配额
	for i := 0; i < 5; i++ {
		if _, err := svc.Sign(ctx, "alice", []byte{byte(i)}); err != nil {
			t.Fatalf("配额不应被校验失败消耗: %v", err)
		}
	}
}

func TestOracleFailureWrapped(t *testing.T) {
	svc, oracle, _ := newTestService(5)
	ctx := context.Background()
	_ = svc.SetDerivationPath("alice", path(1))

	oracle.failNext = errors.New("subnet unavailable")
	_, err := svc.Sign(ctx, "alice", []byte("hello"))
	var sigErr *errno.SigningError
	if !errors.As(err, &sigErr) {
		t.Fatalf("期望 SigningError, 实际: %v", err)
	}
	if sigErr.Op != "sign" {
		t.Fatalf("错误应携带操作名, 实际: %q", sigErr.Op)
	}
}

func TestEvictExpired(t *testing.T) {
	svc, _, clk := newTestService(10)
	ctx := context.Background()
	_ = svc.SetDerivationPath("alice", path(1))
	_ = svc.SetDerivationPath("bob", path(2))

	_, _ = svc.PublicKey(ctx, "alice")
	clk.SetTime(clk.Now().Add(3 * time.Minute))
	_, _ = svc.PublicKey(ctx, "bob")

	// alice 的缓存已满 5 分钟, bob 的还没有
	clk.SetTime(clk.Now().Add(2*time.Minute + time.Second))
	if n := svc.EvictExpired(); n != 1 {
		t.Fatalf("应清理 1 条, 实际 %d", n)
	}

	m := svc.Metrics()
	if m.CachedPublicKeys != 1 {
		t.Fatalf("剩余缓存应为 1, 实际 %d", m.CachedPublicKeys)
	}
	if m.ActiveOwners != 2 {
		t.Fatalf("活跃 owner 应为 2, 实际 %d", m.ActiveOwners)
	}
}

func TestSnapshotRestore(t *testing.T) {
	svc, _, _ := newTestService(5)
	ctx := context.Background()
	_ = svc.SetDerivationPath("alice", path(1, 2, 3))
	_, _ = svc.PublicKey(ctx, "alice")

	st := svc.Snapshot()

	restored, _, _ := newTestService(5)
	restored.Restore(st)

	p, ok := restored.DerivationPath("alice")
	if !ok {
		t.Fatal("恢复后应保留派生路径")
	}
	if len(p) != 3 {
		t.Fatalf("路径段数应为 3, 实际 %d", len(p))
	}
	if restored.Metrics().CachedPublicKeys != 1 {
		t.Fatal("恢复后公钥缓存应保留")
	}
	if restored.Metrics().TotalRequests != svc.Metrics().TotalRequests {
		t.Fatal("请求计数应随快照恢复")
	}
}
