package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"vault-core/pkg/errno"
)

func TestLimiterAllowsUpToLimit(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	l := New(5, clk)

	// 前 5 次应全部放行
	for i := 0; i < 5; i++ {
		if err := l.Check("sign"); err != nil {
			t.Fatalf("第 %d 次请求不应被限流: %v", i+1, err)
		}
	}

	// 第 6 次必须被拒绝
	err := l.Check("sign")
	if !errors.Is(err, errno.ErrRateLimitExceeded) {
		t.Fatalf("期望 ErrRateLimitExceeded, 实际: %v", err)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.NewTestClock(start)
	l := New(2, clk)

	if err := l.Check("transfer"); err != nil {
		t.Fatal(err)
	}
	clk.SetTime(start.Add(30 * time.Second))
	if err := l.Check("transfer"); err != nil {
		t.Fatal(err)
	}
	if err := l.Check("transfer"); err == nil {
		t.Fatal("窗口未过期, 第 3 次应被限流")
	}

	// 61s 后第一条记录滑出窗口
	clk.SetTime(start.Add(61 * time.Second))
	if err := l.Check("transfer"); err != nil {
		t.Fatalf("首条记录已过期, 应放行: %v", err)
	}
}

func TestLimiterOperationsIndependent(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	l := New(1, clk)

	if err := l.Check("sign"); err != nil {
		t.Fatal(err)
	}
	// 不同操作名互不影响
	if err := l.Check("public_key"); err != nil {
		t.Fatalf("public_key 应有独立配额: %v", err)
	}
	if err := l.Check("sign"); err == nil {
		t.Fatal("sign 配额已用尽")
	}
}

func TestLimiterRemainingAndReset(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	l := New(3, clk)

	_ = l.Check("withdraw")
	_ = l.Check("withdraw")
	if got := l.Remaining("withdraw"); got != 1 {
		t.Fatalf("剩余配额期望 1, 实际 %d", got)
	}

	l.Reset()
	if got := l.Remaining("withdraw"); got != 3 {
		t.Fatalf("重置后剩余配额期望 3, 实际 %d", got)
	}
}

func TestLimiterSetLimit(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	l := New(1, clk)

	_ = l.Check("refresh")
	if err := l.Check("refresh"); err == nil {
		t.Fatal("应触发限流")
	}

	l.SetLimit(2)
	if err := l.Check("refresh"); err != nil {
		t.Fatalf("上限调高后应放行: %v", err)
	}
}
