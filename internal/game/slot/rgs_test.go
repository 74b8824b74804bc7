package slot

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestRGS(t *testing.T, balance int64) *RGSClient {
	t.Helper()
	c := NewRGSClient(DefaultConfig(), nil, WithLatency(0))
	if _, err := c.Connect(context.Background(), "tester", "USD", decimal.NewFromInt(balance)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRGSRequiresSession(t *testing.T) {
	c := NewRGSClient(DefaultConfig(), nil, WithLatency(0))
	defer c.Close()
	ctx := context.Background()
	if _, err := c.GetBalance(ctx); !errors.Is(err, NoActiveSession) {
		t.Errorf("GetBalance without session: %v", err)
	}
	if _, err := c.Spin(ctx, &SpinRequest{Bet: decimal.NewFromInt(1)}); !errors.Is(err, NoActiveSession) {
		t.Errorf("Spin without session: %v", err)
	}
	if _, err := c.GetBetConfiguration(ctx); !errors.Is(err, NoActiveSession) {
		t.Errorf("GetBetConfiguration without session: %v", err)
	}
}

// 场景：connect -> spin(bet=10)，balance=1000，totalWin=0 -> 余额恰为990
func TestRGSSpinDeductsExactly(t *testing.T) {
	c := newTestRGS(t, 1000)
	ctx := context.Background()
	// 强制无奖盘面：各行互不相同且无wild/scatter
	c.SetForcedGrid([][]int64{
		{_low9, _midK, _highGem},
		{_low10, _midA, _highBell},
		{_lowJ, _low9, _highStar},
		{_lowQ, _low10, _midK},
		{_low9, _lowJ, _midA},
	})
	resp, err := c.Spin(ctx, &SpinRequest{Bet: decimal.NewFromInt(10), Lines: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.TotalWin.IsZero() {
		t.Fatalf("forced grid paid %s: %+v", resp.TotalWin, resp.Wins)
	}
	want := decimal.NewFromInt(990)
	if !resp.Balance.Equal(want) {
		t.Errorf("balance %s, want %s", resp.Balance, want)
	}
	bal, _ := c.GetBalance(ctx)
	if !bal.Equal(want) {
		t.Errorf("GetBalance %s, want %s", bal, want)
	}
}

// bet超余额必须失败，且不动余额
func TestRGSInsufficientBalanceNoMutation(t *testing.T) {
	c := newTestRGS(t, 5)
	ctx := context.Background()
	_, err := c.Spin(ctx, &SpinRequest{Bet: decimal.NewFromInt(10)})
	if !errors.Is(err, InsufficientBalance) {
		t.Fatalf("got %v", err)
	}
	bal, _ := c.GetBalance(ctx)
	if !bal.Equal(decimal.NewFromInt(5)) {
		t.Errorf("balance mutated to %s on failed spin", bal)
	}
}

func TestRGSBetBounds(t *testing.T) {
	c := newTestRGS(t, 1000)
	ctx := context.Background()
	for _, bet := range []string{"0", "-1", "0.05", "1000"} {
		d, _ := decimal.NewFromString(bet)
		if _, err := c.Spin(ctx, &SpinRequest{Bet: d}); err == nil {
			t.Errorf("bet %s accepted", bet)
		}
	}
	bal, _ := c.GetBalance(ctx)
	if !bal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance mutated to %s by rejected bets", bal)
	}
}

// 余额守恒：balance_after = balance_before - bet + totalWin，逐次精确成立
func TestRGSBalanceConservation(t *testing.T) {
	c := newTestRGS(t, 100000)
	ctx := context.Background()
	bet := decimal.NewFromInt(2)
	for i := 0; i < 500; i++ {
		before, _ := c.GetBalance(ctx)
		if before.LessThan(bet) {
			break
		}
		scene, _ := c.scenes.Load(ctx, "tester")
		isFree := scene.FreeSpinsRemaining > 0
		resp, err := c.Spin(ctx, &SpinRequest{Bet: bet})
		if err != nil {
			t.Fatal(err)
		}
		want := before.Add(resp.TotalWin)
		if !isFree {
			want = want.Sub(bet)
		}
		if !resp.Balance.Equal(want) {
			t.Fatalf("round %d: balance %s, want %s (before=%s win=%s free=%v)",
				i, resp.Balance, want, before, resp.TotalWin, isFree)
		}
	}
}

// scatter>=3 触发免费游戏，免费局不扣注
func TestRGSFreeSpinTrigger(t *testing.T) {
	c := newTestRGS(t, 1000)
	ctx := context.Background()
	c.SetForcedGrid([][]int64{
		{_scatter, _low9, _low10},
		{_lowJ, _scatter, _lowQ},
		{_low10, _lowJ, _scatter},
		{_lowQ, _low9, _low10},
		{_low9, _lowQ, _lowJ},
	})
	resp, err := c.Spin(ctx, &SpinRequest{Bet: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Features) != 1 || resp.Features[0] != _freeSpinFeatureID {
		t.Fatalf("features %v", resp.Features)
	}
	if resp.FreeSpins != 7 {
		t.Errorf("freeSpins %d, want 7", resp.FreeSpins)
	}

	before, _ := c.GetBalance(ctx)
	c.SetForcedGrid([][]int64{
		{_low9, _midK, _highGem},
		{_low10, _midA, _highBell},
		{_lowJ, _low9, _highStar},
		{_lowQ, _low10, _midK},
		{_low9, _lowJ, _midA},
	})
	free, err := c.Spin(ctx, &SpinRequest{Bet: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatal(err)
	}
	// 免费局：不扣注，只加彩金
	want := before.Add(free.TotalWin)
	if !free.Balance.Equal(want) {
		t.Errorf("free round balance %s, want %s", free.Balance, want)
	}
	if free.FreeSpins != 6 {
		t.Errorf("free rounds remaining %d, want 6", free.FreeSpins)
	}
	if free.Multiplier != DefaultConfig().FreeMulti {
		t.Errorf("free round multiplier %d", free.Multiplier)
	}
}

func TestRGSUpdateBalance(t *testing.T) {
	c := newTestRGS(t, 100)
	ctx := context.Background()
	next, err := c.UpdateBalance(ctx, decimal.NewFromInt(-30))
	if err != nil || !next.Equal(decimal.NewFromInt(70)) {
		t.Errorf("UpdateBalance: %s, %v", next, err)
	}
	// 余额不允许为负
	if _, err = c.UpdateBalance(ctx, decimal.NewFromInt(-1000)); !errors.Is(err, InsufficientBalance) {
		t.Errorf("negative balance allowed: %v", err)
	}
	bal, _ := c.GetBalance(ctx)
	if !bal.Equal(decimal.NewFromInt(70)) {
		t.Errorf("balance %s after rejected update", bal)
	}
}

func TestRGSResponseImmutableGrid(t *testing.T) {
	c := newTestRGS(t, 1000)
	forced := [][]int64{
		{_low9, _midK, _highGem},
		{_low10, _midA, _highBell},
		{_lowJ, _low9, _highStar},
		{_lowQ, _low10, _midK},
		{_low9, _lowJ, _midA},
	}
	c.SetForcedGrid(forced)
	resp, err := c.Spin(context.Background(), &SpinRequest{Bet: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	// 强制盘面消费一次后清空
	resp2, err := c.Spin(context.Background(), &SpinRequest{Bet: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Symbols) != 5 || len(resp2.Symbols) != 5 {
		t.Fatal("grid dimensions")
	}
}
