package slot

import (
	"testing"

	"github.com/shopspring/decimal"
)

// grid3x3 按行书写的3x3盘面转列优先
func grid3x3(rows [3][3]int64) [][]int64 {
	g := make([][]int64, 3)
	for reel := 0; reel < 3; reel++ {
		g[reel] = make([]int64, 3)
		for row := 0; row < 3; row++ {
			g[reel][row] = rows[row][reel]
		}
	}
	return g
}

// 场景：3x3、bet=1.00、顶行A A A -> 一条中奖，符号A，3连，金额=1.00*pays[A][3]
func TestEvaluateTopRowScenario(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	bet := decimal.NewFromInt(1)
	grid := grid3x3([3][3]int64{
		{_midA, _midA, _midA},
		{_low9, _low10, _lowJ},
		{_lowQ, _low9, _low10},
	})
	wins, total := ev.Evaluate(grid, bet, 10)
	if len(wins) != 1 {
		t.Fatalf("got %d wins, want 1: %+v", len(wins), wins)
	}
	w := wins[0]
	if w.Symbol != _midA || w.Count != 3 || w.Line != 0 {
		t.Errorf("win = %+v", w)
	}
	want := bet.Mul(decimal.NewFromInt(cfg.Symbol(_midA).Pays[2]))
	if !w.Amount.Equal(want) {
		t.Errorf("amount %s, want %s", w.Amount, want)
	}
	if !total.Equal(want) {
		t.Errorf("total %s, want %s", total, want)
	}
}

// wild 替代任意符号参与连线
func TestEvaluateWildSubstitution(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	bet := decimal.NewFromInt(2)
	grid := grid3x3([3][3]int64{
		{_highGem, _wild, _highGem},
		{_low9, _low10, _lowJ},
		{_lowQ, _low9, _low10},
	})
	wins, _ := ev.Evaluate(grid, bet, 10)
	if len(wins) != 1 {
		t.Fatalf("got %d wins: %+v", len(wins), wins)
	}
	if wins[0].Symbol != _highGem || wins[0].Count != 3 {
		t.Errorf("wild run = %+v", wins[0])
	}
}

// 开头为wild的连线：基准符号取首个非wild
func TestEvaluateLeadingWild(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	// 末位避开 _low10：主对角 {0,1,2} 经wild替代不得凑成第二条线
	grid := grid3x3([3][3]int64{
		{_wild, _highBell, _highBell},
		{_low9, _low10, _lowJ},
		{_lowQ, _low9, _lowJ},
	})
	wins, _ := ev.Evaluate(grid, decimal.NewFromInt(1), 10)
	if len(wins) != 1 || wins[0].Symbol != _highBell || wins[0].Count != 3 {
		t.Errorf("leading wild run = %+v", wins)
	}
}

// 连线中断：2连不计奖
func TestEvaluateRunTooShort(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	grid := grid3x3([3][3]int64{
		{_midA, _midA, _low9},
		{_low10, _lowJ, _lowQ},
		{_lowJ, _lowQ, _low10},
	})
	wins, total := ev.Evaluate(grid, decimal.NewFromInt(1), 10)
	if len(wins) != 0 || !total.IsZero() {
		t.Errorf("2-run paid: %+v total=%s", wins, total)
	}
}

// scatter 全盘计数，独立于赔付线
func TestEvaluateScatterAnywhere(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	bet := decimal.NewFromInt(5)
	grid := grid3x3([3][3]int64{
		{_scatter, _low9, _low10},
		{_lowJ, _scatter, _lowQ},
		{_low10, _lowJ, _scatter},
	})
	wins, total := ev.Evaluate(grid, bet, 10)
	var scat *WinResult
	for i := range wins {
		if wins[i].Type == "scatter" {
			scat = &wins[i]
		}
	}
	if scat == nil {
		t.Fatalf("no scatter win in %+v", wins)
	}
	if scat.Count != 3 || scat.Line != -1 {
		t.Errorf("scatter win = %+v", scat)
	}
	want := bet.Mul(decimal.NewFromInt(cfg.ScatterPays[2]))
	if !scat.Amount.Equal(want) {
		t.Errorf("scatter amount %s, want %s", scat.Amount, want)
	}
	if total.LessThan(want) {
		t.Errorf("total %s below scatter amount %s", total, want)
	}
}

func TestFreeSpinsForScatterCount(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 5, 3, 10)
	cases := []struct {
		scatters int
		want     int64
	}{
		{0, 0}, {1, 0}, {2, 0}, {3, 7}, {4, 10}, {5, 15}, {6, 15},
	}
	for _, tc := range cases {
		if got := ev.FreeSpinsFor(tc.scatters); got != tc.want {
			t.Errorf("FreeSpinsFor(%d) = %d, want %d", tc.scatters, got, tc.want)
		}
	}
}

// lineCount 限制只判定前N条线
func TestEvaluateLineCountLimit(t *testing.T) {
	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, 3, 3, 10)
	// 中行三连（线1），顶行无奖
	grid := grid3x3([3][3]int64{
		{_low9, _low10, _lowJ},
		{_midK, _midK, _midK},
		{_lowQ, _low9, _low10},
	})
	wins, _ := ev.Evaluate(grid, decimal.NewFromInt(1), 1)
	if len(wins) != 0 {
		t.Errorf("line 1 evaluated with lineCount=1: %+v", wins)
	}
	wins, _ = ev.Evaluate(grid, decimal.NewFromInt(1), 2)
	if len(wins) != 1 || wins[0].Line != 1 {
		t.Errorf("middle row not found with lineCount=2: %+v", wins)
	}
}
