package slot

import (
	"github.com/shopspring/decimal"
)

// Evaluator 纯函数中奖判定：盘面+赔付线 -> 中奖列表。
// wild 可替代任意符号参与连线；scatter 不走线，全盘计数独立结算。
type Evaluator struct {
	cfg   *GameConfig
	lines []Payline
}

func NewEvaluator(cfg *GameConfig, reels, rows, lineCount int) *Evaluator {
	return &Evaluator{
		cfg:   cfg,
		lines: GeneratePaylines(reels, rows, lineCount),
	}
}

// Lines 当前使用的赔付线
func (e *Evaluator) Lines() []Payline {
	return e.lines
}

// Evaluate 判定盘面。lineCount限制参与判定的线数（<=0表示全部）。
// 返回中奖列表与合计金额。
func (e *Evaluator) Evaluate(grid [][]int64, bet decimal.Decimal, lineCount int) ([]WinResult, decimal.Decimal) {
	var wins []WinResult
	total := decimal.Zero

	n := len(e.lines)
	if lineCount > 0 && lineCount < n {
		n = lineCount
	}
	for idx := 0; idx < n; idx++ {
		if w, ok := e.evalLine(grid, e.lines[idx], idx, bet); ok {
			wins = append(wins, w)
			total = total.Add(w.Amount)
		}
	}
	if w, ok := e.evalScatters(grid, bet); ok {
		wins = append(wins, w)
		total = total.Add(w.Amount)
	}
	return wins, total
}

// evalLine 单线判定：从0号滚轴起数最长的同符号（或wild）连续串
func (e *Evaluator) evalLine(grid [][]int64, line Payline, idx int, bet decimal.Decimal) (WinResult, bool) {
	if len(line) > len(grid) {
		return WinResult{}, false
	}

	// 线上符号序列
	seq := make([]int64, len(line))
	for reel, row := range line {
		if row < 0 || row >= len(grid[reel]) {
			return WinResult{}, false
		}
		seq[reel] = grid[reel][row]
	}

	// 基准符号：首个非wild。全wild串以wild自身结算。
	base := int64(-1)
	for _, s := range seq {
		if !e.isWild(s) {
			base = s
			break
		}
	}
	if base == -1 {
		base = seq[0]
	}
	if e.isScatter(base) {
		return WinResult{}, false // scatter不参与连线
	}

	count := 0
	for _, s := range seq {
		if s == base || e.isWild(s) {
			count++
			continue
		}
		break
	}
	if count < _minMatchCount {
		return WinResult{}, false
	}

	sym := e.cfg.Symbol(base)
	if sym == nil || count > len(sym.Pays) {
		return WinResult{}, false
	}
	multi := sym.Pays[count-1]
	if multi <= 0 {
		return WinResult{}, false
	}

	positions := make([]GridPos, count)
	for i := 0; i < count; i++ {
		positions[i] = GridPos{Reel: i, Row: line[i]}
	}
	return WinResult{
		Type:       "line",
		Symbol:     base,
		Line:       idx,
		Positions:  positions,
		Count:      count,
		Multiplier: multi,
		Amount:     bet.Mul(decimal.NewFromInt(multi)),
	}, true
}

// evalScatters 全盘scatter计数，按固定倍率表结算
func (e *Evaluator) evalScatters(grid [][]int64, bet decimal.Decimal) (WinResult, bool) {
	var positions []GridPos
	var scatterID int64 = -1
	for reel := range grid {
		for row, s := range grid[reel] {
			if e.isScatter(s) {
				scatterID = s
				positions = append(positions, GridPos{Reel: reel, Row: row})
			}
		}
	}
	count := len(positions)
	if count < _minMatchCount {
		return WinResult{}, false
	}
	pays := e.cfg.ScatterPays
	i := count - 1
	if i >= len(pays) {
		i = len(pays) - 1
	}
	if i < 0 || pays[i] <= 0 {
		return WinResult{}, false
	}
	return WinResult{
		Type:       "scatter",
		Symbol:     scatterID,
		Line:       -1,
		Positions:  positions,
		Count:      count,
		Multiplier: pays[i],
		Amount:     bet.Mul(decimal.NewFromInt(pays[i])),
	}, true
}

// ScatterCount 盘面scatter个数
func (e *Evaluator) ScatterCount(grid [][]int64) int {
	n := 0
	for reel := range grid {
		for _, s := range grid[reel] {
			if e.isScatter(s) {
				n++
			}
		}
	}
	return n
}

// FreeSpinsFor scatter个数对应的免费次数
func (e *Evaluator) FreeSpinsFor(scatterCount int) int64 {
	if scatterCount <= 0 {
		return 0
	}
	i := scatterCount - 1
	if i >= len(e.cfg.FreeSpins) {
		i = len(e.cfg.FreeSpins) - 1
	}
	if i < 0 {
		return 0
	}
	return e.cfg.FreeSpins[i]
}

func (e *Evaluator) isWild(id int64) bool {
	s := e.cfg.Symbol(id)
	return s != nil && s.Category == CategoryWild
}

func (e *Evaluator) isScatter(id int64) bool {
	s := e.cfg.Symbol(id)
	return s != nil && s.Category == CategoryScatter
}
