package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"sync"
	"time"

	"spinner/internal/game/slot"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
)

var (
	rounds  = flag.Int("rounds", 1000000, "total base rounds to simulate")
	bet     = flag.Int64("bet", 10, "bet per round")
	workers = flag.Int("c", 8, "concurrent simulation workers")
)

// 单worker统计，跑完后合并
type stats struct {
	baseRounds int64
	freeRounds int64
	baseHits   int64
	freeTrig   int64
	baseWin    decimal.Decimal
	freeWin    decimal.Decimal
	totalBet   decimal.Decimal
	scatters   [6]int64
}

func (s *stats) merge(o *stats) {
	s.baseRounds += o.baseRounds
	s.freeRounds += o.freeRounds
	s.baseHits += o.baseHits
	s.freeTrig += o.freeTrig
	s.baseWin = s.baseWin.Add(o.baseWin)
	s.freeWin = s.freeWin.Add(o.freeWin)
	s.totalBet = s.totalBet.Add(o.totalBet)
	for i := range o.scatters {
		s.scatters[i] += o.scatters[i]
	}
}

func main() {
	flag.Parse()

	start := time.Now()
	betAmt := decimal.NewFromInt(*bet)

	pool, err := ants.NewPool(*workers)
	if err != nil {
		panic(err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total stats
	)
	per := *rounds / *workers
	for w := 0; w < *workers; w++ {
		w := w
		n := per
		if w == *workers-1 {
			n = *rounds - per*(*workers-1)
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s := simulate(w, n, betAmt)
			mu.Lock()
			total.merge(s)
			mu.Unlock()
		}); err != nil {
			panic(err)
		}
	}
	wg.Wait()

	report(&total, time.Since(start))
}

// simulate 在独立会话上跑n个基础局（含其触发的全部免费局）
func simulate(worker, n int, bet decimal.Decimal) *stats {
	ctx := context.Background()
	cfg := slot.DefaultConfig()
	c := slot.NewRGSClient(cfg, nil, slot.WithLatency(0))
	defer c.Close()

	if _, err := c.Connect(ctx, fmt.Sprintf("rtp-%d", worker), "", decimal.NewFromInt(1_000_000_000)); err != nil {
		panic(err)
	}

	s := &stats{}
	freeLeft := int64(0)
	for done := 0; done < n; {
		isFree := freeLeft > 0
		resp, err := c.Spin(ctx, &slot.SpinRequest{Bet: bet})
		if err != nil {
			panic(fmt.Sprintf("worker %d spin: %v", worker, err))
		}
		if isFree {
			s.freeRounds++
			s.freeWin = s.freeWin.Add(resp.TotalWin)
		} else {
			s.baseRounds++
			s.totalBet = s.totalBet.Add(bet)
			s.baseWin = s.baseWin.Add(resp.TotalWin)
			if resp.TotalWin.IsPositive() {
				s.baseHits++
			}
			if resp.FreeSpins > 0 && freeLeft == 0 {
				s.freeTrig++
			}
			done++
		}
		sc := scatterCount(resp)
		if sc < len(s.scatters) {
			s.scatters[sc]++
		}
		freeLeft = resp.FreeSpins
	}
	return s
}

func scatterCount(resp *slot.SpinResponse) int {
	for _, w := range resp.Wins {
		if w.Type == "scatter" {
			return w.Count
		}
	}
	return 0
}

func report(s *stats, elapsed time.Duration) {
	var b strings.Builder
	b.WriteString("========== RTP 模拟报告 ==========\n")
	b.WriteString(fmt.Sprintf("基础局数: %d  免费局数: %d\n", s.baseRounds, s.freeRounds))
	b.WriteString(fmt.Sprintf("中奖率:   %s  触发率: %s\n",
		pct(s.baseHits, s.baseRounds), pct(s.freeTrig, s.baseRounds)))
	if s.totalBet.IsPositive() {
		baseRTP := s.baseWin.Div(s.totalBet)
		freeRTP := s.freeWin.Div(s.totalBet)
		b.WriteString(fmt.Sprintf("基础RTP:  %s%%\n", baseRTP.Mul(decimal.NewFromInt(100)).StringFixed(3)))
		b.WriteString(fmt.Sprintf("免费RTP:  %s%%\n", freeRTP.Mul(decimal.NewFromInt(100)).StringFixed(3)))
		b.WriteString(fmt.Sprintf("总RTP:    %s%%\n", baseRTP.Add(freeRTP).Mul(decimal.NewFromInt(100)).StringFixed(3)))
	}
	b.WriteString("scatter分布: ")
	for i, c := range s.scatters {
		b.WriteString(fmt.Sprintf("%d:%d ", i, c))
	}
	b.WriteString(fmt.Sprintf("\n耗时: %v\n", elapsed))
	b.WriteString("==================================\n")
	fmt.Print(b.String())
}

func pct(part, whole int64) string {
	if whole == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(whole)*100)
}
