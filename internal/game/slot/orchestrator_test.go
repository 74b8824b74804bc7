package slot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// orchRig 手动时钟驱动的编排层测试装配。所有定时任务由测试逐帧Flush，
// 不依赖真实时间。
type orchRig struct {
	cfg     *GameConfig
	clock   *ManualClock
	surface *RecordingSurface
	bus     *EventBus
	state   *StateManager
	rgs     *RGSClient
	engine  *ReelEngine
	sched   Scheduler
	orch    *Orchestrator
}

func newOrchRig(t *testing.T, rgsOpts ...RGSOption) *orchRig {
	t.Helper()
	cfg := DefaultConfig()
	clock := NewManualClock(time.Unix(1000, 0))
	surface := NewRecordingSurface()
	bus := NewEventBus(nil)
	state := NewStateManager(cfg.Reels, cfg.Rows, nil)
	opts := append([]RGSOption{WithLatency(0)}, rgsOpts...)
	rgs := NewRGSClient(cfg, nil, opts...)
	if _, err := rgs.Connect(context.Background(), "tester", "", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	engine := NewReelEngine(cfg, clock, surface, nil)
	engine.SetupGrid(cfg.Reels, cfg.Rows, nil)
	sched := NewScheduler(clock, nil)
	orch := NewOrchestrator(cfg, state, bus, rgs, engine, sched, clock, nil)
	if err := state.Transition(StatusReady); err != nil {
		t.Fatalf("to ready: %v", err)
	}
	t.Cleanup(func() {
		sched.Stop()
		rgs.Close()
	})
	return &orchRig{cfg: cfg, clock: clock, surface: surface, bus: bus,
		state: state, rgs: rgs, engine: engine, sched: sched, orch: orch}
}

// frame 推进一帧并执行到期任务
func (r *orchRig) frame() {
	r.clock.Advance(16 * time.Millisecond)
	r.sched.Flush()
}

// drive 逐帧推进直到结果通道产出，超出帧数上限判失败
func (r *orchRig) drive(t *testing.T, done <-chan SpinOutcome, maxFrames int) SpinOutcome {
	t.Helper()
	for i := 0; i < maxFrames; i++ {
		select {
		case out := <-done:
			return out
		default:
		}
		r.frame()
	}
	t.Fatalf("spin not complete after %d frames, status=%s", maxFrames, r.state.Status())
	return SpinOutcome{}
}

// noWinGrid 每列符号互不相连且无wild/scatter，保证零派彩
func noWinGrid() [][]int64 {
	return [][]int64{
		{_low9, _midK, _highGem},
		{_low10, _midA, _highBell},
		{_lowJ, _low9, _highStar},
		{_lowQ, _low10, _midK},
		{_low9, _lowJ, _midA},
	}
}

// scatterTriggerGrid 恰好3个scatter，触发免费游戏且无线路中奖
func scatterTriggerGrid() [][]int64 {
	return [][]int64{
		{_scatter, _low9, _low10},
		{_lowJ, _scatter, _lowQ},
		{_low10, _lowJ, _scatter},
		{_lowQ, _low10, _midK},
		{_low9, _lowJ, _midA},
	}
}

func TestSpinLifecycleCompletes(t *testing.T) {
	r := newOrchRig(t)
	r.rgs.SetForcedGrid(noWinGrid())

	var mu sync.Mutex
	var order []string
	for _, ev := range []string{EventSpinStart, EventReelStart, EventReelStop, EventWinEvaluate, EventSpinComplete} {
		name := ev
		r.bus.On(name, func(any) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
	}

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	out := r.drive(t, ch, 400)

	if out.Err != nil {
		t.Fatalf("spin outcome err: %v", out.Err)
	}
	if !out.Resp.TotalWin.IsZero() {
		t.Errorf("forced no-win grid paid %s", out.Resp.TotalWin)
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status after spin = %s, want ready", got)
	}
	st := r.state.GetState()
	if !st.Balance.Equal(decimal.NewFromInt(990)) {
		t.Errorf("balance = %s, want 990", st.Balance)
	}
	if st.CurrentSpinID != "" {
		t.Errorf("spin id not cleared: %q", st.CurrentSpinID)
	}
	for col := range noWinGrid() {
		for row, want := range noWinGrid()[col] {
			if st.CurrentSymbols[col][row] != want {
				t.Fatalf("symbols[%d][%d] = %d, want %d", col, row, st.CurrentSymbols[col][row], want)
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	idx := func(name string) int {
		for i, n := range order {
			if n == name {
				return i
			}
		}
		return -1
	}
	if !(idx(EventSpinStart) < idx(EventReelStart) &&
		idx(EventReelStart) < idx(EventReelStop) &&
		idx(EventReelStop) < idx(EventWinEvaluate) &&
		idx(EventWinEvaluate) < idx(EventSpinComplete)) {
		t.Errorf("event order wrong: %v", order)
	}
}

func TestConcurrentSpinRejected(t *testing.T) {
	r := newOrchRig(t)
	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("first spin: %v", err)
	}
	if _, _, err = r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10); !errors.Is(err, SpinInProgress) {
		t.Errorf("second spin err = %v, want SpinInProgress", err)
	}
	r.drive(t, ch, 400)
}

func TestBetOutsideRangeRejected(t *testing.T) {
	r := newOrchRig(t)
	_, _, err := r.orch.StartSpin(context.Background(), decimal.NewFromFloat(0.01), 10)
	if !errors.Is(err, InvalidRequestParams) {
		t.Errorf("err = %v, want InvalidRequestParams", err)
	}
	if r.orch.IsSpinning() {
		t.Error("rejected spin left orchestrator spinning")
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status = %s after rejected spin, want ready", got)
	}
}

// 急停单滚轴：只取消该滚轴的停轴任务，其余滚轴按原计划错峰停
func TestSlamStopReelScopedToOneReel(t *testing.T) {
	r := newOrchRig(t)
	r.rgs.SetForcedGrid(noWinGrid())

	var mu sync.Mutex
	var stopOrder []int
	r.bus.On(EventReelStop, func(payload any) {
		m := payload.(map[string]any)
		mu.Lock()
		stopOrder = append(stopOrder, m["reel"].(int))
		mu.Unlock()
	})

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}

	// 推进到停轴排程建立（最短旋转时长已过）
	for i := 0; i < 400 && r.state.Status() != StatusStopping; i++ {
		r.frame()
	}
	if r.state.Status() != StatusStopping {
		t.Fatal("never reached stopping")
	}

	// 急停最后一列：应先于第4列（错峰排程里它比第5列早停）定格
	if err = r.orch.SlamStopReel(4); err != nil {
		t.Fatalf("slam reel 4: %v", err)
	}
	status := r.orch.GetSlamStopStatus()
	if !status[4].Slammed {
		t.Error("reel 4 not marked slammed")
	}
	if status[3].Slammed {
		t.Error("slam leaked to reel 3")
	}

	out := r.drive(t, ch, 400)
	if out.Err != nil {
		t.Fatalf("spin failed: %v", out.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stopOrder) != 5 {
		t.Fatalf("stop events = %d, want 5 (%v)", len(stopOrder), stopOrder)
	}
	pos := map[int]int{}
	for i, reel := range stopOrder {
		pos[reel] = i
	}
	if pos[4] > pos[3] {
		t.Errorf("slammed reel 4 settled after reel 3: %v", stopOrder)
	}
}

// 提前结束：跳过最短旋转时长，立即定格全部滚轴
func TestStopSpinSkipsMinSpinWait(t *testing.T) {
	r := newOrchRig(t)
	r.rgs.SetForcedGrid(noWinGrid())

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	if err = r.orch.StopSpin(); err != nil {
		t.Fatalf("stop spin: %v", err)
	}

	// 远少于最短旋转时长(800ms/50帧)即应完成
	out := r.drive(t, ch, 10)
	if out.Err != nil {
		t.Fatalf("spin failed: %v", out.Err)
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status = %s, want ready", got)
	}
}

func TestStopSpinWithoutActiveSpin(t *testing.T) {
	r := newOrchRig(t)
	if err := r.orch.StopSpin(); !errors.Is(err, SpinInProgress) {
		t.Errorf("err = %v, want SpinInProgress", err)
	}
	if err := r.orch.SlamStopReel(0); !errors.Is(err, SpinInProgress) {
		t.Errorf("slam err = %v, want SpinInProgress", err)
	}
}

// 结果未到时的急停请求被记录，结果到达后立即落位
func TestSlamBeforeResultDeferred(t *testing.T) {
	r := newOrchRig(t, WithLatency(20*time.Millisecond))
	r.rgs.SetForcedGrid(noWinGrid())

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	if err = r.orch.SlamStopReel(2); err != nil {
		t.Fatalf("slam reel 2: %v", err)
	}
	if status := r.orch.GetSlamStopStatus(); !status[2].Slammed {
		t.Error("deferred slam not reflected in status")
	}
	if err = r.orch.StopSpin(); err != nil {
		t.Fatalf("stop spin: %v", err)
	}

	// 结果经真实延迟回调到达，到达后Flush执行落位
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case out := <-ch:
			if out.Err != nil {
				t.Fatalf("spin failed: %v", out.Err)
			}
			if got := r.state.Status(); got != StatusReady {
				t.Errorf("status = %s, want ready", got)
			}
			return
		default:
		}
		r.frame()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("spin never completed")
}

type failingSceneStore struct{}

func (failingSceneStore) Load(context.Context, string) (*SceneData, error) {
	return nil, fmt.Errorf("scene backend down")
}
func (failingSceneStore) Save(context.Context, string, *SceneData) error { return nil }
func (failingSceneStore) Delete(context.Context, string) error           { return nil }

// 结算失败：转error态、清空全部定时任务、结果通道收到错误；Reset恢复ready
func TestSpinFailureClearsTimersAndRecovers(t *testing.T) {
	r := newOrchRig(t, WithSceneStore(failingSceneStore{}))

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	out := <-ch
	if out.Err == nil {
		t.Fatal("expected spin failure")
	}
	if got := r.state.Status(); got != StatusError {
		t.Errorf("status = %s, want error", got)
	}
	if n := r.sched.Pending(); n != 0 {
		t.Errorf("pending tasks = %d after failure, want 0", n)
	}
	if r.orch.IsSpinning() {
		t.Error("orchestrator still spinning after failure")
	}

	if err = r.orch.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status after reset = %s, want ready", got)
	}
}

// 中奖路径：经evaluating/showing_win回到ready，中奖位置加发光滤镜
func TestWinPathShowsAndHighlights(t *testing.T) {
	r := newOrchRig(t)
	// 顶行三连GEM，其余互不相连
	r.rgs.SetForcedGrid([][]int64{
		{_highGem, _midK, _low9},
		{_highGem, _midA, _low10},
		{_highGem, _low9, _lowJ},
		{_midK, _low10, _lowQ},
		{_midA, _lowJ, _low9},
	})

	winShown := false
	r.bus.On(EventWinShow, func(any) { winShown = true })

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	out := r.drive(t, ch, 400)
	if out.Err != nil {
		t.Fatalf("spin failed: %v", out.Err)
	}
	if !out.Resp.TotalWin.IsPositive() {
		t.Fatalf("expected positive win, got %s", out.Resp.TotalWin)
	}
	if !winShown {
		t.Error("win event not emitted")
	}
	glow := 0
	for _, c := range r.surface.Commands() {
		if c.Op == "filter" && c.Name == "glow" {
			glow++
		}
	}
	if glow < 3 {
		t.Errorf("glow filters = %d, want >= 3", glow)
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status = %s, want ready", got)
	}
	if !r.state.GetState().LastWin.Equal(out.Resp.TotalWin) {
		t.Errorf("last win = %s, want %s", r.state.GetState().LastWin, out.Resp.TotalWin)
	}
}

func TestUpdateConfigApplied(t *testing.T) {
	r := newOrchRig(t)
	anim := r.cfg.Animation
	anim.EasingName = "cubicOut"
	anim.StopStaggerMs = 100
	lines := 5
	mask := false
	r.orch.UpdateConfig(SettingsPatch{Animation: &anim, PaylineCount: &lines, MaskEnabled: &mask})

	if r.cfg.Animation.StopStaggerMs != 100 {
		t.Errorf("stop stagger = %d, want 100", r.cfg.Animation.StopStaggerMs)
	}
	if r.cfg.PaylineCount != 5 {
		t.Errorf("payline count = %d, want 5", r.cfg.PaylineCount)
	}
	unmask := 0
	for _, c := range r.surface.Commands() {
		if c.Op == "unmask" {
			unmask++
		}
	}
	if unmask < r.cfg.Reels {
		t.Errorf("unmask ops = %d, want >= %d", unmask, r.cfg.Reels)
	}
}

// spin进行中并发热更新动画参数：滚轴推进读引擎私有副本，互不共享写
func TestUpdateConfigDuringActiveSpin(t *testing.T) {
	r := newOrchRig(t)
	r.rgs.SetForcedGrid(noWinGrid())
	anim := r.cfg.Animation
	anim.SpinSpeed = 2400

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a := anim
			r.orch.UpdateConfig(SettingsPatch{Animation: &a})
		}
	}()

	out := r.drive(t, ch, 400)
	wg.Wait()
	if out.Err != nil {
		t.Fatalf("spin failed: %v", out.Err)
	}
	if got := r.engine.anim.SpinSpeed; got != 2400 {
		t.Errorf("engine spin speed = %v, want 2400", got)
	}
	if got := r.cfg.Animation.SpinSpeed; got != 2400 {
		t.Errorf("cfg spin speed = %v, want 2400", got)
	}
}

// Reset终止进行中的spin并送出错误
// 免费游戏进行中，feature条目的剩余次数每局与FreeSpinsRemaining同步递减
func TestFreeSpinFeatureRemainingSynced(t *testing.T) {
	r := newOrchRig(t)
	r.rgs.SetForcedGrid(scatterTriggerGrid())

	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	out := r.drive(t, ch, 400)
	if out.Err != nil {
		t.Fatalf("trigger spin: %v", out.Err)
	}
	st := r.state.GetState()
	want := r.cfg.FreeSpins[2]
	if st.FreeSpinsRemaining != want {
		t.Fatalf("free spins remaining = %d, want %d", st.FreeSpinsRemaining, want)
	}
	if len(st.ActiveFeatures) != 1 || st.ActiveFeatures[0].Remaining != want {
		t.Fatalf("active features = %+v, want %s remaining %d", st.ActiveFeatures, _freeSpinFeatureID, want)
	}

	// 两局无retrigger的免费局：剩余次数逐局递减，feature条目跟着走
	for want--; want >= r.cfg.FreeSpins[2]-2; want-- {
		r.rgs.SetForcedGrid(noWinGrid())
		_, ch, err = r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
		if err != nil {
			t.Fatalf("free spin: %v", err)
		}
		out = r.drive(t, ch, 400)
		if out.Err != nil {
			t.Fatalf("free spin outcome: %v", out.Err)
		}
		st = r.state.GetState()
		if st.FreeSpinsRemaining != want {
			t.Fatalf("free spins remaining = %d, want %d", st.FreeSpinsRemaining, want)
		}
		if len(st.ActiveFeatures) != 1 {
			t.Fatalf("feature entry dropped mid-sequence: %+v", st.ActiveFeatures)
		}
		if got := st.ActiveFeatures[0].Remaining; got != want {
			t.Errorf("feature remaining = %d, want %d", got, want)
		}
	}
}

func TestResetAbortsActiveSpin(t *testing.T) {
	r := newOrchRig(t)
	_, ch, err := r.orch.StartSpin(context.Background(), decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("start spin: %v", err)
	}
	if err = r.orch.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	select {
	case out := <-ch:
		if out.Err == nil {
			t.Error("reset spin should deliver error outcome")
		}
	default:
		t.Error("reset did not deliver outcome")
	}
	if got := r.state.Status(); got != StatusReady {
		t.Errorf("status after reset = %s, want ready", got)
	}
	if r.orch.IsSpinning() {
		t.Error("still spinning after reset")
	}
}
