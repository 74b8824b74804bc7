package slot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SpinOutcome spin终态：响应或错误，二者其一
type SpinOutcome struct {
	Resp *SpinResponse
	Err  error
}

// SettingsPatch 运行期配置调整。nil字段不变。显式传入，不走环境全局。
type SettingsPatch struct {
	Animation    *AnimationConf
	PaylineCount *int
	MaskEnabled  *bool
}

// Orchestrator 编排一次spin的完整生命周期：
// 校验下注 -> 进入spinning -> 并发起动滚轴动画与RGS请求 ->
// 结果与最短旋转时长都满足后错峰停轴 -> 全部定格后结算 -> 回到ready。
// 每个待停滚轴在stopTasks中持有一个可取消的调度句柄，急停即取消该句柄
// 并立即走同一套落位流程，其余滚轴的句柄不受影响。
type Orchestrator struct {
	mu     sync.Mutex
	cfg    *GameConfig
	state  *StateManager
	bus    *EventBus
	rgs    *RGSClient
	engine *ReelEngine
	sched  Scheduler
	clock  Clock
	log    *zap.Logger

	spinning       bool
	spinID         string
	bet            decimal.Decimal
	lines          int
	resp           *SpinResponse
	respErr        error
	minElapsed     bool
	stopRequested  bool
	stopsScheduled bool
	stopTasks      map[int]int64 // 滚轴索引 -> 停轴任务句柄
	startTasks     map[int]int64 // 滚轴索引 -> 起动任务句柄
	slammed        map[int]bool
	slamPending    map[int]bool // 结果未到时的急停请求，结果到达后立即落位
	settled        map[int]bool
	tickTask       int64
	minTask        int64
	doneCh         chan SpinOutcome
}

func NewOrchestrator(cfg *GameConfig, state *StateManager, bus *EventBus, rgs *RGSClient,
	engine *ReelEngine, sched Scheduler, clock Clock, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Orchestrator{
		cfg:    cfg,
		state:  state,
		bus:    bus,
		rgs:    rgs,
		engine: engine,
		sched:  sched,
		clock:  clock,
		log:    logger,
	}
}

// StartSpin 发起一次spin。返回spin标识与结果通道。
// 下注越界、余额不足、已有spin进行中时直接失败，不改动任何状态。
func (o *Orchestrator) StartSpin(ctx context.Context, bet decimal.Decimal, lines int) (string, <-chan SpinOutcome, error) {
	o.mu.Lock()
	if o.spinning {
		o.mu.Unlock()
		return "", nil, SpinInProgress
	}

	bc, err := o.rgs.GetBetConfiguration(ctx)
	if err != nil {
		o.mu.Unlock()
		return "", nil, err
	}
	if bet.LessThan(bc.MinBet) || bet.GreaterThan(bc.MaxBet) {
		o.mu.Unlock()
		return "", nil, fmt.Errorf("%w: bet %s outside [%s, %s]",
			InvalidRequestParams, bet, bc.MinBet, bc.MaxBet)
	}
	if lines <= 0 {
		lines = bc.MaxLines
	}

	st := o.state.GetState()
	isFree := st.FreeSpinsRemaining > 0
	balance, err := o.rgs.GetBalance(ctx)
	if err != nil {
		o.mu.Unlock()
		return "", nil, err
	}
	if !isFree && balance.LessThan(bet) {
		o.mu.Unlock()
		return "", nil, fmt.Errorf("%w: balance %s below bet %s", InsufficientBalance, balance, bet)
	}

	// 下注落账与状态迁移同一临界区提交：迁移失败不留任何状态残余
	if err = o.state.Transition(StatusSpinning, StatePatch{CurrentBet: &bet, Balance: &balance}); err != nil {
		o.mu.Unlock()
		return "", nil, err
	}

	spinID := uuid.NewString()
	o.spinning = true
	o.spinID = spinID
	o.bet = bet
	o.lines = lines
	o.resp = nil
	o.respErr = nil
	o.minElapsed = false
	o.stopRequested = false
	o.stopsScheduled = false
	o.stopTasks = make(map[int]int64)
	o.startTasks = make(map[int]int64)
	o.slammed = make(map[int]bool)
	o.slamPending = make(map[int]bool)
	o.settled = make(map[int]bool)
	o.doneCh = make(chan SpinOutcome, 1)
	done := o.doneCh

	o.state.SetState(StatePatch{CurrentSpinID: &spinID})

	reels := st.Reels
	anim := &o.cfg.Animation

	// 错峰起动各滚轴
	for i := 0; i < reels; i++ {
		reel := i
		tid := o.sched.Once(anim.startStagger()*time.Duration(i), func() {
			o.engine.StartReel(reel)
			o.bus.Emit(EventReelStart, map[string]any{"spinId": spinID, "reel": reel})
		})
		o.startTasks[reel] = tid
	}
	// 动画帧循环
	o.tickTask = o.sched.Forever(_defaultFrameInterval, func() {
		o.engine.Tick(o.clock.Now())
	})
	// 最短旋转时长：结果先到也要等够观感时间
	o.minTask = o.sched.Once(anim.minSpinDuration(), o.onMinElapsed)
	o.mu.Unlock()

	o.bus.Emit(EventSpinStart, map[string]any{
		"spinId": spinID,
		"bet":    bet.String(),
		"lines":  lines,
	})

	// RGS请求与动画并行。请求发出后不可取消，结果到达必被应用。
	req := &SpinRequest{Bet: bet, Lines: lines, Reels: st.Reels, Rows: st.Rows}
	o.rgs.SpinAsync(ctx, req, func(resp *SpinResponse, err error) {
		o.onResult(resp, err)
	})

	return spinID, done, nil
}

func (o *Orchestrator) onMinElapsed() {
	o.mu.Lock()
	if !o.spinning {
		o.mu.Unlock()
		return
	}
	o.minElapsed = true
	o.maybeScheduleStopsLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) onResult(resp *SpinResponse, err error) {
	o.mu.Lock()
	if !o.spinning {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failSpinLocked(fmt.Errorf("rgs spin: %w", err))
		o.mu.Unlock()
		return
	}
	o.resp = resp
	o.maybeScheduleStopsLocked()
	o.mu.Unlock()
}

// maybeScheduleStopsLocked 结果已到且最短时长已过（或玩家请求提前结束）
// 时，按升序滚轴索引错峰调度停轴，每个滚轴携带自己的最终符号列。
func (o *Orchestrator) maybeScheduleStopsLocked() {
	if o.stopsScheduled || o.resp == nil {
		return
	}
	if !o.minElapsed && !o.stopRequested {
		return
	}
	o.stopsScheduled = true

	if err := o.state.Transition(StatusStopping); err != nil {
		o.failSpinLocked(err)
		return
	}

	stagger := o.cfg.Animation.stopStagger()
	if o.stopRequested {
		stagger = 0
	}
	for i := range o.resp.Symbols {
		reel := i
		if o.slamPending[reel] || o.stopRequested {
			// 急停请求已在途：跳过调度立即落位（经调度器出锁执行）
			o.slammed[reel] = true
			if tid, ok := o.startTasks[reel]; ok {
				o.sched.Cancel(tid)
				delete(o.startTasks, reel)
			}
			target := o.resp.Symbols[reel]
			o.sched.Once(0, func() {
				o.engine.SlamReel(reel, target, o.onReelSettled)
			})
			continue
		}
		tid := o.sched.Once(stagger*time.Duration(i), func() {
			o.beginStop(reel)
		})
		o.stopTasks[reel] = tid
	}
}

func (o *Orchestrator) beginStop(reel int) {
	o.mu.Lock()
	if !o.spinning || o.resp == nil || o.slammed[reel] {
		o.mu.Unlock()
		return
	}
	delete(o.stopTasks, reel)
	target := o.resp.Symbols[reel]
	o.mu.Unlock()
	o.engine.StopReel(reel, target, o.onReelSettled)
}

// SlamStopReel 急停单个滚轴：取消其待触发的停轴任务并立即落位，
// 其余滚轴已排定的任务保持原样。
func (o *Orchestrator) SlamStopReel(reel int) error {
	o.mu.Lock()
	if !o.spinning {
		o.mu.Unlock()
		return SpinInProgress
	}
	if o.settled[reel] || o.slammed[reel] {
		o.mu.Unlock()
		return nil
	}
	if tid, ok := o.startTasks[reel]; ok {
		// 该滚轴还没起动：撤掉起动任务，落位时直接定格
		o.sched.Cancel(tid)
		delete(o.startTasks, reel)
	}
	if !o.stopsScheduled {
		// 结果未到：记下请求，结果到达后立即落位
		o.slamPending[reel] = true
		o.mu.Unlock()
		return nil
	}
	if tid, ok := o.stopTasks[reel]; ok {
		o.sched.Cancel(tid)
		delete(o.stopTasks, reel)
	}
	o.slammed[reel] = true
	target := o.resp.Symbols[reel]
	o.mu.Unlock()

	o.engine.SlamReel(reel, target, o.onReelSettled)
	return nil
}

// SlamStopAll 急停全部滚轴
func (o *Orchestrator) SlamStopAll() error {
	reels := o.state.GetState().Reels
	for i := 0; i < reels; i++ {
		if err := o.SlamStopReel(i); err != nil {
			return err
		}
	}
	return nil
}

// StopSpin 请求提前结束：跳过剩余最短时长，尽快停轴。
// 飞行中的RGS请求不取消，结果到达后照常应用。
func (o *Orchestrator) StopSpin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.spinning {
		return SpinInProgress
	}
	o.stopRequested = true
	if o.minTask != 0 {
		o.sched.Cancel(o.minTask)
		o.minTask = 0
	}
	o.maybeScheduleStopsLocked()
	return nil
}

// GetSlamStopStatus 各滚轴的急停/定格状态
func (o *Orchestrator) GetSlamStopStatus() []SlamStopStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	reels := o.state.GetState().Reels
	out := make([]SlamStopStatus, reels)
	for i := 0; i < reels; i++ {
		out[i] = SlamStopStatus{
			Reel:      i,
			IsStopped: o.settled[i] || o.slammed[i] || !o.spinning,
			Slammed:   o.slammed[i] || o.slamPending[i],
		}
	}
	return out
}

// onReelSettled 单滚轴定格回调（来自动画引擎）
func (o *Orchestrator) onReelSettled(reel int) {
	o.mu.Lock()
	if !o.spinning || o.settled[reel] {
		o.mu.Unlock()
		return
	}
	o.settled[reel] = true
	spinID := o.spinID
	var column []int64
	if o.resp != nil && reel < len(o.resp.Symbols) {
		column = o.resp.Symbols[reel]
	}
	allDone := o.resp != nil && len(o.settled) >= len(o.resp.Symbols)
	o.mu.Unlock()

	o.bus.Emit(EventReelStop, map[string]any{
		"spinId":  spinID,
		"reel":    reel,
		"symbols": column,
	})

	if allDone {
		o.completeSpin()
	}
}

// completeSpin 全部滚轴定格后的结算：应用结果、派发事件、回到ready
func (o *Orchestrator) completeSpin() {
	o.mu.Lock()
	if !o.spinning || o.resp == nil {
		o.mu.Unlock()
		return
	}
	resp := o.resp
	spinID := o.spinID
	o.clearTimersLocked()
	o.mu.Unlock()

	if err := o.state.Transition(StatusEvaluating); err != nil {
		o.abort(err)
		return
	}
	o.bus.Emit(EventWinEvaluate, map[string]any{"spinId": spinID, "wins": resp.Wins})

	// 状态结算：余额以RGS返回为准，编排层绝不自行加减
	empty := ""
	total := o.state.GetState().TotalWin.Add(resp.TotalWin)
	patch := StatePatch{
		CurrentSymbols:     resp.Symbols,
		Balance:            &resp.Balance,
		LastWin:            &resp.TotalWin,
		TotalWin:           &total,
		CurrentSpinID:      &empty,
		FreeSpinsRemaining: &resp.FreeSpins,
		CurrentMultiplier:  &resp.Multiplier,
	}
	// 免费游戏进行中每局都重写feature条目，Remaining与剩余次数保持同步
	if len(resp.Features) > 0 || resp.FreeSpins > 0 {
		patch.ActiveFeatures = []ActiveFeature{{
			ID:        _freeSpinFeatureID,
			Remaining: resp.FreeSpins,
		}}
	} else {
		patch.ActiveFeatures = []ActiveFeature{}
	}
	o.state.SetState(patch)

	hasWin := resp.TotalWin.IsPositive()
	hasFeature := len(resp.Features) > 0

	if hasWin {
		if err := o.state.Transition(StatusShowingWin); err != nil {
			o.abort(err)
			return
		}
		var positions []GridPos
		for _, w := range resp.Wins {
			positions = append(positions, w.Positions...)
		}
		o.engine.HighlightPositions(positions)
		o.bus.Emit(EventWinShow, map[string]any{
			"spinId":   spinID,
			"totalWin": resp.TotalWin.String(),
			"wins":     resp.Wins,
		})
	}
	if hasFeature {
		if !hasWin {
			// 无中奖但触发特性：经showing_win进入feature_active
			if err := o.state.Transition(StatusShowingWin); err != nil {
				o.abort(err)
				return
			}
		}
		if err := o.state.Transition(StatusFeatureActive); err != nil {
			o.abort(err)
			return
		}
		o.bus.Emit(EventFeatureTriggered, map[string]any{
			"spinId":    spinID,
			"features":  resp.Features,
			"freeSpins": resp.FreeSpins,
		})
	}
	if err := o.state.Transition(StatusReady); err != nil {
		o.abort(err)
		return
	}

	o.bus.Emit(EventBalanceUpdated, map[string]any{
		"balance": resp.Balance.String(),
	})
	o.bus.Emit(EventSpinComplete, map[string]any{
		"spinId":   spinID,
		"totalWin": resp.TotalWin.String(),
		"balance":  resp.Balance.String(),
	})

	o.mu.Lock()
	o.spinning = false
	done := o.doneCh
	o.doneCh = nil
	o.mu.Unlock()
	if done != nil {
		done <- SpinOutcome{Resp: resp}
	}
}

// abort spin途中意外失败：清定时器、转error、上报
func (o *Orchestrator) abort(err error) {
	o.mu.Lock()
	o.failSpinLocked(err)
	o.mu.Unlock()
}

// failSpinLocked 必须持锁调用；返回时锁已释放再加回（事件派发在锁外）
func (o *Orchestrator) failSpinLocked(err error) {
	o.clearTimersLocked()
	o.spinning = false
	done := o.doneCh
	o.doneCh = nil
	spinID := o.spinID
	o.mu.Unlock()

	o.log.Error("spin failed", zap.String("spinId", spinID), zap.Error(err))
	if o.state.Status() != StatusError {
		errStatus := StatusError
		o.state.SetState(StatePatch{Status: &errStatus})
	}
	o.bus.Emit(EventError, map[string]any{"spinId": spinID, "error": err.Error()})
	if done != nil {
		done <- SpinOutcome{Err: err}
	}

	o.mu.Lock()
}

// clearTimersLocked 成功或失败路径都必须清空全部待触发任务
func (o *Orchestrator) clearTimersLocked() {
	for reel, tid := range o.startTasks {
		o.sched.Cancel(tid)
		delete(o.startTasks, reel)
	}
	for reel, tid := range o.stopTasks {
		o.sched.Cancel(tid)
		delete(o.stopTasks, reel)
	}
	if o.tickTask != 0 {
		o.sched.Cancel(o.tickTask)
		o.tickTask = 0
	}
	if o.minTask != 0 {
		o.sched.Cancel(o.minTask)
		o.minTask = 0
	}
}

// UpdateConfig 运行期调整配置（显式patch，无环境全局开关）
func (o *Orchestrator) UpdateConfig(patch SettingsPatch) {
	o.mu.Lock()
	if patch.Animation != nil {
		o.cfg.Animation = *patch.Animation
	}
	if patch.PaylineCount != nil {
		o.cfg.PaylineCount = *patch.PaylineCount
	}
	o.mu.Unlock()
	// 滚轴引擎持有自己的动画参数副本，spin进行中热更新也不与Tick共享写
	if patch.Animation != nil {
		o.engine.SetAnimation(*patch.Animation)
	}
	if patch.MaskEnabled != nil {
		o.engine.SetMaskEnabled(*patch.MaskEnabled)
	}
}

// IsSpinning spin进行中守卫
func (o *Orchestrator) IsSpinning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.spinning
}

// Reset 终止当前spin（若有）并把状态机拉回ready。error态恢复的唯一途径。
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	o.clearTimersLocked()
	wasSpinning := o.spinning
	o.spinning = false
	done := o.doneCh
	o.doneCh = nil
	o.mu.Unlock()

	if wasSpinning && done != nil {
		done <- SpinOutcome{Err: fmt.Errorf("spin reset")}
	}
	st := o.state.Status()
	if st == StatusReady {
		return nil
	}
	if CanTransition(st, StatusReady) {
		return o.state.Transition(StatusReady)
	}
	errStatus := StatusError
	if st != StatusError {
		o.state.SetState(StatePatch{Status: &errStatus})
	}
	return o.state.Transition(StatusReady)
}
