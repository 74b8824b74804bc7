package slot

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	InternalServerError  = errors.New("internal server error")
	InvalidRequestParams = errors.New("invalid request params")
	InsufficientBalance  = errors.New("insufficient balance")
	NoActiveSession      = errors.New("no active session")
	SpinInProgress       = errors.New("spin already in progress")
	NotInitialized       = errors.New("game not initialized")
)

// Game 引擎门面。UI层唯一的交互入口：其余组件一概不直接暴露。
// 公共入口带recover包装，内部panic统一转InternalServerError并记录。
type Game struct {
	mu          sync.Mutex
	cfg         *GameConfig
	log         *zap.Logger
	clock       Clock
	surface     Surface
	sched       Scheduler
	bus         *EventBus
	state       *StateManager
	rgs         *RGSClient
	engine      *ReelEngine
	orch        *Orchestrator
	rgsOpts     []RGSOption
	initialized bool
	disposed    bool
}

// GameOption 门面可选项
type GameOption func(*Game)

func WithLogger(l *zap.Logger) GameOption { return func(g *Game) { g.log = l } }
func WithClock(c Clock) GameOption        { return func(g *Game) { g.clock = c } }
func WithSurface(s Surface) GameOption    { return func(g *Game) { g.surface = s } }
func WithRGSOptions(opts ...RGSOption) GameOption {
	return func(g *Game) { g.rgsOpts = append(g.rgsOpts, opts...) }
}

func NewGame(opts ...GameOption) *Game {
	g := &Game{
		log:   zap.NewNop(),
		clock: SystemClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.surface == nil {
		g.surface = NewRecordingSurface()
	}
	return g
}

// Initialize 装配全部组件并建立RGS会话。cfg为nil时用内置默认配置。
func (g *Game) Initialize(ctx context.Context, cfg *GameConfig, playerID string, balance decimal.Decimal) (err error) {
	defer g.recoverTo(&err, "Initialize")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return InternalServerError
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	g.cfg = cfg
	g.bus = NewEventBus(g.log)
	g.sched = NewScheduler(g.clock, g.log)
	g.state = NewStateManager(cfg.Reels, cfg.Rows, g.log)
	g.rgs = NewRGSClient(cfg, g.log, g.rgsOpts...)
	g.engine = NewReelEngine(cfg, g.clock, g.surface, g.log)
	g.orch = NewOrchestrator(cfg, g.state, g.bus, g.rgs, g.engine, g.sched, g.clock, g.log)

	// 状态变更桥接到总线
	g.state.Subscribe(func(cur, prev GameState) {
		g.bus.Emit(EventStateChanged, map[string]any{
			"status": string(cur.Status),
			"prev":   string(prev.Status),
		})
	})

	if _, err = g.rgs.Connect(ctx, playerID, "", balance); err != nil {
		return err
	}
	g.state.SetState(StatePatch{Balance: &balance})

	initial := make([][]int64, cfg.Reels)
	for i := range initial {
		initial[i] = make([]int64, cfg.Rows)
		for j := range initial[i] {
			initial[i][j] = cfg.randomSymbol()
		}
	}
	g.engine.SetupGrid(cfg.Reels, cfg.Rows, initial)
	g.state.SetState(StatePatch{CurrentSymbols: initial})

	if err = g.state.Transition(StatusReady); err != nil {
		return err
	}
	g.initialized = true
	g.bus.Emit(EventInitialized, map[string]any{
		"reels": cfg.Reels,
		"rows":  cfg.Rows,
	})
	return nil
}

// Spin 阻塞式spin：发起并等待完整生命周期结束
func (g *Game) Spin(ctx context.Context, bet decimal.Decimal, lines int) (resp *SpinResponse, err error) {
	defer g.recoverTo(&err, "Spin")

	orch, err := g.orchestrator()
	if err != nil {
		return nil, err
	}
	_, done, err := orch.StartSpin(ctx, bet, lines)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-done:
		return out.Resp, out.Err
	case <-ctx.Done():
		// 不取消飞行中的spin，调用方超时只是不再等待
		return nil, ctx.Err()
	}
}

// StartSpin 非阻塞式spin：返回spin标识与结果通道
func (g *Game) StartSpin(ctx context.Context, bet decimal.Decimal, lines int) (spinID string, done <-chan SpinOutcome, err error) {
	defer g.recoverTo(&err, "StartSpin")
	orch, err := g.orchestrator()
	if err != nil {
		return "", nil, err
	}
	return orch.StartSpin(ctx, bet, lines)
}

// StopSpin 请求提前结束当前spin
func (g *Game) StopSpin() (err error) {
	defer g.recoverTo(&err, "StopSpin")
	orch, err := g.orchestrator()
	if err != nil {
		return err
	}
	return orch.StopSpin()
}

// SlamStopReel 急停单个滚轴
func (g *Game) SlamStopReel(reel int) (err error) {
	defer g.recoverTo(&err, "SlamStopReel")
	orch, err := g.orchestrator()
	if err != nil {
		return err
	}
	return orch.SlamStopReel(reel)
}

// SlamStopAll 急停全部滚轴
func (g *Game) SlamStopAll() (err error) {
	defer g.recoverTo(&err, "SlamStopAll")
	orch, err := g.orchestrator()
	if err != nil {
		return err
	}
	return orch.SlamStopAll()
}

// GetSlamStopStatus 各滚轴急停状态
func (g *Game) GetSlamStopStatus() []SlamStopStatus {
	orch, err := g.orchestrator()
	if err != nil {
		return nil
	}
	return orch.GetSlamStopStatus()
}

// UpdateGrid 变更盘面尺寸。旧滚轴容器与句柄全量回收。
func (g *Game) UpdateGrid(reels, rows int) (err error) {
	defer g.recoverTo(&err, "UpdateGrid")

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return NotInitialized
	}
	if reels <= 0 || rows <= 0 {
		return InvalidRequestParams
	}
	if g.orch.IsSpinning() {
		return SpinInProgress
	}
	g.cfg.Reels = reels
	g.cfg.Rows = rows
	initial := make([][]int64, reels)
	for i := range initial {
		initial[i] = make([]int64, rows)
		for j := range initial[i] {
			initial[i][j] = g.cfg.randomSymbol()
		}
	}
	g.engine.SetupGrid(reels, rows, initial)
	g.state.SetState(StatePatch{Reels: &reels, Rows: &rows, CurrentSymbols: initial})
	return nil
}

// UpdateSymbols 替换符号表（编辑器换皮入口）
func (g *Game) UpdateSymbols(symbols []SymbolConfig) (err error) {
	defer g.recoverTo(&err, "UpdateSymbols")

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return NotInitialized
	}
	if g.orch.IsSpinning() {
		return SpinInProgress
	}
	old := g.cfg.Symbols
	g.cfg.Symbols = symbols
	if err = g.cfg.normalize(); err != nil {
		g.cfg.Symbols = old
		_ = g.cfg.normalize()
		return err
	}
	return nil
}

// UpdateSettings 运行期配置调整
func (g *Game) UpdateSettings(patch SettingsPatch) (err error) {
	defer g.recoverTo(&err, "UpdateSettings")
	orch, err := g.orchestrator()
	if err != nil {
		return err
	}
	orch.UpdateConfig(patch)
	return nil
}

// GetState 权威状态快照
func (g *Game) GetState() (GameState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return GameState{}, NotInitialized
	}
	return g.state.GetState(), nil
}

// GetBalance 当前余额（以RGS为准）
func (g *Game) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	rgs := g.rgs
	g.mu.Unlock()
	if rgs == nil {
		return decimal.Zero, NotInitialized
	}
	return rgs.GetBalance(ctx)
}

// GetBetConfig 当前会话的下注配置
func (g *Game) GetBetConfig(ctx context.Context) (*BetConfig, error) {
	g.mu.Lock()
	rgs := g.rgs
	g.mu.Unlock()
	if rgs == nil {
		return nil, NotInitialized
	}
	return rgs.GetBetConfiguration(ctx)
}

// On 订阅生命周期事件
func (g *Game) On(event string, fn Handler) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bus == nil {
		return -1
	}
	return g.bus.On(event, fn)
}

// Off 退订
func (g *Game) Off(event string, id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bus != nil {
		g.bus.Off(event, id)
	}
}

// SerializeState 状态快照文本
func (g *Game) SerializeState() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return "", NotInitialized
	}
	return g.state.Serialize()
}

// RestoreState 从快照文本恢复
func (g *Game) RestoreState(raw string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return NotInitialized
	}
	return g.state.Deserialize(raw)
}

// Reset error态恢复：终止残留spin并回到ready
func (g *Game) Reset() (err error) {
	defer g.recoverTo(&err, "Reset")
	orch, err := g.orchestrator()
	if err != nil {
		return err
	}
	return orch.Reset()
}

// ForceNextGrid 强制下一次spin盘面（调试/RTP工具钩子，不经传输层暴露）
func (g *Game) ForceNextGrid(grid [][]int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return NotInitialized
	}
	g.rgs.SetForcedGrid(grid)
	return nil
}

// Dispose 释放全部资源。之后实例不可再用。
func (g *Game) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	g.initialized = false
	orch, sched, engine, rgs, bus := g.orch, g.sched, g.engine, g.rgs, g.bus
	g.mu.Unlock()

	if orch != nil {
		_ = orch.Reset()
	}
	if sched != nil {
		sched.Stop()
	}
	if engine != nil {
		engine.Dispose()
	}
	if rgs != nil {
		_ = rgs.Disconnect(context.Background())
		rgs.Close()
	}
	if bus != nil {
		bus.ClearAll()
	}
}

func (g *Game) orchestrator() (*Orchestrator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized || g.orch == nil {
		return nil, NotInitialized
	}
	return g.orch, nil
}

func (g *Game) recoverTo(err *error, op string) {
	if r := recover(); r != nil {
		g.log.Error(op, zap.Any("r", r), zap.Stack("stack"))
		*err = InternalServerError
	}
}
