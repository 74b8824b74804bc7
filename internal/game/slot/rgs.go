package slot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SceneStore 玩家场景持久化（免费游戏进度等），跨spin存续
type SceneStore interface {
	Load(ctx context.Context, playerID string) (*SceneData, error)
	Save(ctx context.Context, playerID string, scene *SceneData) error
	Delete(ctx context.Context, playerID string) error
}

// memorySceneStore 进程内场景存储，离线/测试用
type memorySceneStore struct {
	mu     sync.Mutex
	scenes map[string]*SceneData
}

// NewMemorySceneStore 内存实现
func NewMemorySceneStore() SceneStore {
	return &memorySceneStore{scenes: make(map[string]*SceneData)}
}

func (s *memorySceneStore) Load(_ context.Context, playerID string) (*SceneData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scenes[playerID]; ok {
		c := *sc
		return &c, nil
	}
	return &SceneData{}, nil
}

func (s *memorySceneStore) Save(_ context.Context, playerID string, scene *SceneData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *scene
	s.scenes[playerID] = &c
	return nil
}

func (s *memorySceneStore) Delete(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scenes, playerID)
	return nil
}

// RGSClient 模拟远端游戏服务器：会话生命周期、spin交易、余额。
// 余额增减只发生在本组件内部——编排层只消费返回值，绝不自行加减余额。
type RGSClient struct {
	mu       sync.Mutex
	cfg      *GameConfig
	session  *Session
	scenes   SceneStore
	latency  time.Duration
	tw       *timingwheel.TimingWheel
	forced   [][]int64 // 调试用强制盘面，消费一次后清空
	log      *zap.Logger
	disposed bool
}

// RGSOption RGS可选项
type RGSOption func(*RGSClient)

// WithLatency 模拟网络延迟。0表示同步返回。
func WithLatency(d time.Duration) RGSOption {
	return func(c *RGSClient) { c.latency = d }
}

// WithSceneStore 指定场景存储
func WithSceneStore(s SceneStore) RGSOption {
	return func(c *RGSClient) { c.scenes = s }
}

func NewRGSClient(cfg *GameConfig, logger *zap.Logger, opts ...RGSOption) *RGSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RGSClient{
		cfg:     cfg,
		scenes:  NewMemorySceneStore(),
		latency: 50 * time.Millisecond,
		log:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.latency > 0 {
		c.tw = timingwheel.NewTimingWheel(time.Millisecond, 64)
		c.tw.Start()
	}
	return c
}

// Connect 创建会话。所有spin交易要求会话存活。
func (c *RGSClient) Connect(ctx context.Context, playerID, currency string, balance decimal.Decimal) (*Session, error) {
	if playerID == "" {
		return nil, InvalidRequestParams
	}
	if currency == "" {
		currency = "USD"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &Session{
		ID:       uuid.NewString(),
		GameID:   c.cfg.GameID,
		PlayerID: playerID,
		Currency: currency,
		Balance:  balance,
		Bet:      c.cfg.BetConfig(),
	}
	c.log.Info("rgs session created",
		zap.String("session", c.session.ID),
		zap.String("player", playerID),
		zap.String("balance", balance.String()))
	sess := *c.session
	return &sess, nil
}

// Disconnect 销毁会话
func (c *RGSClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return NoActiveSession
	}
	c.log.Info("rgs session closed", zap.String("session", c.session.ID))
	c.session = nil
	return nil
}

// Session 当前会话快照
func (c *RGSClient) Session() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, NoActiveSession
	}
	sess := *c.session
	return &sess, nil
}

// GetBalance 当前余额
func (c *RGSClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return decimal.Zero, NoActiveSession
	}
	return c.session.Balance, nil
}

// UpdateBalance 调整余额（充值/扣款）。结果不允许为负。
func (c *RGSClient) UpdateBalance(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return decimal.Zero, NoActiveSession
	}
	next := c.session.Balance.Add(delta)
	if next.IsNegative() {
		return c.session.Balance, InsufficientBalance
	}
	c.session.Balance = next
	return next, nil
}

// GetBetConfiguration 下注配置
func (c *RGSClient) GetBetConfiguration(ctx context.Context) (*BetConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, NoActiveSession
	}
	bc := c.session.Bet
	return &bc, nil
}

// SetForcedGrid 强制下一次spin的盘面（调试/测试钩子，不经公共API暴露）
func (c *RGSClient) SetForcedGrid(grid [][]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forced = cloneGrid(grid)
}

// Spin 同步spin交易：校验下注、扣注、生成盘面、结算、返回新余额。
// 若配置了模拟延迟，阻塞相应时长后返回。
func (c *RGSClient) Spin(ctx context.Context, req *SpinRequest) (*SpinResponse, error) {
	resp, err := c.doSpin(ctx, req)
	if err != nil {
		return nil, err
	}
	if c.latency > 0 {
		done := make(chan struct{})
		c.tw.AfterFunc(c.latency, func() { close(done) })
		select {
		case <-done:
		case <-ctx.Done():
			// 交易已提交，延迟期内取消不回滚（无飞行中取消语义）
		}
	}
	return resp, nil
}

// SpinAsync 异步spin：结果在模拟延迟后回调。请求一旦发出不可取消，
// 结果到达后必须被应用。
func (c *RGSClient) SpinAsync(ctx context.Context, req *SpinRequest, cb func(*SpinResponse, error)) {
	resp, err := c.doSpin(ctx, req)
	if c.latency <= 0 {
		cb(resp, err)
		return
	}
	c.tw.AfterFunc(c.latency, func() { cb(resp, err) })
}

// doSpin 交易主体。持锁执行，保证余额变更原子：
// 要么扣注+派彩一起提交，要么整体失败不动余额。
func (c *RGSClient) doSpin(ctx context.Context, req *SpinRequest) (*SpinResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, NoActiveSession
	}
	if req == nil || req.Bet.IsNegative() || req.Bet.IsZero() {
		return nil, InvalidRequestParams
	}
	bc := c.session.Bet
	if req.Bet.LessThan(bc.MinBet) || req.Bet.GreaterThan(bc.MaxBet) {
		return nil, InvalidRequestParams
	}
	if req.Lines <= 0 {
		req.Lines = bc.MaxLines
	}
	if req.Lines < bc.MinLines || req.Lines > bc.MaxLines {
		return nil, InvalidRequestParams
	}
	reels, rows := req.Reels, req.Rows
	if reels <= 0 {
		reels = c.cfg.Reels
	}
	if rows <= 0 {
		rows = c.cfg.Rows
	}

	scene, err := c.scenes.Load(ctx, c.session.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load scene: %w", err)
	}
	isFree := scene.FreeSpinsRemaining > 0

	if !isFree {
		if c.session.Balance.LessThan(req.Bet) {
			return nil, InsufficientBalance
		}
		c.session.Balance = c.session.Balance.Sub(req.Bet)
	} else {
		scene.FreeSpinsRemaining--
	}

	grid := c.nextGrid(reels, rows)
	ev := NewEvaluator(c.cfg, reels, rows, c.cfg.PaylineCount)
	wins, total := ev.Evaluate(grid, req.Bet, req.Lines)

	multiplier := int64(1)
	if isFree {
		multiplier = c.cfg.FreeMulti
		if multiplier > 1 && total.IsPositive() {
			total = total.Mul(decimal.NewFromInt(multiplier))
			for i := range wins {
				wins[i].Amount = wins[i].Amount.Mul(decimal.NewFromInt(multiplier))
			}
		}
	}

	// scatter触发/追加免费次数
	var features []string
	scatters := ev.ScatterCount(grid)
	if award := ev.FreeSpinsFor(scatters); award > 0 {
		if isFree {
			// 免费游戏内每个scatter追加一次
			scene.FreeSpinsRemaining += int64(scatters)
		} else {
			scene.FreeSpinsRemaining += award
			scene.FreeSpinsTotal = award
			scene.FreeMultiplier = c.cfg.FreeMulti
			features = append(features, _freeSpinFeatureID)
		}
		scene.ScatterCollected += int64(scatters)
	}

	c.session.Balance = c.session.Balance.Add(total)

	if err = c.scenes.Save(ctx, c.session.PlayerID, scene); err != nil {
		c.log.Warn("save scene failed", zap.Error(err))
	}

	resp := &SpinResponse{
		Success:       true,
		TransactionID: uuid.NewString(),
		Symbols:       grid,
		Wins:          wins,
		TotalWin:      total,
		Balance:       c.session.Balance,
		Features:      features,
		FreeSpins:     scene.FreeSpinsRemaining,
		Multiplier:    multiplier,
		Timestamp:     time.Now().UnixMilli(),
	}
	return resp, nil
}

// nextGrid 权重随机盘面；有强制盘面则消费之
func (c *RGSClient) nextGrid(reels, rows int) [][]int64 {
	if c.forced != nil {
		g := c.forced
		c.forced = nil
		return g
	}
	g := make([][]int64, reels)
	for i := range g {
		g[i] = make([]int64, rows)
		for j := range g[i] {
			g[i][j] = c.cfg.randomSymbol()
		}
	}
	return g
}

// Close 释放定时轮
func (c *RGSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	if c.tw != nil {
		c.tw.Stop()
	}
}
