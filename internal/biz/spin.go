package biz

import (
	"context"
	"os"
	"sync"
	"time"

	"spinner/internal/conf"
	"spinner/internal/game/slot"

	"github.com/google/wire"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/yola1107/kratos/v2/errors"
	"github.com/yola1107/kratos/v2/log"
	"go.uber.org/zap"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(NewSpinUsecase)

var (
	// ErrPlayerNotEntered is returned for operations on players without a live game.
	ErrPlayerNotEntered = errors.NotFound("PLAYER_NOT_ENTERED", "player has not entered the game")
)

// SpinOrder is one settled spin persisted per player.
type SpinOrder struct {
	ID        int64     `xorm:"pk autoincr 'id'" json:"id"`
	OrderID   string    `xorm:"varchar(64) notnull unique 'order_id'" json:"orderId"`
	PlayerID  string    `xorm:"varchar(64) notnull index 'player_id'" json:"playerId"`
	GameID    int64     `xorm:"'game_id'" json:"gameId"`
	Bet       string    `xorm:"varchar(32) 'bet'" json:"bet"`
	Win       string    `xorm:"varchar(32) 'win'" json:"win"`
	Balance   string    `xorm:"varchar(32) 'balance'" json:"balance"`
	FreeSpins int64     `xorm:"'free_spins'" json:"freeSpins"`
	Symbols   string    `xorm:"text 'symbols'" json:"symbols"`
	CreatedAt time.Time `xorm:"created 'created_at'" json:"createdAt"`
}

// TableName keeps the xorm mapping explicit.
func (SpinOrder) TableName() string { return "spin_order" }

// OrderRepo persists spin orders.
type OrderRepo interface {
	Save(context.Context, *SpinOrder) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*SpinOrder, error)
}

// Settlement is the message published to downstream accounting after a spin.
type Settlement struct {
	OrderID   string `json:"orderId"`
	PlayerID  string `json:"playerId"`
	GameID    int64  `json:"gameId"`
	Bet       string `json:"bet"`
	Win       string `json:"win"`
	Balance   string `json:"balance"`
	FreeSpins int64  `json:"freeSpins"`
	Timestamp int64  `json:"timestamp"`
}

// SettlePublisher publishes settlements to the message broker.
type SettlePublisher interface {
	PublishSettlement(context.Context, *Settlement) error
}

// EventSink receives engine lifecycle events for pushing to clients.
type EventSink interface {
	Push(playerID, event string, payload any)
}

// 引擎生命周期事件全集，进场时逐个桥接到推送通道
var lifecycleEvents = []string{
	slot.EventInitialized,
	slot.EventStateChanged,
	slot.EventSpinStart,
	slot.EventSpinComplete,
	slot.EventReelStart,
	slot.EventReelStop,
	slot.EventWinEvaluate,
	slot.EventWinShow,
	slot.EventFeatureTriggered,
	slot.EventBalanceUpdated,
	slot.EventError,
}

// SpinUsecase hosts one engine instance per entered player and wires its
// results to persistence, settlement and push channels.
type SpinUsecase struct {
	rawConfig      string
	gameID         int64
	latency        time.Duration
	defaultBalance decimal.Decimal

	orders OrderRepo
	scenes slot.SceneStore
	settle SettlePublisher
	log    *log.Helper
	zlog   *zap.Logger

	mu    sync.Mutex
	sink  EventSink
	games map[string]*slot.Game
}

// NewSpinUsecase new a Spin usecase.
func NewSpinUsecase(c *conf.Game, orders OrderRepo, scenes slot.SceneStore, settle SettlePublisher, logger log.Logger) *SpinUsecase {
	helper := log.NewHelper(logger)
	zlog, _ := zap.NewProduction()

	uc := &SpinUsecase{
		latency:        50 * time.Millisecond,
		defaultBalance: decimal.NewFromInt(1000),
		orders:         orders,
		scenes:         scenes,
		settle:         settle,
		log:            helper,
		zlog:           zlog,
		games:          make(map[string]*slot.Game),
	}
	if c != nil {
		uc.latency = conf.Duration(c.RgsLatency, uc.latency)
		if c.DefaultBalance != "" {
			if d, err := decimal.NewFromString(c.DefaultBalance); err == nil && d.IsPositive() {
				uc.defaultBalance = d
			}
		}
		if c.ConfigPath != "" {
			raw, err := os.ReadFile(c.ConfigPath)
			if err != nil {
				helper.Warnf("read game config %s: %v, using built-in", c.ConfigPath, err)
			} else if _, err = slot.ParseConfig(string(raw)); err != nil {
				helper.Warnf("parse game config %s: %v, using built-in", c.ConfigPath, err)
			} else {
				uc.rawConfig = string(raw)
			}
		}
	}
	uc.gameID = uc.newConfig().GameID
	return uc
}

// SetSink attaches the push channel. Called once during wiring.
func (uc *SpinUsecase) SetSink(sink EventSink) {
	uc.mu.Lock()
	uc.sink = sink
	uc.mu.Unlock()
}

// newConfig builds a fresh per-player config. Grid and symbol edits are
// per player, so instances never share one.
func (uc *SpinUsecase) newConfig() *slot.GameConfig {
	if uc.rawConfig != "" {
		cfg, err := slot.ParseConfig(uc.rawConfig)
		if err == nil {
			return cfg
		}
	}
	return slot.DefaultConfig()
}

// Enter creates (or returns) the player's engine instance.
func (uc *SpinUsecase) Enter(ctx context.Context, playerID string, balance decimal.Decimal) (slot.GameState, error) {
	if playerID == "" {
		return slot.GameState{}, errors.BadRequest("INVALID_PARAMS", "player id required")
	}
	uc.mu.Lock()
	if g, ok := uc.games[playerID]; ok {
		uc.mu.Unlock()
		return g.GetState()
	}
	uc.mu.Unlock()

	if !balance.IsPositive() {
		balance = uc.defaultBalance
	}
	g := slot.NewGame(
		slot.WithLogger(uc.zlog),
		slot.WithRGSOptions(
			slot.WithLatency(uc.latency),
			slot.WithSceneStore(uc.scenes),
		),
	)
	if err := g.Initialize(ctx, uc.newConfig(), playerID, balance); err != nil {
		g.Dispose()
		return slot.GameState{}, err
	}
	uc.bridgeEvents(playerID, g)

	uc.mu.Lock()
	if prev, ok := uc.games[playerID]; ok {
		// 并发进场：保留先建实例
		uc.mu.Unlock()
		g.Dispose()
		return prev.GetState()
	}
	uc.games[playerID] = g
	uc.mu.Unlock()

	uc.log.WithContext(ctx).Infof("player %s entered, balance=%s", playerID, balance)
	return g.GetState()
}

// bridgeEvents forwards every engine lifecycle event to the push sink.
func (uc *SpinUsecase) bridgeEvents(playerID string, g *slot.Game) {
	for _, ev := range lifecycleEvents {
		event := ev
		g.On(event, func(payload any) {
			uc.mu.Lock()
			sink := uc.sink
			uc.mu.Unlock()
			if sink != nil {
				sink.Push(playerID, event, payload)
			}
		})
	}
}

// Leave disposes the player's engine instance.
func (uc *SpinUsecase) Leave(ctx context.Context, playerID string) error {
	uc.mu.Lock()
	g, ok := uc.games[playerID]
	delete(uc.games, playerID)
	uc.mu.Unlock()
	if !ok {
		return ErrPlayerNotEntered
	}
	g.Dispose()
	uc.log.WithContext(ctx).Infof("player %s left", playerID)
	return nil
}

func (uc *SpinUsecase) game(playerID string) (*slot.Game, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	g, ok := uc.games[playerID]
	if !ok {
		return nil, ErrPlayerNotEntered
	}
	return g, nil
}

// Spin runs a full blocking spin, then records the order and publishes the
// settlement. Persistence failures do not fail the spin: the engine result
// is already committed.
func (uc *SpinUsecase) Spin(ctx context.Context, playerID string, bet decimal.Decimal, lines int) (*slot.SpinResponse, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return nil, err
	}
	resp, err := g.Spin(ctx, bet, lines)
	if err != nil {
		return nil, err
	}

	symbols, _ := jsoniter.MarshalToString(resp.Symbols)
	order := &SpinOrder{
		OrderID:   resp.TransactionID,
		PlayerID:  playerID,
		GameID:    uc.gameID,
		Bet:       bet.String(),
		Win:       resp.TotalWin.String(),
		Balance:   resp.Balance.String(),
		FreeSpins: resp.FreeSpins,
		Symbols:   symbols,
	}
	if err = uc.orders.Save(ctx, order); err != nil {
		uc.log.Warnf("save order %s: %v", resp.TransactionID, err)
	}
	settle := &Settlement{
		OrderID:   resp.TransactionID,
		PlayerID:  playerID,
		GameID:    uc.gameID,
		Bet:       bet.String(),
		Win:       resp.TotalWin.String(),
		Balance:   resp.Balance.String(),
		FreeSpins: resp.FreeSpins,
		Timestamp: resp.Timestamp,
	}
	if err = uc.settle.PublishSettlement(ctx, settle); err != nil {
		uc.log.Warnf("publish settlement %s: %v", resp.TransactionID, err)
	}
	return resp, nil
}

// StartSpin kicks off a non-blocking spin; the outcome arrives on the push
// channel (spin:complete / error).
func (uc *SpinUsecase) StartSpin(ctx context.Context, playerID string, bet decimal.Decimal, lines int) (string, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return "", err
	}
	// 请求ctx在handler返回后即取消，异步spin的落地在那之后才发生
	spinID, done, err := g.StartSpin(context.Background(), bet, lines)
	if err != nil {
		return "", err
	}
	go func() {
		out := <-done
		if out.Err != nil {
			uc.log.Warnf("spin %s failed: %v", spinID, out.Err)
			return
		}
		symbols, _ := jsoniter.MarshalToString(out.Resp.Symbols)
		order := &SpinOrder{
			OrderID:   out.Resp.TransactionID,
			PlayerID:  playerID,
			GameID:    uc.gameID,
			Bet:       bet.String(),
			Win:       out.Resp.TotalWin.String(),
			Balance:   out.Resp.Balance.String(),
			FreeSpins: out.Resp.FreeSpins,
			Symbols:   symbols,
		}
		if err := uc.orders.Save(context.Background(), order); err != nil {
			uc.log.Warnf("save order %s: %v", out.Resp.TransactionID, err)
		}
		settle := &Settlement{
			OrderID:   out.Resp.TransactionID,
			PlayerID:  playerID,
			GameID:    uc.gameID,
			Bet:       bet.String(),
			Win:       out.Resp.TotalWin.String(),
			Balance:   out.Resp.Balance.String(),
			FreeSpins: out.Resp.FreeSpins,
			Timestamp: out.Resp.Timestamp,
		}
		if err := uc.settle.PublishSettlement(context.Background(), settle); err != nil {
			uc.log.Warnf("publish settlement %s: %v", out.Resp.TransactionID, err)
		}
	}()
	return spinID, nil
}

// StopSpin requests an early finish of the active spin.
func (uc *SpinUsecase) StopSpin(playerID string) error {
	g, err := uc.game(playerID)
	if err != nil {
		return err
	}
	return g.StopSpin()
}

// SlamStop slams one reel, or every reel when reel < 0.
func (uc *SpinUsecase) SlamStop(playerID string, reel int) error {
	g, err := uc.game(playerID)
	if err != nil {
		return err
	}
	if reel < 0 {
		return g.SlamStopAll()
	}
	return g.SlamStopReel(reel)
}

// SlamStatus reports per-reel stop status.
func (uc *SpinUsecase) SlamStatus(playerID string) ([]slot.SlamStopStatus, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return nil, err
	}
	return g.GetSlamStopStatus(), nil
}

// Balance reads the authoritative wallet balance.
func (uc *SpinUsecase) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return decimal.Zero, err
	}
	return g.GetBalance(ctx)
}

// BetConfig reads the session bet configuration.
func (uc *SpinUsecase) BetConfig(ctx context.Context, playerID string) (*slot.BetConfig, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return nil, err
	}
	return g.GetBetConfig(ctx)
}

// State returns the authoritative engine state.
func (uc *SpinUsecase) State(playerID string) (slot.GameState, error) {
	g, err := uc.game(playerID)
	if err != nil {
		return slot.GameState{}, err
	}
	return g.GetState()
}

// UpdateGrid resizes the player's board.
func (uc *SpinUsecase) UpdateGrid(playerID string, reels, rows int) error {
	g, err := uc.game(playerID)
	if err != nil {
		return err
	}
	return g.UpdateGrid(reels, rows)
}

// UpdateSettings applies a runtime settings patch.
func (uc *SpinUsecase) UpdateSettings(playerID string, patch slot.SettingsPatch) error {
	g, err := uc.game(playerID)
	if err != nil {
		return err
	}
	return g.UpdateSettings(patch)
}

// Reset recovers the player's engine from the error state.
func (uc *SpinUsecase) Reset(playerID string) error {
	g, err := uc.game(playerID)
	if err != nil {
		return err
	}
	return g.Reset()
}

// Orders lists recent spin orders for a player.
func (uc *SpinUsecase) Orders(ctx context.Context, playerID string, limit int) ([]*SpinOrder, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.orders.ListByPlayer(ctx, playerID, limit)
}
