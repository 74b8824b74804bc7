package slot

import (
	"github.com/shopspring/decimal"
)

// GameState 权威游戏状态。仅允许 StateManager 修改。
// CurrentSymbols 为列优先：外层索引是滚轴，内层是行。
type GameState struct {
	Status             Status            `json:"status"`
	Reels              int               `json:"reels"`
	Rows               int               `json:"rows"`
	CurrentSymbols     [][]int64         `json:"currentSymbols"`
	IsSpinning         bool              `json:"isSpinning"`
	CurrentSpinID      string            `json:"currentSpinId"`
	LastWin            decimal.Decimal   `json:"lastWin"`
	TotalWin           decimal.Decimal   `json:"totalWin"`
	Balance            decimal.Decimal   `json:"balance"`
	CurrentBet         decimal.Decimal   `json:"currentBet"`
	ActiveFeatures     []ActiveFeature   `json:"activeFeatures"`
	FreeSpinsRemaining int64             `json:"freeSpinsRemaining"`
	CurrentMultiplier  int64             `json:"currentMultiplier"`
}

// ActiveFeature 进行中的特性（免费游戏等）
type ActiveFeature struct {
	ID        string         `json:"id"`
	Remaining int64          `json:"remaining"`
	Data      map[string]any `json:"data,omitempty"`
}

// StatePatch 部分状态更新。nil 字段表示保持不变。
// 若 Status 对应的转换不合法，整个 patch 被拒绝（不做部分应用）。
type StatePatch struct {
	Status             *Status
	Reels              *int
	Rows               *int
	CurrentSymbols     [][]int64
	IsSpinning         *bool
	CurrentSpinID      *string
	LastWin            *decimal.Decimal
	TotalWin           *decimal.Decimal
	Balance            *decimal.Decimal
	CurrentBet         *decimal.Decimal
	ActiveFeatures     []ActiveFeature
	FreeSpinsRemaining *int64
	CurrentMultiplier  *int64
}

// GridPos 盘面坐标
type GridPos struct {
	Reel int `json:"reel"`
	Row  int `json:"row"`
}

// WinResult 单条中奖记录
type WinResult struct {
	Type       string          `json:"type"` // line | scatter
	Symbol     int64           `json:"symbol"`
	Line       int             `json:"line"` // 线号，scatter 为 -1
	Positions  []GridPos       `json:"positions"`
	Count      int             `json:"count"`
	Multiplier int64           `json:"multiplier"`
	Amount     decimal.Decimal `json:"amount"`
}

// SpinRequest 下注请求
type SpinRequest struct {
	Bet   decimal.Decimal `json:"bet"`
	Lines int             `json:"lines"`
	Reels int             `json:"reels"`
	Rows  int             `json:"rows"`
}

// SpinResponse 一次spin的完整结果。产生后不可变。
type SpinResponse struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId"`
	Symbols       [][]int64       `json:"symbols"` // 列优先
	Wins          []WinResult     `json:"wins"`
	TotalWin      decimal.Decimal `json:"totalWin"`
	Balance       decimal.Decimal `json:"balance"`
	Features      []string        `json:"features,omitempty"`
	FreeSpins     int64           `json:"freeSpins,omitempty"`
	Multiplier    int64           `json:"multiplier"`
	Timestamp     int64           `json:"timestamp"`
}

// SymbolConfig 符号定义：赔付表按连线个数索引（Pays[n-1] 为 n 连倍率）
type SymbolConfig struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Category string  `json:"category"`
	Asset    string  `json:"asset"`
	Weight   int     `json:"weight"`
	Pays     []int64 `json:"pays"`
}

// Payline 一条赔付线：每个滚轴取一个行号
type Payline []int

// BetConfig 下注配置
type BetConfig struct {
	MinBet     decimal.Decimal   `json:"minBet"`
	MaxBet     decimal.Decimal   `json:"maxBet"`
	DefaultBet decimal.Decimal   `json:"defaultBet"`
	BetLevels  []decimal.Decimal `json:"betLevels"`
	MinLines   int               `json:"minLines"`
	MaxLines   int               `json:"maxLines"`
}

// Session RGS 会话。所有spin交易要求会话存活。
type Session struct {
	ID       string          `json:"id"`
	GameID   int64           `json:"gameId"`
	PlayerID string          `json:"playerId"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Bet      BetConfig       `json:"bet"`
}

// SceneData 跨spin持久化的会话场景（免费游戏进度等）
type SceneData struct {
	FreeSpinsRemaining int64 `json:"freeNum"`
	FreeSpinsTotal     int64 `json:"freeTotal"`
	FreeMultiplier     int64 `json:"freeMultiplier"`
	ScatterCollected   int64 `json:"scatterCollected"`
}

// SlamStopStatus 滚轴急停状态快照
type SlamStopStatus struct {
	Reel      int  `json:"reel"`
	IsStopped bool `json:"isStopped"`
	Slammed   bool `json:"slammed"`
}
