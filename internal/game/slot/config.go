package slot

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// GameConfig 游戏配置。内置默认值来自 _gameJsonConfigsRaw，可被外部覆盖。
type GameConfig struct {
	GameID       int64          `json:"game_id"`
	Reels        int            `json:"reels"`
	Rows         int            `json:"rows"`
	Symbols      []SymbolConfig `json:"symbols"`
	PaylineCount int            `json:"payline_count"`
	ScatterPays  []int64        `json:"scatter_pays"`     // 按scatter个数索引（scatterPays[n-1]），全盘计数
	FreeSpins    []int64        `json:"free_spin_count"`  // 对应scatter 1~5个时奖励的免费次数
	FreeMulti    int64          `json:"free_multiplier"`  // 免费游戏期间的盈利倍数
	RTPTarget    float64        `json:"rtp_target"`
	Volatility   string         `json:"volatility"`
	Bet          BetConfigJSON  `json:"bet"`
	Animation    AnimationConf  `json:"animation"`

	weightSum int                     `json:"-"`
	symbolMap map[int64]*SymbolConfig `json:"-"`
}

// BetConfigJSON 下注配置的JSON形态（金额为字符串，避免浮点误差）
type BetConfigJSON struct {
	MinBet     string   `json:"min_bet"`
	MaxBet     string   `json:"max_bet"`
	DefaultBet string   `json:"default_bet"`
	BetLevels  []string `json:"bet_levels"`
	MinLines   int      `json:"min_lines"`
	MaxLines   int      `json:"max_lines"`
}

// AnimationConf 动画时序参数
type AnimationConf struct {
	SpinSpeed      float64 `json:"spin_speed"`       // 匀速阶段速度（像素/秒）
	EasingName     string  `json:"easing"`           // 减速缓动曲线名
	SymbolHeight   float64 `json:"symbol_height"`    // 符号槽位高度（像素）
	BufferDepth    int     `json:"buffer_depth"`     // 可视窗口上下缓冲符号数
	AccelMs        int64   `json:"accel_ms"`
	DecelMs        int64   `json:"decel_ms"`
	SettleMs       int64   `json:"settle_ms"`
	MinSpinMs      int64   `json:"min_spin_ms"`
	StartStaggerMs int64   `json:"start_stagger_ms"`
	StopStaggerMs  int64   `json:"stop_stagger_ms"`
	BlurEnabled    bool    `json:"blur_enabled"`
	MaskEnabled    bool    `json:"mask_enabled"`
}

func (a *AnimationConf) accelDuration() time.Duration   { return time.Duration(a.AccelMs) * time.Millisecond }
func (a *AnimationConf) decelDuration() time.Duration   { return time.Duration(a.DecelMs) * time.Millisecond }
func (a *AnimationConf) settleDuration() time.Duration  { return time.Duration(a.SettleMs) * time.Millisecond }
func (a *AnimationConf) minSpinDuration() time.Duration { return time.Duration(a.MinSpinMs) * time.Millisecond }
func (a *AnimationConf) startStagger() time.Duration {
	return time.Duration(a.StartStaggerMs) * time.Millisecond
}
func (a *AnimationConf) stopStagger() time.Duration {
	return time.Duration(a.StopStaggerMs) * time.Millisecond
}

// DefaultConfig 解析内置配置。解析失败属于程序性错误，直接panic。
func DefaultConfig() *GameConfig {
	cfg := &GameConfig{}
	if err := jsoniter.UnmarshalFromString(_gameJsonConfigsRaw, cfg); err != nil {
		panic(err)
	}
	if err := cfg.normalize(); err != nil {
		panic(err)
	}
	return cfg
}

// ParseConfig 解析外部配置JSON
func ParseConfig(raw string) (*GameConfig, error) {
	cfg := &GameConfig{}
	if err := jsoniter.UnmarshalFromString(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse game config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize 校验配置并预计算权重总和、符号索引
func (c *GameConfig) normalize() error {
	if c.GameID <= 0 {
		c.GameID = _gameID
	}
	if c.Reels <= 0 {
		c.Reels = _defaultReelCount
	}
	if c.Rows <= 0 {
		c.Rows = _defaultRowCount
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("game config: no symbols")
	}
	c.weightSum = 0
	c.symbolMap = make(map[int64]*SymbolConfig, len(c.Symbols))
	for i := range c.Symbols {
		s := &c.Symbols[i]
		if s.Weight < 0 {
			return fmt.Errorf("game config: symbol %d negative weight", s.ID)
		}
		c.weightSum += s.Weight
		c.symbolMap[s.ID] = s
	}
	if c.weightSum <= 0 {
		return fmt.Errorf("game config: symbol weight sum <= 0")
	}
	if c.PaylineCount <= 0 {
		c.PaylineCount = 10
	}
	if c.Animation.SpinSpeed <= 0 {
		c.Animation.SpinSpeed = _defaultSpinSpeed
	}
	if c.Animation.SymbolHeight <= 0 {
		c.Animation.SymbolHeight = _defaultSymbolHeight
	}
	if c.Animation.BufferDepth <= 0 {
		c.Animation.BufferDepth = _defaultBufferDepth
	}
	if c.Animation.AccelMs <= 0 {
		c.Animation.AccelMs = _defaultAccelDuration.Milliseconds()
	}
	if c.Animation.DecelMs <= 0 {
		c.Animation.DecelMs = _defaultDecelDuration.Milliseconds()
	}
	if c.Animation.SettleMs <= 0 {
		c.Animation.SettleMs = _defaultSettleDuration.Milliseconds()
	}
	if c.Animation.MinSpinMs <= 0 {
		c.Animation.MinSpinMs = _defaultMinSpinTime.Milliseconds()
	}
	if c.Animation.StartStaggerMs <= 0 {
		c.Animation.StartStaggerMs = _defaultStartStagger.Milliseconds()
	}
	if c.Animation.StopStaggerMs <= 0 {
		c.Animation.StopStaggerMs = _defaultStopStagger.Milliseconds()
	}
	if c.Animation.EasingName == "" {
		c.Animation.EasingName = "backOut"
	}
	if c.FreeMulti <= 0 {
		c.FreeMulti = 1
	}
	return nil
}

// Symbol 按ID取符号定义，未知ID返回nil
func (c *GameConfig) Symbol(id int64) *SymbolConfig {
	return c.symbolMap[id]
}

// BetConfig 解析下注配置为decimal形态
func (c *GameConfig) BetConfig() BetConfig {
	bc := BetConfig{
		MinBet:     mustDecimal(c.Bet.MinBet, "0.10"),
		MaxBet:     mustDecimal(c.Bet.MaxBet, "100.00"),
		DefaultBet: mustDecimal(c.Bet.DefaultBet, "1.00"),
		MinLines:   c.Bet.MinLines,
		MaxLines:   c.Bet.MaxLines,
	}
	if bc.MinLines <= 0 {
		bc.MinLines = 1
	}
	if bc.MaxLines <= 0 {
		bc.MaxLines = c.PaylineCount
	}
	for _, lv := range c.Bet.BetLevels {
		bc.BetLevels = append(bc.BetLevels, mustDecimal(lv, "1.00"))
	}
	return bc
}

func mustDecimal(s, fallback string) decimal.Decimal {
	if s == "" {
		s = fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

// randomSymbol 按权重随机一个符号ID（wild/scatter权重最低，低级符号最高）
func (c *GameConfig) randomSymbol() int64 {
	r := randIntn(c.weightSum)
	for i := range c.Symbols {
		r -= c.Symbols[i].Weight
		if r < 0 {
			return c.Symbols[i].ID
		}
	}
	return c.Symbols[len(c.Symbols)-1].ID
}

// 内置默认配置：5x3、10线、12个符号。权重与赔付表按 rtp_target 标定。
const _gameJsonConfigsRaw = `{
  "game_id": 20101,
  "reels": 5,
  "rows": 3,
  "payline_count": 10,
  "scatter_pays": [0, 0, 2, 10, 50],
  "free_spin_count": [0, 0, 7, 10, 15],
  "free_multiplier": 2,
  "rtp_target": 0.95,
  "volatility": "medium",
  "symbols": [
    {"id": 1,  "code": "9",    "category": "low",     "asset": "sym_9.png",    "weight": 160, "pays": [0, 0, 3, 6, 15]},
    {"id": 2,  "code": "10",   "category": "low",     "asset": "sym_10.png",   "weight": 160, "pays": [0, 0, 3, 6, 15]},
    {"id": 3,  "code": "J",    "category": "low",     "asset": "sym_j.png",    "weight": 140, "pays": [0, 0, 3, 8, 20]},
    {"id": 4,  "code": "Q",    "category": "low",     "asset": "sym_q.png",    "weight": 140, "pays": [0, 0, 3, 8, 20]},
    {"id": 5,  "code": "K",    "category": "medium",  "asset": "sym_k.png",    "weight": 100, "pays": [0, 0, 5, 15, 40]},
    {"id": 6,  "code": "A",    "category": "medium",  "asset": "sym_a.png",    "weight": 100, "pays": [0, 0, 5, 15, 40]},
    {"id": 7,  "code": "GEM",  "category": "high",    "asset": "sym_gem.png",  "weight": 60,  "pays": [0, 0, 10, 30, 80]},
    {"id": 8,  "code": "BELL", "category": "high",    "asset": "sym_bell.png", "weight": 50,  "pays": [0, 0, 15, 50, 120]},
    {"id": 9,  "code": "STAR", "category": "high",    "asset": "sym_star.png", "weight": 40,  "pays": [0, 0, 20, 80, 250]},
    {"id": 10, "code": "BONUS","category": "bonus",   "asset": "sym_bonus.png","weight": 20,  "pays": [0, 0, 0, 0, 0]},
    {"id": 11, "code": "SCAT", "category": "scatter", "asset": "sym_scat.png", "weight": 14,  "pays": [0, 0, 0, 0, 0]},
    {"id": 12, "code": "WILD", "category": "wild",    "asset": "sym_wild.png", "weight": 10,  "pays": [0, 0, 30, 120, 500]}
  ],
  "bet": {
    "min_bet": "0.10",
    "max_bet": "100.00",
    "default_bet": "1.00",
    "bet_levels": ["0.10", "0.20", "0.50", "1.00", "2.00", "5.00", "10.00", "20.00", "50.00", "100.00"],
    "min_lines": 1,
    "max_lines": 10
  },
  "animation": {
    "spin_speed": 2400,
    "easing": "backOut",
    "symbol_height": 100,
    "buffer_depth": 4,
    "accel_ms": 300,
    "decel_ms": 450,
    "settle_ms": 180,
    "min_spin_ms": 800,
    "start_stagger_ms": 120,
    "stop_stagger_ms": 250,
    "blur_enabled": false,
    "mask_enabled": true
  }
}`
