package slot

import "time"

const _gameID = 20101

const (
	_defaultReelCount = 5
	_defaultRowCount  = 3
)

// 符号ID定义（与内置配置 _gameJsonConfigsRaw 对应）
const (
	_blank    int64 = 0
	_low9     int64 = 1
	_low10    int64 = 2
	_lowJ     int64 = 3
	_lowQ     int64 = 4
	_midK     int64 = 5
	_midA     int64 = 6
	_highGem  int64 = 7
	_highBell int64 = 8
	_highStar int64 = 9
	_bonus    int64 = 10
	_scatter  int64 = 11
	_wild     int64 = 12
)

// 符号类别
const (
	CategoryWild    = "wild"
	CategoryScatter = "scatter"
	CategoryHigh    = "high"
	CategoryMedium  = "medium"
	CategoryLow     = "low"
	CategoryBonus   = "bonus"
)

const _minMatchCount = 3

// 游戏状态
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusReady         Status = "ready"
	StatusSpinning      Status = "spinning"
	StatusStopping      Status = "stopping"
	StatusEvaluating    Status = "evaluating"
	StatusShowingWin    Status = "showing_win"
	StatusFeatureActive Status = "feature_active"
	StatusError         Status = "error"
)

// 事件名定义（总线上的生命周期事件）
const (
	EventInitialized      = "initialized"
	EventStateChanged     = "state:changed"
	EventSpinStart        = "spin:start"
	EventSpinComplete     = "spin:complete"
	EventReelStart        = "reel:start"
	EventReelStop         = "reel:stop"
	EventWinEvaluate      = "win:evaluate"
	EventWinShow          = "win:show"
	EventFeatureTriggered = "feature:triggered"
	EventBalanceUpdated   = "balance:updated"
	EventError            = "error"
)

// 滚轴动画默认参数
const (
	_defaultSpinSpeed      = 2400.0 // 匀速阶段速度（像素/秒）
	_defaultAccelDuration  = 300 * time.Millisecond
	_defaultDecelDuration  = 450 * time.Millisecond
	_defaultSettleDuration = 180 * time.Millisecond
	_defaultMinSpinTime    = 800 * time.Millisecond
	_defaultStartStagger   = 120 * time.Millisecond
	_defaultStopStagger    = 250 * time.Millisecond
	_defaultFrameInterval  = 16 * time.Millisecond
	_defaultSymbolHeight   = 100.0
	_defaultBufferDepth    = 4 // 可视窗口上下各缓冲的符号数
)

const _stateHistoryLimit = 32

const _freeSpinFeatureID = "free_spins"

