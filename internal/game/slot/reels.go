package slot

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 滚轴动画阶段。同一滚轴内严格按 加速->匀速->减速->落位 顺序推进，互不重叠。
type reelPhase int

const (
	phaseIdle reelPhase = iota
	phaseAccel
	phaseCruise
	phaseDecel
	phaseSettling
)

// visualSymbol 滚轴上的一个可视符号。y为符号顶边相对列容器的纵坐标。
type visualSymbol struct {
	id     SpriteID
	symbol int64
	y      float64
	// 落位tween的起止位置
	settleFrom float64
	settleTo   float64
	finalist   bool
}

// reelVisual 单列滚轴的可视状态。进入spinning时创建符号带，
// 落位完成后仅保留可见窗口内的定格符号，其余回池。
type reelVisual struct {
	index      int
	syms       []*visualSymbol
	phase      reelPhase
	phaseStart time.Time
	lastTick   time.Time
	target     []int64 // 停止目标符号列（自上而下）
	onSettled  func(reel int)
	visible    bool
	pending    []SpriteID // 落位后待释放的非定格符号
}

// ReelEngine 滚轴动画子系统：无限滚动符号回收、减速缓动、逐列遮罩。
// 速度曲线由经过时间计算而非帧数，播放速度与刷新率无关。
// 本组件独占全部可视句柄，不读写GameState，只接受编排层指令。
type ReelEngine struct {
	mu      sync.Mutex
	cfg     *GameConfig
	anim    AnimationConf // 本组件私有副本，随SetAnimation更新，调度线程只读它
	clock   Clock
	surface Surface
	pool    *SymbolPool
	log     *zap.Logger

	reels       []*reelVisual
	reelCount   int
	rowCount    int
	maskEnabled bool
	decelEase   Easing

	// 首个成功测量的纹理确定的统一缩放，混合分辨率素材按此渲染
	standardScale float64
}

func NewReelEngine(cfg *GameConfig, clock Clock, surface Surface, logger *zap.Logger) *ReelEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &ReelEngine{
		cfg:         cfg,
		anim:        cfg.Animation,
		clock:       clock,
		surface:     surface,
		pool:        NewSymbolPool(surface),
		log:         logger,
		maskEnabled: cfg.Animation.MaskEnabled,
		decelEase:   EasingByName(cfg.Animation.EasingName),
	}
}

func (e *ReelEngine) symbolHeight() float64 { return e.anim.SymbolHeight }
func (e *ReelEngine) visibleHeight() float64 {
	return float64(e.rowCount) * e.symbolHeight()
}

// recycleThreshold 回收阈值：可见高度 + 2倍符号高
func (e *ReelEngine) recycleThreshold() float64 {
	return e.visibleHeight() + 2*e.symbolHeight()
}

// SetupGrid 重建滚轴容器。旧容器与全部句柄先归还再释放，不留悬挂元素。
func (e *ReelEngine) SetupGrid(reels, rows int, initial [][]int64) {
	e.mu.Lock()
	e.teardownLocked()
	e.reelCount = reels
	e.rowCount = rows
	e.reels = make([]*reelVisual, reels)
	for i := 0; i < reels; i++ {
		rv := &reelVisual{index: i, phase: phaseIdle, visible: true}
		for row := 0; row < rows; row++ {
			symID := e.cfg.Symbols[0].ID
			if initial != nil && i < len(initial) && row < len(initial[i]) {
				symID = initial[i][row]
			}
			vs := e.acquireSymbolLocked(symID)
			vs.y = float64(row) * e.symbolHeight()
			rv.syms = append(rv.syms, vs)
			e.surface.SetPosition(vs.id, e.reelX(i), vs.y)
		}
		e.reels[i] = rv
		if e.maskEnabled {
			e.surface.SetMask(i, e.maskRect(i))
		}
	}
	e.mu.Unlock()
	// 旧盘面多出的空闲句柄就地销毁，池规模跟随新盘面
	e.pool.Drain()
}

func (e *ReelEngine) reelX(i int) float64 {
	return float64(i) * e.symbolHeight() // 列距与符号宽一致的方形槽位
}

func (e *ReelEngine) maskRect(i int) Rect {
	return Rect{X: e.reelX(i), Y: 0, W: e.symbolHeight(), H: e.visibleHeight()}
}

// acquireSymbolLocked 从池中取一个符号元素；纹理失败则替换占位图
func (e *ReelEngine) acquireSymbolLocked(symbolID int64) *visualSymbol {
	asset, code := e.assetFor(symbolID)
	id, size, err := e.pool.Acquire(asset)
	if err != nil {
		e.log.Warn("texture load failed, substituting placeholder",
			zap.String("asset", asset), zap.Error(err))
		id, size, err = e.pool.Acquire(PlaceholderAsset(code))
		if err != nil {
			// 占位图生成是本地操作，不应失败；失败时保留句柄0，盘面仍不产生空洞
			e.log.Error("placeholder acquire failed", zap.Error(err))
		}
	}
	if e.standardScale == 0 && size.H > 0 {
		e.standardScale = e.symbolHeight() / size.H
	}
	if e.standardScale > 0 {
		e.surface.SetScale(id, e.standardScale)
	}
	return &visualSymbol{id: id, symbol: symbolID}
}

func (e *ReelEngine) assetFor(symbolID int64) (asset, code string) {
	if s := e.cfg.Symbol(symbolID); s != nil {
		return s.Asset, s.Code
	}
	return PlaceholderAsset("?"), "?"
}

// StartReel 滚轴进入加速阶段。在可见窗口上下补足缓冲符号。
func (e *ReelEngine) StartReel(i int) {
	e.mu.Lock()
	rv := e.reelAt(i)
	if rv == nil || rv.phase != phaseIdle {
		e.mu.Unlock()
		return
	}
	buf := e.anim.BufferDepth
	h := e.symbolHeight()
	// 上缓冲
	for k := 1; k <= buf; k++ {
		vs := e.acquireSymbolLocked(e.cfg.randomSymbol())
		vs.y = -float64(k) * h
		rv.syms = append(rv.syms, vs)
		e.surface.SetPosition(vs.id, e.reelX(i), vs.y)
	}
	// 下缓冲
	for k := 0; k < buf; k++ {
		vs := e.acquireSymbolLocked(e.cfg.randomSymbol())
		vs.y = e.visibleHeight() + float64(k)*h
		rv.syms = append(rv.syms, vs)
		e.surface.SetPosition(vs.id, e.reelX(i), vs.y)
	}
	now := e.clock.Now()
	rv.phase = phaseAccel
	rv.phaseStart = now
	rv.lastTick = now
	rv.target = nil
	rv.onSettled = nil
	e.mu.Unlock()
}

// StopReel 滚轴进入减速阶段，携带最终符号列。落位完成后回调onSettled。
func (e *ReelEngine) StopReel(i int, target []int64, onSettled func(reel int)) {
	e.mu.Lock()
	rv := e.reelAt(i)
	if rv == nil || (rv.phase != phaseAccel && rv.phase != phaseCruise) {
		e.mu.Unlock()
		return
	}
	rv.phase = phaseDecel
	rv.phaseStart = e.clock.Now()
	rv.target = append([]int64(nil), target...)
	rv.onSettled = onSettled
	e.mu.Unlock()
}

// SlamReel 急停：跳过剩余减速时间，立即走同一套落位流程。
// 尚未起动的滚轴直接换上最终符号并视为已定格。
func (e *ReelEngine) SlamReel(i int, target []int64, onSettled func(reel int)) {
	e.mu.Lock()
	rv := e.reelAt(i)
	if rv == nil {
		e.mu.Unlock()
		return
	}
	if rv.phase == phaseIdle {
		for row, vs := range rv.syms {
			if row < len(target) && vs.symbol != target[row] {
				e.retextureLocked(vs, target[row])
			}
		}
		e.mu.Unlock()
		if onSettled != nil {
			onSettled(i)
		}
		return
	}
	if rv.phase == phaseSettling {
		e.mu.Unlock()
		return
	}
	rv.target = append([]int64(nil), target...)
	rv.onSettled = onSettled
	e.enterSettleLocked(rv, e.clock.Now())
	e.mu.Unlock()
}

// Tick 推进一帧。所有滚轴按当前时刻计算各自阶段进度。
func (e *ReelEngine) Tick(now time.Time) {
	var settled []func(reel int)
	var settledIdx []int

	e.mu.Lock()
	for _, rv := range e.reels {
		if rv == nil || rv.phase == phaseIdle {
			continue
		}
		switch rv.phase {
		case phaseAccel, phaseCruise:
			e.advanceScrollLocked(rv, now)
		case phaseDecel:
			e.advanceScrollLocked(rv, now)
			if now.Sub(rv.phaseStart) >= e.anim.decelDuration() {
				e.enterSettleLocked(rv, now)
			}
		case phaseSettling:
			if done := e.advanceSettleLocked(rv, now); done {
				if rv.onSettled != nil {
					settled = append(settled, rv.onSettled)
					settledIdx = append(settledIdx, rv.index)
					rv.onSettled = nil
				}
			}
		}
		rv.lastTick = now
	}
	e.mu.Unlock()
	e.surface.Render()

	for i, fn := range settled {
		fn(settledIdx[i])
	}
}

// advanceScrollLocked 按速度曲线滚动并执行符号回收
func (e *ReelEngine) advanceScrollLocked(rv *reelVisual, now time.Time) {
	dt := now.Sub(rv.lastTick).Seconds()
	if dt <= 0 {
		return
	}
	vmax := e.anim.SpinSpeed
	var v float64
	switch rv.phase {
	case phaseAccel:
		t := float64(now.Sub(rv.phaseStart)) / float64(e.anim.accelDuration())
		if t >= 1 {
			rv.phase = phaseCruise
			rv.phaseStart = now
			v = vmax
		} else {
			v = vmax * easeInQuad(t)
		}
	case phaseCruise:
		v = vmax
	case phaseDecel:
		t := float64(now.Sub(rv.phaseStart)) / float64(e.anim.decelDuration())
		v = vmax * (1 - easeOutQuad(t))
		if v < 0 {
			v = 0
		}
	}

	dy := v * dt
	threshold := e.recycleThreshold()
	for _, vs := range rv.syms {
		vs.y += dy
	}
	// 回收：滚出下边界阈值的符号传送到最上方。匀速阶段换随机纹理，
	// 减速阶段保持原纹理，避免定格前出现符号跳变。
	for _, vs := range rv.syms {
		if vs.y > threshold {
			topY := rv.syms[0].y
			for _, o := range rv.syms {
				if o.y < topY {
					topY = o.y
				}
			}
			vs.y = topY - e.symbolHeight()
			if rv.phase != phaseDecel {
				symID := e.cfg.randomSymbol()
				e.retextureLocked(vs, symID)
			}
		}
	}
	for _, vs := range rv.syms {
		e.surface.SetPosition(vs.id, e.reelX(rv.index), vs.y)
	}
}

func (e *ReelEngine) retextureLocked(vs *visualSymbol, symbolID int64) {
	asset, code := e.assetFor(symbolID)
	if _, err := e.pool.Retexture(vs.id, asset); err != nil {
		e.log.Warn("retexture failed, substituting placeholder",
			zap.String("asset", asset), zap.Error(err))
		_, _ = e.pool.Retexture(vs.id, PlaceholderAsset(code))
	}
	vs.symbol = symbolID
}

// enterSettleLocked 落位：为每个可见行挑选当前离目标槽位最近的符号，
// 换上最终纹理并用短tween吸附；未入选的符号淡出后回池。
func (e *ReelEngine) enterSettleLocked(rv *reelVisual, now time.Time) {
	h := e.symbolHeight()
	claimed := make(map[*visualSymbol]bool)

	for row := 0; row < e.rowCount; row++ {
		slotY := float64(row) * h
		var best *visualSymbol
		bestDist := math.MaxFloat64
		for _, vs := range rv.syms {
			if claimed[vs] {
				continue
			}
			if d := math.Abs(vs.y - slotY); d < bestDist {
				bestDist = d
				best = vs
			}
		}
		if best == nil {
			continue
		}
		claimed[best] = true
		best.finalist = true
		best.settleFrom = best.y
		best.settleTo = slotY
		if row < len(rv.target) && best.symbol != rv.target[row] {
			e.retextureLocked(best, rv.target[row])
		}
	}

	// 未入选符号：淡出后释放，不做生硬移除
	var finalists []*visualSymbol
	for _, vs := range rv.syms {
		if vs.finalist {
			finalists = append(finalists, vs)
			continue
		}
		e.surface.FadeOut(vs.id, e.anim.settleDuration())
		rv.pending = append(rv.pending, vs.id)
	}
	rv.syms = finalists
	rv.phase = phaseSettling
	rv.phaseStart = now
}

// advanceSettleLocked 推进落位tween。返回true表示本滚轴已定格。
func (e *ReelEngine) advanceSettleLocked(rv *reelVisual, now time.Time) bool {
	t := float64(now.Sub(rv.phaseStart)) / float64(e.anim.settleDuration())
	p := e.decelEase(t)
	for _, vs := range rv.syms {
		vs.y = vs.settleFrom + (vs.settleTo-vs.settleFrom)*p
		e.surface.SetPosition(vs.id, e.reelX(rv.index), vs.y)
	}
	if t < 1 {
		return false
	}
	// 精确吸附并释放待回收符号
	for _, vs := range rv.syms {
		vs.y = vs.settleTo
		vs.finalist = false
		e.surface.SetPosition(vs.id, e.reelX(rv.index), vs.y)
	}
	for _, id := range rv.pending {
		e.pool.Release(id)
	}
	rv.pending = nil
	rv.phase = phaseIdle
	// 按行序排列，后续高亮按行定位
	sortByY(rv.syms)
	return true
}

func sortByY(syms []*visualSymbol) {
	for i := 1; i < len(syms); i++ {
		for j := i; j > 0 && syms[j].y < syms[j-1].y; j-- {
			syms[j], syms[j-1] = syms[j-1], syms[j]
		}
	}
}

// IsSpinning 指定滚轴是否仍在动画中
func (e *ReelEngine) IsSpinning(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rv := e.reelAt(i)
	return rv != nil && rv.phase != phaseIdle
}

// AllIdle 全部滚轴是否已定格
func (e *ReelEngine) AllIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rv := range e.reels {
		if rv != nil && rv.phase != phaseIdle {
			return false
		}
	}
	return true
}

// SymbolCount 指定滚轴当前的可视符号数（可见+缓冲）
func (e *ReelEngine) SymbolCount(i int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	rv := e.reelAt(i)
	if rv == nil {
		return 0
	}
	return len(rv.syms)
}

// PoolCounts 池内在用/空闲元素数
func (e *ReelEngine) PoolCounts() (inUse, free int) {
	return e.pool.InUseCount(), e.pool.FreeCount()
}

// SetMaskEnabled 全局遮罩开关。关闭后符号可溢出盘面（调试/特效状态）。
func (e *ReelEngine) SetMaskEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maskEnabled = enabled
	for _, rv := range e.reels {
		if rv == nil {
			continue
		}
		if enabled && rv.visible {
			e.surface.SetMask(rv.index, e.maskRect(rv.index))
		} else {
			e.surface.ClearMask(rv.index)
		}
	}
}

// ShowReel 单列显示/隐藏（矩形裁剪区域）
func (e *ReelEngine) ShowReel(i int, visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rv := e.reelAt(i)
	if rv == nil {
		return
	}
	rv.visible = visible
	for _, vs := range rv.syms {
		e.surface.SetVisible(vs.id, visible)
	}
	if e.maskEnabled && visible {
		e.surface.SetMask(i, e.maskRect(i))
	}
}

// HighlightPositions 给中奖位置加发光滤镜
func (e *ReelEngine) HighlightPositions(positions []GridPos) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range positions {
		rv := e.reelAt(p.Reel)
		if rv == nil || p.Row < 0 || p.Row >= len(rv.syms) {
			continue
		}
		e.surface.ApplyFilter(rv.syms[p.Row].id, "glow")
	}
}

// ClearHighlights 清除全部滤镜
func (e *ReelEngine) ClearHighlights() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rv := range e.reels {
		if rv == nil {
			continue
		}
		for _, vs := range rv.syms {
			e.surface.ClearFilter(vs.id)
		}
	}
}

// SetEasing 更换减速/落位缓动曲线
func (e *ReelEngine) SetEasing(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decelEase = EasingByName(name)
}

// SetAnimation 整体替换动画参数。滚轴推进只读本副本，
// 配置热更新不与Tick所在的调度线程发生共享写。
func (e *ReelEngine) SetAnimation(a AnimationConf) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anim = a
	if a.EasingName != "" {
		e.decelEase = EasingByName(a.EasingName)
	}
}

// StandardScale 统一符号缩放（0表示尚未测得任何纹理尺寸）
func (e *ReelEngine) StandardScale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.standardScale
}

// Dispose 释放全部滚轴与池资源
func (e *ReelEngine) Dispose() {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()
	e.pool.Dispose()
}

// teardownLocked 归还全部滚轴句柄并清除遮罩
func (e *ReelEngine) teardownLocked() {
	for _, rv := range e.reels {
		if rv == nil {
			continue
		}
		for _, vs := range rv.syms {
			e.pool.Release(vs.id)
		}
		for _, id := range rv.pending {
			e.pool.Release(id)
		}
		e.surface.ClearMask(rv.index)
	}
	e.reels = nil
}

func (e *ReelEngine) reelAt(i int) *reelVisual {
	if i < 0 || i >= len(e.reels) {
		return nil
	}
	return e.reels[i]
}
