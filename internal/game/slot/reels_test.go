package slot

import (
	"testing"
	"time"
)

func newTestEngine(t *testing.T) (*GameConfig, *ManualClock, *RecordingSurface, *ReelEngine) {
	t.Helper()
	cfg := DefaultConfig()
	clock := NewManualClock(time.Unix(1000, 0))
	surface := NewRecordingSurface()
	return cfg, clock, surface, NewReelEngine(cfg, clock, surface, nil)
}

func initialGrid(cfg *GameConfig, sym int64) [][]int64 {
	grid := make([][]int64, cfg.Reels)
	for i := range grid {
		grid[i] = make([]int64, cfg.Rows)
		for r := range grid[i] {
			grid[i][r] = sym
		}
	}
	return grid
}

// 推进一帧：时钟前进16ms后跑一次Tick
func tickFrame(clock *ManualClock, e *ReelEngine) {
	clock.Advance(16 * time.Millisecond)
	e.Tick(clock.Now())
}

func TestSetupGridCreatesVisibleSymbols(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))

	for i := 0; i < cfg.Reels; i++ {
		if n := e.SymbolCount(i); n != cfg.Rows {
			t.Errorf("reel %d symbol count = %d, want %d", i, n, cfg.Rows)
		}
	}
	if !e.AllIdle() {
		t.Error("freshly built grid should be idle")
	}
	inUse, _ := e.PoolCounts()
	if want := cfg.Reels * cfg.Rows; inUse != want {
		t.Errorf("pool in-use = %d, want %d", inUse, want)
	}
	if surface.AliveCount() != cfg.Reels*cfg.Rows {
		t.Errorf("alive sprites = %d, want %d", surface.AliveCount(), cfg.Reels*cfg.Rows)
	}
}

// 改盘面尺寸后池随新盘面收缩，不留旧盘面的悬挂元素
func TestGridResizeDrainsPool(t *testing.T) {
	_, _, surface, e := newTestEngine(t)
	e.SetupGrid(5, 3, nil)
	e.SetupGrid(3, 3, nil)

	inUse, free := e.PoolCounts()
	if inUse != 9 {
		t.Errorf("in-use = %d after resize, want 9", inUse)
	}
	if free != 0 {
		t.Errorf("free = %d after resize, want 0 (drained)", free)
	}
	if surface.AliveCount() != 9 {
		t.Errorf("alive sprites = %d after resize, want 9", surface.AliveCount())
	}
}

// 匀速滚动期间符号只回收复用，总数不变
func TestScrollRecyclesWithoutAllocating(t *testing.T) {
	cfg, clock, _, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))
	e.StartReel(0)

	want := cfg.Rows + 2*cfg.Animation.BufferDepth
	if n := e.SymbolCount(0); n != want {
		t.Fatalf("symbol count after start = %d, want %d", n, want)
	}
	// 跑过加速进入匀速，再滚两秒
	for i := 0; i < 150; i++ {
		tickFrame(clock, e)
		if n := e.SymbolCount(0); n != want {
			t.Fatalf("symbol count drifted to %d at frame %d, want %d", n, i, want)
		}
	}
	if !e.IsSpinning(0) {
		t.Error("reel should still be spinning")
	}
	if e.IsSpinning(1) {
		t.Error("reel 1 never started")
	}
}

// 减速阶段不换纹理，定格前符号不跳变
func TestNoRetextureDuringDecel(t *testing.T) {
	cfg, clock, surface, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))
	e.StartReel(0)
	for i := 0; i < 40; i++ { // 过加速段
		tickFrame(clock, e)
	}
	e.StopReel(0, []int64{_midK, _midA, _highGem}, nil)
	surface.ResetCommands()

	elapsed := time.Duration(0)
	for elapsed+16*time.Millisecond < cfg.Animation.decelDuration() {
		tickFrame(clock, e)
		elapsed += 16 * time.Millisecond
	}
	for _, c := range surface.Commands() {
		if c.Op == "texture" || c.Op == "create" {
			t.Fatalf("surface op %q during decel", c.Op)
		}
	}
}

func TestStopReelSettlesAndReleasesBuffer(t *testing.T) {
	cfg, clock, _, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))
	e.StartReel(0)
	for i := 0; i < 40; i++ {
		tickFrame(clock, e)
	}

	settledReel := -1
	e.StopReel(0, []int64{_midK, _midA, _highGem}, func(reel int) { settledReel = reel })

	// 减速+落位窗口内逐帧推进
	for i := 0; i < 60 && settledReel < 0; i++ {
		tickFrame(clock, e)
	}
	if settledReel != 0 {
		t.Fatalf("onSettled reel = %d, want 0", settledReel)
	}
	if e.IsSpinning(0) {
		t.Error("reel not idle after settle")
	}
	if n := e.SymbolCount(0); n != cfg.Rows {
		t.Errorf("symbol count after settle = %d, want %d", n, cfg.Rows)
	}
	// 缓冲符号全部回池
	inUse, free := e.PoolCounts()
	if inUse != cfg.Reels*cfg.Rows {
		t.Errorf("pool in-use = %d after settle, want %d", inUse, cfg.Reels*cfg.Rows)
	}
	if free != 2*cfg.Animation.BufferDepth {
		t.Errorf("pool free = %d after settle, want %d", free, 2*cfg.Animation.BufferDepth)
	}
}

// 急停未起动的滚轴：直接换最终符号并同步回调
func TestSlamIdleReelSettlesInline(t *testing.T) {
	cfg, _, _, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))

	settled := false
	e.SlamReel(2, []int64{_wild, _wild, _wild}, func(reel int) {
		if reel != 2 {
			t.Errorf("settled reel = %d, want 2", reel)
		}
		settled = true
	})
	if !settled {
		t.Fatal("idle slam must invoke onSettled inline")
	}
	if e.IsSpinning(2) {
		t.Error("slammed idle reel should stay idle")
	}
}

// 急停滚动中的滚轴：跳过剩余减速，直接走落位
func TestSlamSpinningReelSkipsDecel(t *testing.T) {
	cfg, clock, _, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))
	e.StartReel(0)
	for i := 0; i < 40; i++ {
		tickFrame(clock, e)
	}

	settled := false
	e.SlamReel(0, []int64{_midK, _midA, _highGem}, func(int) { settled = true })
	if settled {
		t.Fatal("spinning slam settles via tween, not inline")
	}
	// 只需落位时长即可定格，无需等完减速
	frames := int(cfg.Animation.settleDuration()/(16*time.Millisecond)) + 2
	for i := 0; i < frames && !settled; i++ {
		tickFrame(clock, e)
	}
	if !settled {
		t.Fatal("slammed reel never settled within settle window")
	}
}

// 纹理加载失败替换占位图，盘面不产生空洞
func TestFailedTextureFallsBackToPlaceholder(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	surface.FailAsset("sym_9.png")
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))

	placeholder := 0
	for _, c := range surface.Commands() {
		if c.Op == "create" && c.Asset == PlaceholderAsset("9") {
			placeholder++
		}
	}
	if placeholder != cfg.Reels*cfg.Rows {
		t.Errorf("placeholder creates = %d, want %d", placeholder, cfg.Reels*cfg.Rows)
	}
	if surface.AliveCount() != cfg.Reels*cfg.Rows {
		t.Errorf("alive = %d, want %d", surface.AliveCount(), cfg.Reels*cfg.Rows)
	}
}

// 首个测得的纹理尺寸决定统一缩放，混合分辨率素材按同一比例渲染
func TestStandardScaleFromFirstTexture(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	surface.SetAssetSize("sym_9.png", Size{W: 200, H: 200})
	e.SetupGrid(cfg.Reels, cfg.Rows, initialGrid(cfg, _low9))

	if got := e.StandardScale(); got != 0.5 {
		t.Errorf("standard scale = %v, want 0.5 (100/200)", got)
	}
}

func TestMaskToggle(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, nil)
	surface.ResetCommands()

	e.SetMaskEnabled(false)
	unmask := 0
	for _, c := range surface.Commands() {
		if c.Op == "unmask" {
			unmask++
		}
	}
	if unmask != cfg.Reels {
		t.Errorf("unmask ops = %d, want %d", unmask, cfg.Reels)
	}

	surface.ResetCommands()
	e.SetMaskEnabled(true)
	mask := 0
	for _, c := range surface.Commands() {
		if c.Op == "mask" {
			mask++
		}
	}
	if mask != cfg.Reels {
		t.Errorf("mask ops = %d, want %d", mask, cfg.Reels)
	}
}

func TestHighlightAndClear(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, nil)
	surface.ResetCommands()

	e.HighlightPositions([]GridPos{{Reel: 0, Row: 0}, {Reel: 2, Row: 1}})
	filters := 0
	for _, c := range surface.Commands() {
		if c.Op == "filter" && c.Name == "glow" {
			filters++
		}
	}
	if filters != 2 {
		t.Errorf("glow filters = %d, want 2", filters)
	}

	surface.ResetCommands()
	e.ClearHighlights()
	cleared := 0
	for _, c := range surface.Commands() {
		if c.Op == "unfilter" {
			cleared++
		}
	}
	if cleared != cfg.Reels*cfg.Rows {
		t.Errorf("cleared filters = %d, want %d", cleared, cfg.Reels*cfg.Rows)
	}
}

func TestDisposeReleasesEverything(t *testing.T) {
	cfg, _, surface, e := newTestEngine(t)
	e.SetupGrid(cfg.Reels, cfg.Rows, nil)
	e.StartReel(0)
	e.Dispose()

	if surface.AliveCount() != 0 {
		t.Errorf("alive sprites = %d after dispose, want 0", surface.AliveCount())
	}
	inUse, free := e.PoolCounts()
	if inUse != 0 || free != 0 {
		t.Errorf("pool counts after dispose = (%d,%d), want (0,0)", inUse, free)
	}
}
