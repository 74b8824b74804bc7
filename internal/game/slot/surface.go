package slot

import (
	"fmt"
	"sync"
	"time"
)

// ElementKind 可视元素类别（带类别标签的指令负载，替代无类型any）
type ElementKind string

const (
	ElementBackground ElementKind = "background"
	ElementFrame      ElementKind = "frame"
	ElementSymbol     ElementKind = "symbol"
	ElementText       ElementKind = "text"
	ElementParticle   ElementKind = "particle"
	ElementButton     ElementKind = "button"
)

// SpriteID 可视元素句柄
type SpriteID int64

// Size 纹理尺寸
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Rect 矩形裁剪区域
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Surface 绘图表面抽象。滚轴引擎只向它下发指令，不关心具体渲染后端。
// 纹理加载失败或超时应返回错误，由引擎侧替换占位图。
type Surface interface {
	CreateSprite(kind ElementKind, assetKey string) (SpriteID, Size, error)
	SetTexture(id SpriteID, assetKey string) (Size, error)
	SetPosition(id SpriteID, x, y float64)
	SetScale(id SpriteID, scale float64)
	SetVisible(id SpriteID, visible bool)
	SetMask(reel int, r Rect)
	ClearMask(reel int)
	ApplyFilter(id SpriteID, name string) // 高亮/发光等视觉滤镜
	ClearFilter(id SpriteID)
	FadeOut(id SpriteID, d time.Duration)
	Release(id SpriteID)
	Render()
}

// PlaceholderAsset 占位纹理key：实心色块+符号文本，保证盘面不出现空洞
func PlaceholderAsset(code string) string {
	return fmt.Sprintf("placeholder:%s", code)
}

// ========== 录制表面 ==========

// SurfaceCommand 一条被录制的绘图指令
type SurfaceCommand struct {
	Op    string      `json:"op"`
	ID    SpriteID    `json:"id,omitempty"`
	Kind  ElementKind `json:"kind,omitempty"`
	Asset string      `json:"asset,omitempty"`
	X     float64     `json:"x,omitempty"`
	Y     float64     `json:"y,omitempty"`
	Scale float64     `json:"scale,omitempty"`
	Reel  int         `json:"reel,omitempty"`
	Rect  *Rect       `json:"rect,omitempty"`
	Name  string      `json:"name,omitempty"`
	Ms    int64       `json:"ms,omitempty"`
	Show  bool        `json:"show,omitempty"`
}

// RecordingSurface 无头绘图表面：记录指令流，供测试断言与
// websocket推送给真正的渲染端回放。
type RecordingSurface struct {
	mu        sync.Mutex
	nextID    SpriteID
	alive     map[SpriteID]bool
	cmds      []SurfaceCommand
	sizes     map[string]Size // 指定资产的纹理尺寸，缺省100x100
	failing   map[string]bool // 模拟加载失败的资产
	onCommand func(SurfaceCommand)
}

func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{
		alive:   make(map[SpriteID]bool),
		sizes:   make(map[string]Size),
		failing: make(map[string]bool),
	}
}

// SetAssetSize 指定某资产的纹理尺寸（模拟混合分辨率素材）
func (s *RecordingSurface) SetAssetSize(assetKey string, size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[assetKey] = size
}

// FailAsset 令某资产加载失败（模拟纹理超时/丢失）
func (s *RecordingSurface) FailAsset(assetKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[assetKey] = true
}

// OnCommand 指令旁路回调（推送通道挂接点）
func (s *RecordingSurface) OnCommand(fn func(SurfaceCommand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommand = fn
}

func (s *RecordingSurface) CreateSprite(kind ElementKind, assetKey string) (SpriteID, Size, error) {
	s.mu.Lock()
	if s.failing[assetKey] {
		s.mu.Unlock()
		return 0, Size{}, fmt.Errorf("texture load failed: %s", assetKey)
	}
	s.nextID++
	id := s.nextID
	s.alive[id] = true
	size, ok := s.sizes[assetKey]
	if !ok {
		size = Size{W: 100, H: 100}
	}
	s.mu.Unlock()
	s.record(SurfaceCommand{Op: "create", ID: id, Kind: kind, Asset: assetKey})
	return id, size, nil
}

func (s *RecordingSurface) SetTexture(id SpriteID, assetKey string) (Size, error) {
	s.mu.Lock()
	if s.failing[assetKey] {
		s.mu.Unlock()
		return Size{}, fmt.Errorf("texture load failed: %s", assetKey)
	}
	size, ok := s.sizes[assetKey]
	if !ok {
		size = Size{W: 100, H: 100}
	}
	s.mu.Unlock()
	s.record(SurfaceCommand{Op: "texture", ID: id, Asset: assetKey})
	return size, nil
}

func (s *RecordingSurface) SetPosition(id SpriteID, x, y float64) {
	s.record(SurfaceCommand{Op: "position", ID: id, X: x, Y: y})
}

func (s *RecordingSurface) SetScale(id SpriteID, scale float64) {
	s.record(SurfaceCommand{Op: "scale", ID: id, Scale: scale})
}

func (s *RecordingSurface) SetVisible(id SpriteID, visible bool) {
	s.record(SurfaceCommand{Op: "visible", ID: id, Show: visible})
}

func (s *RecordingSurface) SetMask(reel int, r Rect) {
	rr := r
	s.record(SurfaceCommand{Op: "mask", Reel: reel, Rect: &rr})
}

func (s *RecordingSurface) ClearMask(reel int) {
	s.record(SurfaceCommand{Op: "unmask", Reel: reel})
}

func (s *RecordingSurface) ApplyFilter(id SpriteID, name string) {
	s.record(SurfaceCommand{Op: "filter", ID: id, Name: name})
}

func (s *RecordingSurface) ClearFilter(id SpriteID) {
	s.record(SurfaceCommand{Op: "unfilter", ID: id})
}

func (s *RecordingSurface) FadeOut(id SpriteID, d time.Duration) {
	s.record(SurfaceCommand{Op: "fade", ID: id, Ms: d.Milliseconds()})
}

func (s *RecordingSurface) Release(id SpriteID) {
	s.mu.Lock()
	delete(s.alive, id)
	s.mu.Unlock()
	s.record(SurfaceCommand{Op: "release", ID: id})
}

func (s *RecordingSurface) Render() {
	s.record(SurfaceCommand{Op: "render"})
}

// AliveCount 仍存活的可视元素数
func (s *RecordingSurface) AliveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alive)
}

// Commands 指令流快照
func (s *RecordingSurface) Commands() []SurfaceCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SurfaceCommand, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// ResetCommands 清空已录制指令
func (s *RecordingSurface) ResetCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = s.cmds[:0]
}

func (s *RecordingSurface) record(c SurfaceCommand) {
	s.mu.Lock()
	s.cmds = append(s.cmds, c)
	fn := s.onCommand
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}
