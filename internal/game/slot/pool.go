package slot

import (
	"sync"
)

// poolEntry 池内元素
type poolEntry struct {
	id    SpriteID
	asset string
	refs  int
	size  Size
}

// SymbolPool 符号可视元素池。按资产key索引，显式acquire/release加
// 引用计数，避免通过共享可变缓存隐式复用。归零的句柄进入空闲链，
// 同资产的下次acquire直接复用，不再新建可视元素。
type SymbolPool struct {
	mu      sync.Mutex
	surface Surface
	inUse   map[SpriteID]*poolEntry
	free    map[string][]*poolEntry // 按资产key分桶的空闲句柄
}

func NewSymbolPool(surface Surface) *SymbolPool {
	return &SymbolPool{
		surface: surface,
		inUse:   make(map[SpriteID]*poolEntry),
		free:    make(map[string][]*poolEntry),
	}
}

// Acquire 取一个承载指定资产的符号元素。优先复用空闲句柄。
func (p *SymbolPool) Acquire(assetKey string) (SpriteID, Size, error) {
	p.mu.Lock()
	if list := p.free[assetKey]; len(list) > 0 {
		e := list[len(list)-1]
		p.free[assetKey] = list[:len(list)-1]
		e.refs = 1
		p.inUse[e.id] = e
		p.mu.Unlock()
		p.surface.SetVisible(e.id, true)
		return e.id, e.size, nil
	}
	p.mu.Unlock()

	id, size, err := p.surface.CreateSprite(ElementSymbol, assetKey)
	if err != nil {
		return 0, Size{}, err
	}
	p.mu.Lock()
	p.inUse[id] = &poolEntry{id: id, asset: assetKey, refs: 1, size: size}
	p.mu.Unlock()
	return id, size, nil
}

// Retain 引用计数+1
func (p *SymbolPool) Retain(id SpriteID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.inUse[id]; ok {
		e.refs++
	}
}

// Release 引用计数-1，归零后句柄回池（隐藏但不销毁）
func (p *SymbolPool) Release(id SpriteID) {
	p.mu.Lock()
	e, ok := p.inUse[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, id)
	p.free[e.asset] = append(p.free[e.asset], e)
	p.mu.Unlock()
	p.surface.SetVisible(id, false)
}

// Retexture 更换句柄纹理并调整池索引（回收复用一个滚过头的符号时）
func (p *SymbolPool) Retexture(id SpriteID, assetKey string) (Size, error) {
	size, err := p.surface.SetTexture(id, assetKey)
	if err != nil {
		return Size{}, err
	}
	p.mu.Lock()
	if e, ok := p.inUse[id]; ok {
		e.asset = assetKey
		e.size = size
	}
	p.mu.Unlock()
	return size, nil
}

// InUseCount 在用元素数
func (p *SymbolPool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// FreeCount 空闲元素数
func (p *SymbolPool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, list := range p.free {
		n += len(list)
	}
	return n
}

// Drain 销毁全部空闲句柄（盘面尺寸变更后回收旧元素）
func (p *SymbolPool) Drain() {
	p.mu.Lock()
	var ids []SpriteID
	for asset, list := range p.free {
		for _, e := range list {
			ids = append(ids, e.id)
		}
		delete(p.free, asset)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.surface.Release(id)
	}
}

// Dispose 销毁池内全部元素（含在用）
func (p *SymbolPool) Dispose() {
	p.mu.Lock()
	var ids []SpriteID
	for id := range p.inUse {
		ids = append(ids, id)
	}
	p.inUse = make(map[SpriteID]*poolEntry)
	p.mu.Unlock()
	p.Drain()
	for _, id := range ids {
		p.surface.Release(id)
	}
}
