package slot

import (
	"sync"

	"go.uber.org/zap"
)

// Handler 事件回调
type Handler func(payload any)

type busEntry struct {
	id   int64
	fn   Handler
	once bool
}

// EventBus 进程内发布/订阅总线。编排层与UI/音频消费方之间的唯一通道。
// Emit 同步派发：返回前保证送达当前全部订阅者；单个订阅者panic被捕获并记录，
// 不影响其余订阅者。派发顺序即订阅顺序，除此之外不做任何保证。
type EventBus struct {
	mu     sync.Mutex
	nextID int64
	subs   map[string][]*busEntry
	log    *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subs: make(map[string][]*busEntry),
		log:  logger,
	}
}

// On 订阅事件，返回用于退订的句柄
func (b *EventBus) On(event string, fn Handler) int64 {
	return b.subscribe(event, fn, false)
}

// Once 一次性订阅：触发一次后自动退订
func (b *EventBus) Once(event string, fn Handler) int64 {
	return b.subscribe(event, fn, true)
}

func (b *EventBus) subscribe(event string, fn Handler, once bool) int64 {
	if fn == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[event] = append(b.subs[event], &busEntry{id: b.nextID, fn: fn, once: once})
	return b.nextID
}

// Off 按句柄退订
func (b *EventBus) Off(event string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[event]
	for i, e := range list {
		if e.id == id {
			b.subs[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Clear 清空指定事件的全部订阅
func (b *EventBus) Clear(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, event)
}

// ClearAll 清空全部订阅
func (b *EventBus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]*busEntry)
}

// Emit 同步派发事件
func (b *EventBus) Emit(event string, payload any) {
	b.mu.Lock()
	list := b.subs[event]
	// 复制快照，派发期间的订阅变更不影响本次送达
	snapshot := make([]*busEntry, len(list))
	copy(snapshot, list)
	remain := list[:0]
	for _, e := range list {
		if !e.once {
			remain = append(remain, e)
		}
	}
	b.subs[event] = remain
	b.mu.Unlock()

	for _, e := range snapshot {
		b.safeCall(event, e.fn, payload)
	}
}

// ListenerCount 指定事件的订阅数
func (b *EventBus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}

func (b *EventBus) safeCall(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panic", zap.String("event", event), zap.Any("r", r), zap.Stack("stack"))
		}
	}()
	fn(payload)
}
