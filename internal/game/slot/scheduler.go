package slot

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler 定时任务调度器。每个待停滚轴持有一个可取消的任务ID，
// 急停即按ID取消对应任务，其余任务不受影响。
type Scheduler interface {
	Once(delay time.Duration, f func()) int64 // 注册一次性任务（延迟执行）
	Forever(interval time.Duration, f func()) int64
	Cancel(taskID int64)
	CancelAll()
	Pending() int
	Flush() // 以当前时钟执行全部到期任务（手动时钟模式下由测试驱动）
	Stop()
}

// ==================== taskEntry ====================

type taskEntry struct {
	id        int64
	execAt    time.Time
	interval  time.Duration
	repeated  bool
	cancelled atomic.Bool
	task      func()
	index     int // 堆索引，用于从堆中删除
}

// taskQueue 最小堆任务队列，按执行时间排序
type taskQueue struct {
	mu    sync.Mutex
	heap  []*taskEntry
	tasks map[int64]*taskEntry
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		heap:  make([]*taskEntry, 0),
		tasks: make(map[int64]*taskEntry),
	}
}

func (q *taskQueue) Len() int { return len(q.heap) }
func (q *taskQueue) Less(i, j int) bool {
	return q.heap[i].execAt.Before(q.heap[j].execAt)
}
func (q *taskQueue) Swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.heap[i].index = i
	q.heap[j].index = j
}
func (q *taskQueue) Push(x any) {
	t := x.(*taskEntry)
	t.index = len(q.heap)
	q.heap = append(q.heap, t)
}
func (q *taskQueue) Pop() any {
	n := len(q.heap)
	t := q.heap[n-1]
	t.index = -1
	q.heap = q.heap[:n-1]
	return t
}

func (q *taskQueue) AddTask(t *taskEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[t.id] = t
	needWake := len(q.heap) == 0 || t.execAt.Before(q.heap[0].execAt)
	heap.Push(q, t)
	return needWake
}

func (q *taskQueue) PopExpired(now time.Time) []*taskEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []*taskEntry
	for len(q.heap) > 0 && !q.heap[0].execAt.After(now) {
		t := heap.Pop(q).(*taskEntry)
		delete(q.tasks, t.id)
		if !t.cancelled.Load() {
			expired = append(expired, t)
		}
	}
	return expired
}

func (q *taskQueue) RemoveTask(taskID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return
	}
	// 只标记取消，不清空task函数，避免正在执行的任务panic
	t.cancelled.Store(true)
	delete(q.tasks, taskID)
	if t.index >= 0 && t.index < len(q.heap) {
		heap.Remove(q, t.index)
	}
}

func (q *taskQueue) TaskCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) NextExecDuration(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return time.Hour
	}
	if d := q.heap[0].execAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ==================== heapScheduler ====================

// heapScheduler 基于最小堆的调度器。真实时钟模式下由后台循环驱动；
// 手动时钟模式（测试）下不起后台循环，由 Flush 同步执行到期任务。
type heapScheduler struct {
	queue    *taskQueue
	nextID   atomic.Int64
	shutdown atomic.Bool
	clock    Clock
	timer    *time.Timer
	wakeup   chan struct{}
	done     chan struct{}
	manual   bool
	log      *zap.Logger
}

func NewScheduler(clock Clock, logger *zap.Logger) Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	_, manual := clock.(*ManualClock)
	s := &heapScheduler{
		queue:  newTaskQueue(),
		clock:  clock,
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
		manual: manual,
		log:    logger,
	}
	if !s.manual {
		s.timer = time.NewTimer(time.Hour)
		s.timer.Stop()
		go s.loop()
	}
	return s
}

func (s *heapScheduler) loop() {
	for {
		s.Flush()
		s.resetTimer(s.queue.NextExecDuration(s.clock.Now()))
		select {
		case <-s.timer.C:
		case <-s.wakeup:
		case <-s.done:
			return
		}
	}
}

// Flush 循环执行全部到期任务直到队列无到期项（在调用方goroutine内同步执行）。
// 周期任务按错过的周期数逐次补跑，动画推进不丢帧。
func (s *heapScheduler) Flush() {
	for {
		expired := s.queue.PopExpired(s.clock.Now())
		if len(expired) == 0 {
			return
		}
		for _, t := range expired {
			if t.task == nil || t.cancelled.Load() {
				continue
			}
			s.safeRun(t.task)
			if t.repeated && !t.cancelled.Load() && !s.shutdown.Load() {
				t.execAt = t.execAt.Add(t.interval)
				if s.queue.AddTask(t) {
					s.wakeupLoop()
				}
			}
		}
	}
}

func (s *heapScheduler) Once(delay time.Duration, f func()) int64 {
	return s.schedule(s.clock.Now().Add(delay), 0, false, f)
}

func (s *heapScheduler) Forever(interval time.Duration, f func()) int64 {
	return s.schedule(s.clock.Now().Add(interval), interval, true, f)
}

func (s *heapScheduler) Cancel(taskID int64) {
	s.queue.RemoveTask(taskID)
	s.wakeupLoop()
}

func (s *heapScheduler) CancelAll() {
	s.queue.mu.Lock()
	for _, t := range s.queue.tasks {
		t.cancelled.Store(true)
	}
	s.queue.heap = []*taskEntry{}
	s.queue.tasks = make(map[int64]*taskEntry)
	s.queue.mu.Unlock()
	s.wakeupLoop()
}

func (s *heapScheduler) Pending() int {
	return s.queue.TaskCount()
}

func (s *heapScheduler) Stop() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	s.CancelAll()
	close(s.done)
}

func (s *heapScheduler) schedule(execAt time.Time, interval time.Duration, repeated bool, f func()) int64 {
	if s.shutdown.Load() {
		s.log.Warn("scheduler is shut down; task rejected")
		return -1
	}
	if f == nil {
		s.log.Warn("scheduler task function is nil; task rejected")
		return -1
	}
	if repeated && interval <= 0 {
		s.log.Warn("scheduler repeated task with non-positive interval; task rejected")
		return -1
	}
	taskID := s.nextID.Add(1)
	t := &taskEntry{
		id:       taskID,
		execAt:   execAt,
		interval: interval,
		repeated: repeated,
		task:     f,
	}
	if s.queue.AddTask(t) {
		s.wakeupLoop()
	}
	return taskID
}

func (s *heapScheduler) wakeupLoop() {
	if s.manual {
		return
	}
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *heapScheduler) resetTimer(d time.Duration) {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	if d <= 0 {
		d = time.Millisecond
	}
	s.timer.Reset(d)
}

func (s *heapScheduler) safeRun(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler task panic", zap.Any("r", r), zap.Stack("stack"))
		}
	}()
	f()
}
