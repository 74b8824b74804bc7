package slot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/looplab/fsm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 状态转换表。不在表内的(from,to)组合一律非法。
var _transitions = map[Status][]Status{
	StatusInitializing:  {StatusReady, StatusError},
	StatusReady:         {StatusSpinning, StatusError},
	StatusSpinning:      {StatusStopping, StatusError},
	StatusStopping:      {StatusEvaluating, StatusError},
	StatusEvaluating:    {StatusShowingWin, StatusReady, StatusError},
	StatusShowingWin:    {StatusReady, StatusFeatureActive, StatusError},
	StatusFeatureActive: {StatusReady, StatusShowingWin, StatusError},
	StatusError:         {StatusInitializing, StatusReady},
}

// spinning状态集合：isSpinning 当且仅当 status 属于该集合
var _spinningStatuses = map[Status]bool{
	StatusSpinning:   true,
	StatusStopping:   true,
	StatusEvaluating: true,
}

// StateSubscriber 订阅回调，收到(当前状态, 前一状态)
type StateSubscriber func(state, prev GameState)

type stateSub struct {
	id   int64
	path string // 空表示订阅全量变更
	fn   StateSubscriber
}

// StateManager 持有权威GameState。所有修改必须经由本组件：
// SetState 整体合并patch（非法status则整个patch拒绝），Transition 带前置
// 条件检查的显式状态迁移。订阅者在每次提交后同步收到通知。
type StateManager struct {
	mu      sync.Mutex
	state   GameState
	machine *fsm.FSM
	subs    []*stateSub
	nextSub int64
	history []GameState // 诊断用，保留最近 _stateHistoryLimit 条
	log     *zap.Logger
}

func NewStateManager(reels, rows int, logger *zap.Logger) *StateManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &StateManager{
		state: GameState{
			Status:            StatusInitializing,
			Reels:             reels,
			Rows:              rows,
			CurrentSymbols:    emptyGrid(reels, rows),
			LastWin:           decimal.Zero,
			TotalWin:          decimal.Zero,
			Balance:           decimal.Zero,
			CurrentBet:        decimal.Zero,
			CurrentMultiplier: 1,
		},
		log: logger,
	}
	m.machine = newStatusMachine(StatusInitializing)
	return m
}

// newStatusMachine 由转换表构建fsm，事件名为 to_<目标状态>
func newStatusMachine(initial Status) *fsm.FSM {
	srcByDst := make(map[Status][]string)
	for from, tos := range _transitions {
		for _, to := range tos {
			srcByDst[to] = append(srcByDst[to], string(from))
		}
	}
	events := make(fsm.Events, 0, len(srcByDst))
	for dst, srcs := range srcByDst {
		events = append(events, fsm.EventDesc{
			Name: "to_" + string(dst),
			Src:  srcs,
			Dst:  string(dst),
		})
	}
	return fsm.NewFSM(string(initial), events, fsm.Callbacks{})
}

func emptyGrid(reels, rows int) [][]int64 {
	g := make([][]int64, reels)
	for i := range g {
		g[i] = make([]int64, rows)
	}
	return g
}

// CanTransition 查表判断转换合法性
func CanTransition(from, to Status) bool {
	for _, t := range _transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// GetState 状态快照（深拷贝盘面与特性列表）
func (m *StateManager) GetState() GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state)
}

func cloneState(s GameState) GameState {
	c := s
	c.CurrentSymbols = cloneGrid(s.CurrentSymbols)
	if s.ActiveFeatures != nil {
		c.ActiveFeatures = make([]ActiveFeature, len(s.ActiveFeatures))
		copy(c.ActiveFeatures, s.ActiveFeatures)
	}
	return c
}

func cloneGrid(g [][]int64) [][]int64 {
	if g == nil {
		return nil
	}
	c := make([][]int64, len(g))
	for i := range g {
		c[i] = make([]int64, len(g[i]))
		copy(c[i], g[i])
	}
	return c
}

// Status 当前状态
func (m *StateManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// SetState 合并patch。patch含非法status转换时整体拒绝并记录，不做部分应用。
func (m *StateManager) SetState(patch StatePatch) bool {
	m.mu.Lock()
	prev := cloneState(m.state)

	if patch.Status != nil && *patch.Status != m.state.Status {
		if !CanTransition(m.state.Status, *patch.Status) {
			m.mu.Unlock()
			m.log.Warn("illegal status transition rejected",
				zap.String("from", string(prev.Status)),
				zap.String("to", string(*patch.Status)))
			return false
		}
	}

	m.applyPatch(patch)
	cur := cloneState(m.state)
	m.pushHistory(cur)
	m.mu.Unlock()

	m.notify(cur, prev)
	return true
}

// Transition 显式状态迁移，带前置条件检查，失败返回描述性错误。
// 可选patch与迁移在同一临界区提交：前置检查按patch后的值评估，
// 迁移失败时patch一并不生效。
func (m *StateManager) Transition(to Status, patches ...StatePatch) error {
	m.mu.Lock()
	from := m.state.Status
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if from == StatusReady && to == StatusSpinning {
		bal, bet := m.state.Balance, m.state.CurrentBet
		for _, p := range patches {
			if p.Balance != nil {
				bal = *p.Balance
			}
			if p.CurrentBet != nil {
				bet = *p.CurrentBet
			}
		}
		if bal.LessThan(bet) {
			m.mu.Unlock()
			return fmt.Errorf("transition %s -> %s: balance %s below bet %s",
				from, to, bal, bet)
		}
	}
	prev := cloneState(m.state)
	if err := m.machine.Event(context.Background(), "to_"+string(to)); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	for _, p := range patches {
		m.applyPatch(p)
	}
	m.state.Status = to
	m.state.IsSpinning = _spinningStatuses[to]
	cur := cloneState(m.state)
	m.pushHistory(cur)
	m.mu.Unlock()

	m.notify(cur, prev)
	return nil
}

// applyPatch 必须在持锁状态下调用
func (m *StateManager) applyPatch(p StatePatch) {
	if p.Status != nil && *p.Status != m.state.Status {
		// SetState路径的合法性已在调用方校验过，这里同步fsm
		_ = m.machine.Event(context.Background(), "to_"+string(*p.Status))
		m.state.Status = *p.Status
		m.state.IsSpinning = _spinningStatuses[*p.Status]
	}
	if p.Reels != nil {
		m.state.Reels = *p.Reels
	}
	if p.Rows != nil {
		m.state.Rows = *p.Rows
	}
	if p.CurrentSymbols != nil {
		m.state.CurrentSymbols = cloneGrid(p.CurrentSymbols)
	}
	if p.IsSpinning != nil {
		m.state.IsSpinning = *p.IsSpinning
	}
	if p.CurrentSpinID != nil {
		m.state.CurrentSpinID = *p.CurrentSpinID
	}
	if p.LastWin != nil {
		m.state.LastWin = *p.LastWin
	}
	if p.TotalWin != nil {
		m.state.TotalWin = *p.TotalWin
	}
	if p.Balance != nil {
		m.state.Balance = *p.Balance
	}
	if p.CurrentBet != nil {
		m.state.CurrentBet = *p.CurrentBet
	}
	if p.ActiveFeatures != nil {
		m.state.ActiveFeatures = make([]ActiveFeature, len(p.ActiveFeatures))
		copy(m.state.ActiveFeatures, p.ActiveFeatures)
	}
	if p.FreeSpinsRemaining != nil {
		m.state.FreeSpinsRemaining = *p.FreeSpinsRemaining
	}
	if p.CurrentMultiplier != nil {
		m.state.CurrentMultiplier = *p.CurrentMultiplier
	}
}

// Subscribe 订阅全量状态变更
func (m *StateManager) Subscribe(fn StateSubscriber) int64 {
	return m.subscribePath("", fn)
}

// SubscribePath 订阅指定点分路径，仅当该路径的值实际变化时触发
func (m *StateManager) SubscribePath(path string, fn StateSubscriber) int64 {
	return m.subscribePath(path, fn)
}

func (m *StateManager) subscribePath(path string, fn StateSubscriber) int64 {
	if fn == nil {
		return -1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	m.subs = append(m.subs, &stateSub{id: m.nextSub, path: path, fn: fn})
	return m.nextSub
}

// Unsubscribe 按句柄退订
func (m *StateManager) Unsubscribe(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

func (m *StateManager) notify(cur, prev GameState) {
	m.mu.Lock()
	snapshot := make([]*stateSub, len(m.subs))
	copy(snapshot, m.subs)
	m.mu.Unlock()

	var curMap, prevMap map[string]any
	for _, s := range snapshot {
		if s.path != "" {
			if curMap == nil {
				curMap = stateToMap(cur)
				prevMap = stateToMap(prev)
			}
			if !pathChanged(curMap, prevMap, s.path) {
				continue
			}
		}
		m.safeNotify(s, cur, prev)
	}
}

func (m *StateManager) safeNotify(s *stateSub, cur, prev GameState) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state subscriber panic", zap.String("path", s.path), zap.Any("r", r))
		}
	}()
	s.fn(cur, prev)
}

func stateToMap(s GameState) map[string]any {
	data, _ := jsoniter.Marshal(s)
	out := map[string]any{}
	_ = jsoniter.Unmarshal(data, &out)
	return out
}

// pathChanged 比较两个map在点分路径上的取值
func pathChanged(cur, prev map[string]any, path string) bool {
	return fmt.Sprintf("%v", valueAtPath(cur, path)) != fmt.Sprintf("%v", valueAtPath(prev, path))
}

func valueAtPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[p]
	}
	return cur
}

func (m *StateManager) pushHistory(s GameState) {
	m.history = append(m.history, s)
	if len(m.history) > _stateHistoryLimit {
		m.history = m.history[len(m.history)-_stateHistoryLimit:]
	}
}

// History 最近若干次提交的状态快照
func (m *StateManager) History() []GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GameState, len(m.history))
	copy(out, m.history)
	return out
}

// Serialize 序列化为JSON文本
func (m *StateManager) Serialize() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsoniter.MarshalToString(m.state)
}

// Deserialize 从JSON文本整体恢复（绕过转换表，视为重建）
func (m *StateManager) Deserialize(raw string) error {
	var s GameState
	if err := jsoniter.UnmarshalFromString(raw, &s); err != nil {
		return fmt.Errorf("deserialize state: %w", err)
	}
	m.mu.Lock()
	prev := cloneState(m.state)
	m.state = s
	m.machine = newStatusMachine(s.Status)
	cur := cloneState(m.state)
	m.pushHistory(cur)
	m.mu.Unlock()
	m.notify(cur, prev)
	return nil
}
