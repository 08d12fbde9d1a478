// Package callfsm конечный автомат жизненного цикла исходящего звонка.
//
// Автомат только вычисляет переходы и список действий; выполняет их
// вызывающая сторона (Executor), поэтому логику переходов можно
// тестировать без движка.
package callfsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"github.com/arzzra/callprobe/pkg/engine"
)

// ActionKind побочное действие, которое должен выполнить вызывающий
type ActionKind int

const (
	// ActionAttachMedia подключить проигрывание и запись к медиапорту
	ActionAttachMedia ActionKind = iota + 1
	// ActionFinalize звонок завершен, снять итоговый отчет
	ActionFinalize
)

func (k ActionKind) String() string {
	switch k {
	case ActionAttachMedia:
		return "attach_media"
	case ActionFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Action действие с параметрами
type Action struct {
	Kind ActionKind
	// Media заполнено для ActionAttachMedia
	Media engine.LocalMedia
}

// Transition результат обработки одного уведомления
type Transition struct {
	From       engine.SessionState
	To         engine.SessionState
	Changed    bool
	StatusCode int
	Actions    []Action
}

// событие автомата по целевому состоянию
var eventByState = map[engine.SessionState]string{
	engine.StateCalling:      "calling",
	engine.StateEarly:        "early",
	engine.StateConnecting:   "connecting",
	engine.StateConfirmed:    "confirm",
	engine.StateDisconnected: "disconnect",
}

// Machine автомат одного звонка. Безопасен для конкурентного использования.
type Machine struct {
	mu  sync.Mutex
	fsm *fsm.FSM

	media         engine.LocalMedia
	mediaAttached bool

	lastStatus      int
	remoteURI       string
	signalingFailed bool

	finalized bool
	done      chan struct{}

	finalDump    string
	hasFinalDump bool
}

// NewMachine создает автомат в состоянии NULL
func NewMachine() *Machine {
	m := &Machine{done: make(chan struct{})}

	null := string(engine.StateNull)
	calling := string(engine.StateCalling)
	early := string(engine.StateEarly)
	connecting := string(engine.StateConnecting)
	confirmed := string(engine.StateConfirmed)
	disconnected := string(engine.StateDisconnected)

	// Пропуск состояний вперед допустим, возврат назад нет
	m.fsm = fsm.NewFSM(
		null,
		fsm.Events{
			{Name: "calling", Src: []string{null}, Dst: calling},
			{Name: "early", Src: []string{null, calling}, Dst: early},
			{Name: "connecting", Src: []string{null, calling, early}, Dst: connecting},
			{Name: "confirm", Src: []string{null, calling, early, connecting}, Dst: confirmed},
			{Name: "disconnect", Src: []string{null, calling, early, connecting, confirmed}, Dst: disconnected},
		},
		fsm.Callbacks{},
	)

	return m
}

// State текущее состояние
func (m *Machine) State() engine.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return engine.SessionState(m.fsm.Current())
}

// HandleNotification единственная точка входа автомата.
//
// После DISCONNECTED автомат инертен: все уведомления игнорируются.
func (m *Machine) HandleNotification(n engine.Notification) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := engine.SessionState(m.fsm.Current())
	tr := Transition{From: cur, To: cur, StatusCode: m.lastStatus}

	if m.finalized {
		return tr
	}

	switch n.Kind {
	case engine.MediaStateChanged:
		m.media = n.Media
		if cur == engine.StateConfirmed {
			tr.Actions = m.attachIfReady(tr.Actions)
		}
		return tr

	case engine.SessionStateChanged:
		if n.Info.LastStatusCode != 0 {
			m.lastStatus = n.Info.LastStatusCode
			tr.StatusCode = n.Info.LastStatusCode
			if engine.IsFailureStatus(n.Info.LastStatusCode) {
				m.signalingFailed = true
			}
		}
		if n.Info.RemoteURI != "" {
			m.remoteURI = n.Info.RemoteURI
		}

		event, ok := eventByState[n.Info.State]
		if !ok || !m.fsm.Can(event) {
			return tr
		}
		if err := m.fsm.Event(context.Background(), event); err != nil {
			return tr
		}

		tr.To = engine.SessionState(m.fsm.Current())
		tr.Changed = tr.To != tr.From

		switch tr.To {
		case engine.StateConfirmed:
			tr.Actions = m.attachIfReady(tr.Actions)
		case engine.StateDisconnected:
			tr.Actions = append(tr.Actions, Action{Kind: ActionFinalize})
			m.finalized = true
			close(m.done)
		}
	}

	return tr
}

// attachIfReady добавляет подключение медиа не более одного раза
func (m *Machine) attachIfReady(actions []Action) []Action {
	if m.mediaAttached || m.media == nil {
		return actions
	}
	m.mediaAttached = true
	return append(actions, Action{Kind: ActionAttachMedia, Media: m.media})
}

// Done закрывается при переходе в DISCONNECTED
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// LastStatusCode последний полученный код ответа, 0 если не было
func (m *Machine) LastStatusCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus
}

// RemoteURI адрес вызываемой стороны из последнего уведомления
func (m *Machine) RemoteURI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteURI
}

// SignalingFailed true, если был получен финальный отказ (код >= 300).
// На переходы не влияет.
func (m *Machine) SignalingFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signalingFailed
}

// SetFinalDump сохраняет отчет, снятый при завершении звонка
func (m *Machine) SetFinalDump(dump string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalDump = dump
	m.hasFinalDump = true
}

// FinalDump отчет, снятый при завершении. ok == false, пока звонок не
// завершен или снять отчет не удалось.
func (m *Machine) FinalDump() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalDump, m.hasFinalDump
}
