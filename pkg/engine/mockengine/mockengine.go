// Package mockengine предоставляет управляемую реализацию порта
// callsession.Engine для тестов и демо без реального медиа SDK.
//
// Движок скриптуется: тест задаёт ошибки Initialize/Join, эмитит события
// от имени движка и проверяет последовательность вызванных операций через
// Calls или собственный Recorder.
package mockengine

import (
	"context"
	"sync"

	"github.com/arzzra/soft_call/pkg/callsession"
)

// Проверка на соответствие интерфейсу во время компиляции
var _ callsession.Engine = (*Engine)(nil)

// Engine скриптуемый движок для тестов
type Engine struct {
	mu sync.Mutex

	initErr error
	joinErr error

	// AutoLocalJoined эмитит localJoined сразу после успешного Join.
	// Включено по умолчанию: так ведёт себя живой SDK.
	autoLocalJoined bool

	localUID uint32
	joined   bool
	calls    []string

	// Recorder опциональный хук, получающий имя каждой операции.
	// Позволяет тестам фиксировать порядок шагов между несколькими фейками.
	recorder func(op string)

	events chan callsession.EngineEvent
}

// Option настройка мок движка
type Option func(*Engine)

// WithInitError заставляет Initialize возвращать ошибку
func WithInitError(err error) Option {
	return func(e *Engine) { e.initErr = err }
}

// WithJoinError заставляет Join возвращать ошибку
func WithJoinError(err error) Option {
	return func(e *Engine) { e.joinErr = err }
}

// WithoutAutoLocalJoined выключает автоматический localJoined после Join;
// тест эмитит его сам
func WithoutAutoLocalJoined() Option {
	return func(e *Engine) { e.autoLocalJoined = false }
}

// WithRecorder подключает хук записи операций
func WithRecorder(fn func(op string)) Option {
	return func(e *Engine) { e.recorder = fn }
}

// New создает мок движок
func New(opts ...Option) *Engine {
	e := &Engine{
		autoLocalJoined: true,
		events:          make(chan callsession.EngineEvent, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) record(op string) {
	e.mu.Lock()
	e.calls = append(e.calls, op)
	rec := e.recorder
	e.mu.Unlock()
	if rec != nil {
		rec(op)
	}
}

// Calls возвращает копию журнала вызванных операций
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// Joined сообщает, находится ли движок в канале
func (e *Engine) Joined() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joined
}

// Initialize реализация порта
func (e *Engine) Initialize(ctx context.Context, appID string) error {
	e.record("initialize")
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// Join реализация порта
func (e *Engine) Join(ctx context.Context, cred callsession.JoinCredential, kind callsession.CallKind) error {
	e.record("join")
	e.mu.Lock()
	if e.joinErr != nil {
		err := e.joinErr
		e.mu.Unlock()
		return err
	}
	e.joined = true
	e.localUID = cred.UID
	auto := e.autoLocalJoined
	uid := cred.UID
	e.mu.Unlock()

	if auto {
		e.Emit(callsession.EngineEvent{Type: callsession.EngineEventLocalJoined, UID: uid})
	}
	return nil
}

// Leave реализация порта
func (e *Engine) Leave(ctx context.Context) error {
	e.record("leave")
	e.mu.Lock()
	e.joined = false
	e.mu.Unlock()
	return nil
}

// SetMuted реализация порта
func (e *Engine) SetMuted(muted bool) error {
	if muted {
		e.record("setMuted:true")
	} else {
		e.record("setMuted:false")
	}
	return nil
}

// SetVideoEnabled реализация порта
func (e *Engine) SetVideoEnabled(enabled bool) error {
	if enabled {
		e.record("setVideoEnabled:true")
	} else {
		e.record("setVideoEnabled:false")
	}
	return nil
}

// SwitchCamera реализация порта
func (e *Engine) SwitchCamera() error {
	e.record("switchCamera")
	return nil
}

// SetSpeaker реализация порта
func (e *Engine) SetSpeaker(on bool) error {
	if on {
		e.record("setSpeaker:true")
	} else {
		e.record("setSpeaker:false")
	}
	return nil
}

// Events реализация порта
func (e *Engine) Events() <-chan callsession.EngineEvent {
	return e.events
}

// Emit доставляет событие потребителю от имени движка
func (e *Engine) Emit(ev callsession.EngineEvent) {
	e.events <- ev
}

// EmitParticipantJoined событие входа удалённого участника
func (e *Engine) EmitParticipantJoined(uid uint32) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventParticipantJoined, UID: uid})
}

// EmitParticipantLeft событие выхода удалённого участника
func (e *Engine) EmitParticipantLeft(uid uint32) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventParticipantLeft, UID: uid})
}

// EmitAudioMute событие смены состояния микрофона участника
func (e *Engine) EmitAudioMute(uid uint32, muted bool) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventAudioMuteChanged, UID: uid, Muted: muted})
}

// EmitVideoMute событие смены состояния камеры участника
func (e *Engine) EmitVideoMute(uid uint32, muted bool) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventVideoMuteChanged, UID: uid, Muted: muted})
}

// EmitConnState событие смены состояния соединения
func (e *Engine) EmitConnState(state callsession.ConnState, reason string) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventConnectionStateChanged, State: state, Reason: reason})
}

// EmitNetworkQuality выборка качества связи участника
func (e *Engine) EmitNetworkQuality(uid uint32, q callsession.ConnectionQuality) {
	e.Emit(callsession.EngineEvent{Type: callsession.EngineEventNetworkQuality, UID: uid, Quality: q})
}
