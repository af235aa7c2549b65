package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/arzzra/soft_call/pkg/callsession"
)

// Проверка на соответствие интерфейсу во время компиляции
var _ callsession.Engine = (*Adapter)(nil)

// Callbacks набор callbacks, которые SDK вызывает из собственного
// потока доставки. Любой callback может быть nil.
type Callbacks struct {
	OnLocalJoined       func(uid uint32)
	OnUserJoined        func(uid uint32)
	OnUserLeft          func(uid uint32, reason int)
	OnAudioMuteChanged  func(uid uint32, muted bool)
	OnVideoMuteChanged  func(uid uint32, muted bool)
	OnNetworkQuality    func(uid uint32, quality int)
	OnConnectionChanged func(state int, reason string)
	OnError             func(code int, message string)
}

// Уровни качества сети SDK (совпадают с порядком большинства RTC SDK)
const (
	SDKQualityUnknown = iota
	SDKQualityExcellent
	SDKQualityGood
	SDKQualityPoor
	SDKQualityBad
	SDKQualityVeryBad
	SDKQualityDown
)

// Состояния соединения SDK
const (
	SDKConnDisconnected = iota
	SDKConnConnecting
	SDKConnConnected
	SDKConnReconnecting
	SDKConnFailed
)

// RTCEngine поверхность внешнего медиа SDK, как её видит адаптер.
// Контракт намеренно минимален: ядро не зависит от конкретного движка.
type RTCEngine interface {
	// Init готовит SDK к работе под идентификатором приложения
	Init(appID string) error

	// SetCallbacks регистрирует обработчики событий SDK.
	// Должна быть вызвана до JoinChannel.
	SetCallbacks(cb Callbacks)

	// JoinChannel входит в канал; после успеха SDK эмитит события
	// только этого канала
	JoinChannel(token, channel string, uid uint32, video bool) error

	// LeaveChannel покидает канал
	LeaveChannel() error

	// Управляющие операции без ожидания подтверждения
	MuteLocalAudio(muted bool) error
	EnableLocalVideo(enabled bool) error
	SwitchCamera() error
	SetSpeakerphone(on bool) error
}

// Config конфигурация адаптера
type Config struct {
	// SDK внешний движок
	SDK RTCEngine

	// BufferSize размер буфера канала событий (по умолчанию 128)
	BufferSize int

	// Logger структурированный логгер
	Logger zerolog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		BufferSize: 128,
		Logger:     zerolog.Nop(),
	}
}

// Adapter тонкий фасад над внешним SDK, реализующий callsession.Engine.
//
// Callbacks SDK переводятся в один упорядоченный канал событий.
// Адаптер не угадывает успех управляющих операций: авторитетное
// состояние - то, что ядро уже держит до вызова, реконсилируемое
// событиями движка.
type Adapter struct {
	sdk RTCEngine
	log zerolog.Logger

	events chan callsession.EngineEvent

	mu          sync.Mutex
	initialized bool

	dropped atomic.Uint64
}

// NewAdapter создает адаптер над SDK и подписывается на его callbacks
func NewAdapter(config Config) (*Adapter, error) {
	if config.SDK == nil {
		return nil, callsession.NewCallError(
			"ENGINE_SDK_REQUIRED",
			"SDK обязателен",
			callsession.ErrorKindEngine,
			callsession.SeverityError,
		)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 128
	}
	a := &Adapter{
		sdk:    config.SDK,
		log:    config.Logger.With().Str("component", "engine_adapter").Logger(),
		events: make(chan callsession.EngineEvent, config.BufferSize),
	}
	a.sdk.SetCallbacks(a.callbacks())
	return a, nil
}

// Initialize готовит SDK. Идемпотентна: повторные вызовы - no-op.
func (a *Adapter) Initialize(ctx context.Context, appID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.sdk.Init(appID); err != nil {
		return callsession.ErrEngineInit(err)
	}
	a.initialized = true
	return nil
}

// Join входит в канал по реквизитам
func (a *Adapter) Join(ctx context.Context, cred callsession.JoinCredential, kind callsession.CallKind) error {
	if err := a.sdk.JoinChannel(cred.Token, cred.ChannelName, cred.UID, kind == callsession.CallKindVideo); err != nil {
		return callsession.ErrEngineJoin(err)
	}
	return nil
}

// Leave покидает канал. Best-effort: ошибка SDK логируется, локально
// операция завершается всегда.
func (a *Adapter) Leave(ctx context.Context) error {
	if err := a.sdk.LeaveChannel(); err != nil {
		a.log.Warn().Err(err).Msg("leave канала не удался")
	}
	return nil
}

// SetMuted управляет локальным микрофоном (fire-and-forget)
func (a *Adapter) SetMuted(muted bool) error {
	return a.sdk.MuteLocalAudio(muted)
}

// SetVideoEnabled управляет локальной камерой (fire-and-forget)
func (a *Adapter) SetVideoEnabled(enabled bool) error {
	return a.sdk.EnableLocalVideo(enabled)
}

// SwitchCamera переключает камеру (fire-and-forget)
func (a *Adapter) SwitchCamera() error {
	return a.sdk.SwitchCamera()
}

// SetSpeaker управляет громкой связью (fire-and-forget)
func (a *Adapter) SetSpeaker(on bool) error {
	return a.sdk.SetSpeakerphone(on)
}

// Events возвращает упорядоченный поток событий движка
func (a *Adapter) Events() <-chan callsession.EngineEvent {
	return a.events
}

// DroppedEvents возвращает число отброшенных при переполнении событий
func (a *Adapter) DroppedEvents() uint64 {
	return a.dropped.Load()
}

// emit кладёт событие в канал, отбрасывая самое старое при переполнении.
// Не блокирует поток доставки SDK.
func (a *Adapter) emit(ev callsession.EngineEvent) {
	select {
	case a.events <- ev:
		return
	default:
	}
	// Буфер полон: освобождаем место за счёт самого старого события
	select {
	case old := <-a.events:
		a.dropped.Add(1)
		a.log.Warn().Str("event", old.Type.String()).Msg("событие отброшено, потребитель не успевает")
	default:
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) callbacks() Callbacks {
	return Callbacks{
		OnLocalJoined: func(uid uint32) {
			a.emit(callsession.EngineEvent{Type: callsession.EngineEventLocalJoined, UID: uid})
		},
		OnUserJoined: func(uid uint32) {
			a.emit(callsession.EngineEvent{Type: callsession.EngineEventParticipantJoined, UID: uid})
		},
		OnUserLeft: func(uid uint32, reason int) {
			a.emit(callsession.EngineEvent{Type: callsession.EngineEventParticipantLeft, UID: uid})
		},
		OnAudioMuteChanged: func(uid uint32, muted bool) {
			a.emit(callsession.EngineEvent{Type: callsession.EngineEventAudioMuteChanged, UID: uid, Muted: muted})
		},
		OnVideoMuteChanged: func(uid uint32, muted bool) {
			a.emit(callsession.EngineEvent{Type: callsession.EngineEventVideoMuteChanged, UID: uid, Muted: muted})
		},
		OnNetworkQuality: func(uid uint32, quality int) {
			a.emit(callsession.EngineEvent{
				Type:    callsession.EngineEventNetworkQuality,
				UID:     uid,
				Quality: mapQuality(quality),
			})
		},
		OnConnectionChanged: func(state int, reason string) {
			a.emit(callsession.EngineEvent{
				Type:   callsession.EngineEventConnectionStateChanged,
				State:  mapConnState(state),
				Reason: reason,
			})
		},
		OnError: func(code int, message string) {
			a.emit(callsession.EngineEvent{
				Type:    callsession.EngineEventError,
				Code:    code,
				Message: message,
			})
		},
	}
}

func mapQuality(q int) callsession.ConnectionQuality {
	switch q {
	case SDKQualityExcellent:
		return callsession.QualityExcellent
	case SDKQualityGood:
		return callsession.QualityGood
	case SDKQualityPoor:
		return callsession.QualityPoor
	case SDKQualityBad:
		return callsession.QualityBad
	case SDKQualityVeryBad:
		return callsession.QualityVeryBad
	case SDKQualityDown:
		return callsession.QualityDown
	default:
		return callsession.QualityUnknown
	}
}

func mapConnState(s int) callsession.ConnState {
	switch s {
	case SDKConnConnecting:
		return callsession.ConnStateConnecting
	case SDKConnConnected:
		return callsession.ConnStateConnected
	case SDKConnReconnecting:
		return callsession.ConnStateReconnecting
	case SDKConnFailed:
		return callsession.ConnStateFailed
	default:
		return callsession.ConnStateDisconnected
	}
}
