package callsession

// EngineEventType тип события медиа движка
type EngineEventType int

const (
	// EngineEventLocalJoined локальная сторона вошла в канал
	EngineEventLocalJoined EngineEventType = iota + 1
	// EngineEventParticipantJoined удалённый участник вошёл в канал
	EngineEventParticipantJoined
	// EngineEventParticipantLeft удалённый участник покинул канал
	EngineEventParticipantLeft
	// EngineEventAudioMuteChanged участник включил/выключил микрофон
	EngineEventAudioMuteChanged
	// EngineEventVideoMuteChanged участник включил/выключил камеру
	EngineEventVideoMuteChanged
	// EngineEventNetworkQuality периодическая выборка качества связи участника
	EngineEventNetworkQuality
	// EngineEventConnectionStateChanged смена состояния соединения с каналом
	EngineEventConnectionStateChanged
	// EngineEventError ошибка уровня движка; нефатальные логируются и игнорируются
	EngineEventError
)

func (t EngineEventType) String() string {
	switch t {
	case EngineEventLocalJoined:
		return "local_joined"
	case EngineEventParticipantJoined:
		return "participant_joined"
	case EngineEventParticipantLeft:
		return "participant_left"
	case EngineEventAudioMuteChanged:
		return "audio_mute_changed"
	case EngineEventVideoMuteChanged:
		return "video_mute_changed"
	case EngineEventNetworkQuality:
		return "network_quality"
	case EngineEventConnectionStateChanged:
		return "connection_state_changed"
	case EngineEventError:
		return "engine_error"
	default:
		return "unknown"
	}
}

// ConnState состояние соединения движка с каналом
type ConnState int

const (
	ConnStateDisconnected ConnState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateReconnecting
	ConnStateFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateReconnecting:
		return "reconnecting"
	case ConnStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EngineEvent событие медиа движка в нормализованном виде.
// Поток событий упорядочен в порядке доставки движком; при переполнении
// буфера адаптер отбрасывает самое старое непрочитанное событие
// (каждое событие лишь сужает состояние до последней истины по участнику).
type EngineEvent struct {
	Type EngineEventType

	// UID идентичность участника для событий уровня участника
	UID uint32

	// Muted для событий audio/video mute
	Muted bool

	// Quality для событий network quality
	Quality ConnectionQuality

	// State и Reason для событий смены состояния соединения
	State  ConnState
	Reason string

	// Code и Message для событий ошибки движка
	Code    int
	Message string
}
