package callsession

import (
	"time"
)

// CallKind тип звонка. Определяет, запрашивается ли видео трек у движка
// и какой пресет локального управления используется по умолчанию.
type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

// String возвращает строковое представление типа звонка
func (k CallKind) String() string {
	return string(k)
}

// CallStatus статус звонка. Значения совпадают с состояниями FSM (см. fsm.go).
//
// Переходы:
//
//	waiting → connecting          JoinCall принят
//	connecting → connected        движок подтвердил вход в канал
//	connecting → failed           credential/engine/permission ошибка
//	connected → reconnecting      временная потеря связи
//	reconnecting → connected      связь восстановлена
//	connected|reconnecting → ended  явный выход или терминальный разрыв
//	ended|failed → waiting        Reset
type CallStatus string

const (
	StatusWaiting      CallStatus = "waiting"
	StatusConnecting   CallStatus = "connecting"
	StatusConnected    CallStatus = "connected"
	StatusReconnecting CallStatus = "reconnecting"
	StatusEnded        CallStatus = "ended"
	StatusFailed       CallStatus = "failed"
)

// String возвращает строковое представление статуса
func (s CallStatus) String() string {
	return string(s)
}

// IsActive сообщает, занята ли сессия звонком.
// Пока статус активен, новые JoinCall отклоняются (single-flight).
func (s CallStatus) IsActive() bool {
	return s == StatusConnecting || s == StatusConnected || s == StatusReconnecting
}

// ConnectionQuality качество связи участника по данным движка
type ConnectionQuality int

const (
	QualityUnknown ConnectionQuality = iota
	QualityExcellent
	QualityGood
	QualityPoor
	QualityBad
	QualityVeryBad
	QualityDown
)

func (q ConnectionQuality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityPoor:
		return "poor"
	case QualityBad:
		return "bad"
	case QualityVeryBad:
		return "very-bad"
	case QualityDown:
		return "down"
	default:
		return "unknown"
	}
}

// ParticipantRole роль участника в звонке
type ParticipantRole string

const (
	RoleHost        ParticipantRole = "host"
	RoleParticipant ParticipantRole = "participant"
)

// JoinCredential одноразовые реквизиты входа в канал движка.
// Живут в пределах одной попытки подключения: никогда не сохраняются
// на диск и заменяются целиком при каждом (ре)джойне.
type JoinCredential struct {
	AppID       string `json:"appId"`
	Token       string `json:"token"`
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"` // локальная числовая идентичность в канале
}

// CallSession идентифицирует один логический звонок.
// Создаётся после успешного server-side join, очищается при выходе.
// Владелец - Session; наружу отдаются только копии.
type CallSession struct {
	SessionID    string
	Kind         CallKind
	Recording    bool
	RecordingURL string // ссылка на артефакт записи, если backend её вернул
	StartedAt    time.Time
}

// Participant состояние одного участника канала.
// Идентичности уникальны в пределах сессии; локальная сторона всегда
// присутствует в ростере после установления соединения.
type Participant struct {
	UID           uint32
	DisplayName   string
	Role          ParticipantRole
	Connected     bool
	AudioEnabled  bool
	VideoEnabled  bool
	Speaking      bool
	ScreenSharing bool
	Quality       ConnectionQuality
	JoinedAt      time.Time
	LeftAt        *time.Time
}

// LocalControlState локальное состояние управления звонком.
// Мутируется только явными командами пользователя и тикером длительности;
// сбрасывается в значения по умолчанию при выходе из звонка.
//
// CallDuration считает wall-clock звонка в секундах: интервалы reconnecting
// входят в счётчик, деградировавшее время всё равно принадлежит звонку.
type LocalControlState struct {
	Muted           bool
	VideoOff        bool
	SpeakerOn       bool
	FrontCamera     bool
	Minimized       bool
	ControlsVisible bool
	CallDuration    int // секунды
}

// defaultControls возвращает пресет управления для типа звонка.
// Для видео звонка громкая связь включена сразу.
func defaultControls(kind CallKind) LocalControlState {
	return LocalControlState{
		SpeakerOn:       kind == CallKindVideo,
		VideoOff:        kind == CallKindAudio,
		FrontCamera:     true,
		ControlsVisible: true,
	}
}

// Snapshot read-only проекция состояния сессии для UI.
// Все поля - копии: мутации снапшота не влияют на сессию.
type Snapshot struct {
	Status       CallStatus
	Session      *CallSession // nil вне звонка
	Participants []Participant
	Controls     LocalControlState
}
