package callsession

import (
	"fmt"
	"time"
)

// ErrorKind категория ошибки звонка. Различимость категорий - требование
// презентационного слоя: permission лечится выдачей прав, credential -
// повторной попыткой, engine/network - репортом.
type ErrorKind string

const (
	ErrorKindPermission ErrorKind = "PERMISSION"
	ErrorKindCredential ErrorKind = "CREDENTIAL"
	ErrorKindEngine     ErrorKind = "ENGINE"
	ErrorKindNetwork    ErrorKind = "NETWORK"
	ErrorKindState      ErrorKind = "STATE"
	ErrorKindRecording  ErrorKind = "RECORDING"
	ErrorKindSync       ErrorKind = "SYNC"
)

// String возвращает строковое представление категории
func (k ErrorKind) String() string {
	return string(k)
}

// ErrorSeverity уровень критичности ошибки
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "ERROR"   // попытка не может быть завершена
	SeverityWarning ErrorSeverity = "WARNING" // звонок продолжается
)

// CallError структурированная ошибка ядра звонка с контекстом
type CallError struct {
	Code     string        `json:"code"`     // уникальный код ошибки
	Message  string        `json:"message"`  // человекочитаемое сообщение
	Kind     ErrorKind     `json:"kind"`     // категория ошибки
	Severity ErrorSeverity `json:"severity"` // уровень критичности

	SessionID string     `json:"session_id,omitempty"` // логическая сессия
	Status    CallStatus `json:"status,omitempty"`     // статус в момент ошибки
	Timestamp time.Time  `json:"timestamp"`            // время возникновения

	Cause       error `json:"-"`            // исходная ошибка
	Retryable   bool  `json:"retryable"`    // можно ли повторить операцию
	UserVisible bool  `json:"user_visible"` // показывать ли пользователю
}

// Error реализует интерфейс error
func (e *CallError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("[%s:%s] %s (session: %s)", e.Kind, e.Code, e.Message, e.SessionID)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *CallError) Unwrap() error {
	return e.Cause
}

// WithSession добавляет контекст сессии к ошибке
func (e *CallError) WithSession(sessionID string, status CallStatus) *CallError {
	e.SessionID = sessionID
	e.Status = status
	return e
}

// WithCause добавляет исходную ошибку
func (e *CallError) WithCause(cause error) *CallError {
	e.Cause = cause
	return e
}

// IsRetryable проверяет, можно ли повторить операцию
func (e *CallError) IsRetryable() bool {
	return e.Retryable
}

// NewCallError создает новую структурированную ошибку звонка
func NewCallError(code, message string, kind ErrorKind, severity ErrorSeverity) *CallError {
	return &CallError{
		Code:        code,
		Message:     message,
		Kind:        kind,
		Severity:    severity,
		Timestamp:   time.Now(),
		UserVisible: severity == SeverityError,
	}
}

// Предопределенные ошибки для частых случаев

// ErrAlreadyInCall повторный JoinCall при активной сессии.
// Ошибка использования: отклоняется немедленно, состояние не меняется.
func ErrAlreadyInCall(current CallStatus) *CallError {
	return NewCallError(
		"ALREADY_IN_CALL",
		fmt.Sprintf("звонок уже активен (статус %s)", current),
		ErrorKindState,
		SeverityError,
	).WithSession("", current)
}

// ErrPermissionDenied доступ к камере/микрофону отклонён.
// Терминальна для попытки: пользователь должен выдать права и повторить вручную.
func ErrPermissionDenied(device string) *CallError {
	return NewCallError(
		"PERMISSION_DENIED",
		fmt.Sprintf("нет доступа к устройству: %s", device),
		ErrorKindPermission,
		SeverityError,
	)
}

// ErrCredentialFetch не удалось получить реквизиты входа.
// Retryable: повторный JoinCall допустим.
func ErrCredentialFetch(cause error) *CallError {
	err := NewCallError(
		"CREDENTIAL_FETCH_FAILED",
		"не удалось получить токен подключения",
		ErrorKindCredential,
		SeverityError,
	).WithCause(cause)
	err.Retryable = true
	return err
}

// ErrEngineInit медиа движок не смог стартовать
func ErrEngineInit(cause error) *CallError {
	return NewCallError(
		"ENGINE_INIT_FAILED",
		"не удалось инициализировать медиа движок",
		ErrorKindEngine,
		SeverityError,
	).WithCause(cause)
}

// ErrEngineJoin движок не смог войти в канал
func ErrEngineJoin(cause error) *CallError {
	return NewCallError(
		"ENGINE_JOIN_FAILED",
		"не удалось подключиться к каналу",
		ErrorKindEngine,
		SeverityError,
	).WithCause(cause)
}

// ErrJoinCanceled попытка подключения отменена вызовом LeaveCall
// до её завершения. Поздние разрешения credential/join после отмены
// игнорируются и не воскрешают сессию.
func ErrJoinCanceled() *CallError {
	err := NewCallError(
		"JOIN_CANCELED",
		"попытка подключения отменена",
		ErrorKindState,
		SeverityWarning,
	)
	err.UserVisible = false
	return err
}

// ErrRecordingFailed операция записи не удалась на стороне backend.
// Нефатальна: звонок продолжается, состояние записи не меняется.
func ErrRecordingFailed(op string, cause error) *CallError {
	err := NewCallError(
		"RECORDING_FAILED",
		fmt.Sprintf("операция записи '%s' не удалась", op),
		ErrorKindRecording,
		SeverityWarning,
	).WithCause(cause)
	err.Retryable = true
	err.UserVisible = true
	return err
}

// ErrInvalidStatus операция недопустима в текущем статусе
func ErrInvalidStatus(op string, current CallStatus) *CallError {
	return NewCallError(
		"INVALID_STATUS",
		fmt.Sprintf("нельзя выполнить операцию '%s' в статусе %s", op, current),
		ErrorKindState,
		SeverityError,
	).WithSession("", current)
}

// ErrSyncFailed best-effort уведомление backend не удалось.
// Только логируется: никогда не пробрасывается вызывающему и не
// блокирует teardown.
func ErrSyncFailed(op string, cause error) *CallError {
	err := NewCallError(
		"SYNC_FAILED",
		fmt.Sprintf("уведомление backend '%s' не удалось", op),
		ErrorKindSync,
		SeverityWarning,
	).WithCause(cause)
	err.UserVisible = false
	return err
}
