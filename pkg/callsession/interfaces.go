package callsession

import (
	"context"
)

// CredentialGateway порт получения реквизитов входа от backend.
// Никаких внутренних ретраев: повторные попытки - ответственность
// вызывающего через повторный JoinCall.
type CredentialGateway interface {
	// RequestCredential запрашивает одноразовые реквизиты входа в канал
	// для логической сессии и типа звонка
	RequestCredential(ctx context.Context, sessionID string, kind CallKind) (JoinCredential, error)
}

// Engine порт медиа движка. Ядро зависит только от этого контракта,
// а не от конкретного SDK; реализацию см. в pkg/engine.
type Engine interface {
	// Initialize готовит движок к работе. Идемпотентна.
	Initialize(ctx context.Context, appID string) error

	// Join входит в канал по реквизитам. После успеха движок начинает
	// эмитить события только этого канала.
	Join(ctx context.Context, cred JoinCredential, kind CallKind) error

	// Leave покидает канал. Best-effort против движка: локально
	// завершается всегда.
	Leave(ctx context.Context) error

	// Управляющие операции fire-and-forget: подтверждение не ожидается,
	// авторитетное состояние приносят события движка.
	SetMuted(muted bool) error
	SetVideoEnabled(enabled bool) error
	SwitchCamera() error
	SetSpeaker(on bool) error

	// Events упорядоченный поток событий движка
	Events() <-chan EngineEvent
}

// ServerSync порт best-effort уведомлений backend о ходе звонка.
// Ошибки любого метода никогда не блокируют и не откатывают локальное
// состояние (кроме операций записи, которые подтверждаются сервером).
type ServerSync interface {
	NotifyJoin(ctx context.Context, sessionID string, uid uint32) error
	NotifyLeave(ctx context.Context, sessionID string, uid uint32) error
	NotifyEnd(ctx context.Context, sessionID string) error

	// StartRecording и StopRecording подтверждаются сервером:
	// локальный флаг записи меняется только при успехе.
	StartRecording(ctx context.Context, sessionID string) error
	StopRecording(ctx context.Context, sessionID string) (recordingURL string, err error)
}

// ScreenAwake порт удержания экрана активным на время звонка
type ScreenAwake interface {
	Acquire()
	Release()
}

// nopScreenAwake заглушка для конфигураций без контроля дисплея
type nopScreenAwake struct{}

func (nopScreenAwake) Acquire() {}
func (nopScreenAwake) Release() {}
