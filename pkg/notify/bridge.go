// Package notify связывает машину состояний звонка с внешним слоем
// уведомлений (push/локальные уведомления, рингтон, экран входящего).
//
// Мост работает в обе стороны: переходы статуса транслируются в запросы
// презентации (входящий звонок, идущий звонок с живой длительностью,
// пропущенный звонок), а решения пользователя из слоя уведомлений
// переводятся в команды сессии (accept → JoinCall, hangup → EndCall).
// Сам слой презентации вне ядра и подключается интерфейсом Presenter.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arzzra/soft_call/pkg/callsession"
)

// Action решение пользователя из слоя уведомлений
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionOpen     Action = "open"
	ActionHangup   Action = "hangup"
	ActionCallback Action = "callback"
	ActionMessage  Action = "message"
)

// Command входящая команда слоя уведомлений
type Command struct {
	Action     Action
	SessionID  string
	Kind       callsession.CallKind
	CallerName string
}

// Invitation входящее приглашение в звонок со стороны звонящего
type Invitation struct {
	SessionID  string
	Kind       callsession.CallKind
	CallerName string
	ReceivedAt time.Time
}

// Presenter порт слоя презентации уведомлений.
// Вызовы могут приходить из разных горутин; реализация не должна
// блокировать надолго.
type Presenter interface {
	// ShowIncoming показывает входящий звонок (рингтон, полноэкранное уведомление)
	ShowIncoming(inv Invitation)

	// ShowOngoing обновляет уведомление идущего звонка с живой длительностью
	ShowOngoing(sessionID string, kind callsession.CallKind, duration time.Duration)

	// ShowMissed показывает пропущенный звонок
	ShowMissed(inv Invitation)

	// DismissIncoming убирает представление входящего звонка
	DismissIncoming(sessionID string)

	// DismissOngoing убирает уведомление идущего звонка
	DismissOngoing()
}

// Config конфигурация моста уведомлений
type Config struct {
	// Session машина состояний звонка
	Session *callsession.Session

	// Presenter слой презентации уведомлений
	Presenter Presenter

	// RingTimeout через сколько неотвеченное приглашение становится
	// пропущенным (по умолчанию 40 секунд)
	RingTimeout time.Duration

	// RefreshInterval период обновления уведомления идущего звонка
	// (по умолчанию 1 секунда)
	RefreshInterval time.Duration

	// Logger структурированный логгер
	Logger zerolog.Logger

	// OnNavigate маршрутизация действий open/callback/message в навигацию
	// приложения; вне ядра
	OnNavigate func(cmd Command)
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		RingTimeout:     40 * time.Second,
		RefreshInterval: time.Second,
		Logger:          zerolog.Nop(),
	}
}

type transitionEvent struct {
	from, to callsession.CallStatus
}

type pendingInvite struct {
	inv   Invitation
	timer *time.Timer
}

// Bridge мост между машиной состояний и слоем уведомлений
type Bridge struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	invites     map[string]*pendingInvite
	refreshStop chan struct{}

	transitions chan transitionEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge создает мост и подписывается на переходы статуса сессии
func NewBridge(config Config) (*Bridge, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("notify: Session обязателен")
	}
	if config.Presenter == nil {
		return nil, fmt.Errorf("notify: Presenter обязателен")
	}
	if config.RingTimeout <= 0 {
		config.RingTimeout = 40 * time.Second
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:         config,
		log:         config.Logger.With().Str("component", "notify_bridge").Logger(),
		invites:     make(map[string]*pendingInvite),
		transitions: make(chan transitionEvent, 16),
		ctx:         ctx,
		cancel:      cancel,
	}

	config.Session.SetOnTransition(b.onTransition)

	b.wg.Add(1)
	go b.run()
	return b, nil
}

// Close останавливает мост, таймеры и обновление уведомлений
func (b *Bridge) Close() {
	b.cancel()
	b.mu.Lock()
	for id, p := range b.invites {
		p.timer.Stop()
		delete(b.invites, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// onTransition обработчик переходов статуса; вызывается из цикла
// редуктора сессии, поэтому не блокирует: переполнение буфера роняет
// событие, а не очередь сессии
func (b *Bridge) onTransition(from, to callsession.CallStatus, reason string) {
	select {
	case b.transitions <- transitionEvent{from: from, to: to}:
	default:
		b.log.Warn().Str("to", to.String()).Msg("переход отброшен, мост не успевает")
	}
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			b.stopRefresh()
			return
		case t := <-b.transitions:
			b.handleTransition(t)
		}
	}
}

func (b *Bridge) handleTransition(t transitionEvent) {
	switch t.to {
	case callsession.StatusConnected:
		// reconnecting → connected не перезапускает обновление
		if t.from == callsession.StatusConnecting {
			b.startRefresh()
		}
	case callsession.StatusEnded, callsession.StatusFailed:
		b.stopRefresh()
		b.cfg.Presenter.DismissOngoing()
	}
}

// Deliver доставляет входящее приглашение: презентация входящего звонка
// и таймер пропуска. Повторная доставка того же приглашения перезапускает
// таймер.
func (b *Bridge) Deliver(inv Invitation) {
	if inv.ReceivedAt.IsZero() {
		inv.ReceivedAt = time.Now()
	}
	b.mu.Lock()
	if prev, ok := b.invites[inv.SessionID]; ok {
		prev.timer.Stop()
	}
	id := inv.SessionID
	b.invites[id] = &pendingInvite{
		inv:   inv,
		timer: time.AfterFunc(b.cfg.RingTimeout, func() { b.expire(id) }),
	}
	b.mu.Unlock()

	b.log.Info().Str("session_id", inv.SessionID).Str("caller", inv.CallerName).Msg("входящее приглашение")
	b.cfg.Presenter.ShowIncoming(inv)
}

// expire приглашение не отвечено в пределах RingTimeout
func (b *Bridge) expire(sessionID string) {
	p, ok := b.take(sessionID)
	if !ok {
		return
	}
	b.log.Info().Str("session_id", sessionID).Msg("приглашение просрочено")
	b.cfg.Presenter.DismissIncoming(sessionID)
	b.cfg.Presenter.ShowMissed(p.inv)
}

// take снимает приглашение с учёта и останавливает его таймер
func (b *Bridge) take(sessionID string) (*pendingInvite, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.invites[sessionID]
	if !ok {
		return nil, false
	}
	p.timer.Stop()
	delete(b.invites, sessionID)
	return p, true
}

// HandleCommand переводит решение пользователя в команду сессии
func (b *Bridge) HandleCommand(ctx context.Context, cmd Command) error {
	b.log.Info().Str("action", string(cmd.Action)).Str("session_id", cmd.SessionID).Msg("команда слоя уведомлений")

	switch cmd.Action {
	case ActionAccept:
		kind := cmd.Kind
		if p, ok := b.take(cmd.SessionID); ok {
			b.cfg.Presenter.DismissIncoming(cmd.SessionID)
			if kind == "" {
				kind = p.inv.Kind
			}
		}
		if kind == "" {
			kind = callsession.CallKindAudio
		}
		return b.cfg.Session.JoinCall(ctx, cmd.SessionID, kind)

	case ActionDecline:
		if _, ok := b.take(cmd.SessionID); ok {
			b.cfg.Presenter.DismissIncoming(cmd.SessionID)
		}
		// Вне звонка EndCall идемпотентен и вернёт nil
		return b.cfg.Session.EndCall(ctx)

	case ActionHangup:
		return b.cfg.Session.EndCall(ctx)

	case ActionOpen, ActionCallback, ActionMessage:
		if b.cfg.OnNavigate != nil {
			b.cfg.OnNavigate(cmd)
		}
		return nil

	default:
		return fmt.Errorf("notify: неизвестное действие %q", cmd.Action)
	}
}

// startRefresh запускает периодическое обновление уведомления идущего
// звонка с живой длительностью. Обновления продолжаются и в reconnecting.
func (b *Bridge) startRefresh() {
	b.mu.Lock()
	if b.refreshStop != nil {
		b.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	b.refreshStop = stop
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		t := time.NewTicker(b.cfg.RefreshInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-b.ctx.Done():
				return
			case <-t.C:
				snap := b.cfg.Session.Snapshot()
				if snap.Session == nil {
					continue
				}
				b.cfg.Presenter.ShowOngoing(
					snap.Session.SessionID,
					snap.Session.Kind,
					time.Duration(snap.Controls.CallDuration)*time.Second,
				)
			}
		}
	}()
}

func (b *Bridge) stopRefresh() {
	b.mu.Lock()
	if b.refreshStop != nil {
		close(b.refreshStop)
		b.refreshStop = nil
	}
	b.mu.Unlock()
}
