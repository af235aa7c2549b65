package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Проверка на соответствие интерфейсам коллабораторов не требуется:
// Session сам является корневым объектом ядра.

// SessionConfig содержит параметры конфигурации для создания Session.
// Gateway, Engine и Sync обязательны, остальные поля опциональны.
type SessionConfig struct {
	// Gateway источник реквизитов входа
	Gateway CredentialGateway

	// Engine медиа движок (см. pkg/engine)
	Engine Engine

	// Sync best-effort уведомления backend
	Sync ServerSync

	// Awake удержание экрана на время звонка; nil означает заглушку
	Awake ScreenAwake

	// LocalDisplayName отображаемое имя локальной стороны в ростере
	LocalDisplayName string

	// TickInterval период тикера длительности (по умолчанию 1 секунда)
	TickInterval time.Duration

	// TeardownStepTimeout лимит одного шага teardown (по умолчанию 5 секунд)
	TeardownStepTimeout time.Duration

	// Logger структурированный логгер
	Logger zerolog.Logger

	// Metrics сборщик метрик; nil означает выключенные метрики
	Metrics *MetricsCollector

	// OnError вызывается для нефатальных ошибок (запись, sync, события
	// движка). Обработчик не должен блокировать.
	OnError func(err *CallError)
}

// DefaultSessionConfig возвращает конфигурацию по умолчанию
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TickInterval:        time.Second,
		TeardownStepTimeout: 5 * time.Second,
		Logger:              zerolog.Nop(),
	}
}

// TransitionHandler обработчик переходов статуса звонка.
// Вызывается из цикла редуктора: обязан возвращаться быстро и не
// вызывать методы Session синхронно.
type TransitionHandler func(from, to CallStatus, reason string)

// cmdOp тип команды редуктора
type cmdOp int

const (
	opJoin cmdOp = iota + 1
	opJoinResolved
	opJoinFailed
	opLeave
	opTeardownDone
	opTick
	opToggleMute
	opToggleVideo
	opToggleSpeaker
	opSwitchCamera
	opSetMinimized
	opSetControlsVisible
	opCommitRecording
	opReset
)

// command единица очереди редуктора. Все мутации состояния сессии
// проходят через эту очередь: ни один переход не применяется конкурентно.
type command struct {
	op cmdOp

	sessionID string
	kind      CallKind

	attemptID uint64
	cred      JoinCredential
	err       error

	end          bool
	flag         bool
	recording    bool
	recordingURL string

	reply chan error // буферизован на 1 вызывающей стороной
}

// joinAttempt состояние одной попытки подключения.
// Подключение считается установленным, когда движок подтвердил Join
// (engineDone) и пришло событие localJoined/connected (mediaUp) - порядок
// этих двух сигналов не гарантирован.
type joinAttempt struct {
	id        uint64
	sessionID string
	kind      CallKind
	cred      JoinCredential
	done      chan error

	engineDone bool
	mediaUp    bool
}

// teardownState состояние идущего teardown
type teardownState struct {
	end     bool
	waiters []chan error
}

// Session машина состояний звонка и единственный владелец его состояния.
//
// Все события движка и все команды пользователя сериализуются через одну
// очередь (цикл run). Долгие операции (credential, initialize, join,
// leave, уведомления backend) выполняются в отдельных горутинах и
// возвращают результат в очередь командой; пока попытка подключения
// не разрешилась, статус connecting отклоняет новые JoinCall.
//
// Session является thread-safe и может использоваться из разных горутин.
type Session struct {
	cfg     SessionConfig
	log     zerolog.Logger
	metrics *MetricsCollector
	awake   ScreenAwake

	// machine принадлежит исключительно циклу редуктора
	machine *fsm.FSM

	// Наблюдаемое состояние под mu; пишет только цикл редуктора
	mu       sync.RWMutex
	status   CallStatus
	session  *CallSession
	cred     JoinCredential
	roster   *Roster
	controls LocalControlState

	cbMu         sync.RWMutex
	onTransition TransitionHandler

	cmds chan command

	// attempt монотонный счётчик попыток подключения. Инкрементируется
	// редуктором; горутина попытки читает его между медленными шагами,
	// чтобы не продолжать от имени отменённой попытки.
	attempt atomic.Uint64

	// Состояние попытки/teardown: только цикл редуктора
	pending    *joinAttempt
	tearing    *teardownState
	tickerStop chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession создает сессию и запускает цикл редуктора.
// Session живёт дольше одного звонка: после Reset готова к следующему.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("callsession: Gateway обязателен")
	}
	if config.Engine == nil {
		return nil, fmt.Errorf("callsession: Engine обязателен")
	}
	if config.Sync == nil {
		return nil, fmt.Errorf("callsession: Sync обязателен")
	}
	if config.Awake == nil {
		config.Awake = nopScreenAwake{}
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.TeardownStepTimeout <= 0 {
		config.TeardownStepTimeout = 5 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = NewMetricsCollector(&MetricsConfig{Enabled: false})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     config,
		log:     config.Logger.With().Str("component", "callsession").Logger(),
		metrics: config.Metrics,
		awake:   config.Awake,
		machine: newCallFSM(),
		status:  StatusWaiting,
		cmds:    make(chan command, 64),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Close останавливает цикл редуктора и дожидается фоновых горутин.
// Активный звонок рекомендуется завершить LeaveCall до Close.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// SetOnTransition устанавливает обработчик переходов статуса
func (s *Session) SetOnTransition(fn TransitionHandler) {
	s.cbMu.Lock()
	s.onTransition = fn
	s.cbMu.Unlock()
}

// Status возвращает текущий статус звонка
func (s *Session) Status() CallStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot возвращает read-only проекцию состояния для UI.
// Не блокирует очередь редуктора.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Status: s.status, Controls: s.controls}
	if s.session != nil {
		cp := *s.session
		snap.Session = &cp
	}
	if s.roster != nil {
		snap.Participants = s.roster.List()
	}
	return snap
}

// JoinCall начинает звонок в логической сессии sessionID.
//
// Блокирует вызывающего (не очередь) до установления соединения или
// ошибки попытки. При активной сессии немедленно возвращает
// ErrAlreadyInCall. Отмена ctx отпускает вызывающего, но не прерывает
// попытку: её судьбу решит LeaveCall или ответ движка.
func (s *Session) JoinCall(ctx context.Context, sessionID string, kind CallKind) error {
	done := make(chan error, 1)
	if !s.post(command{op: opJoin, sessionID: sessionID, kind: kind, reply: done}) {
		return ErrInvalidStatus("joinCall", s.Status())
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveCall покидает звонок. Идемпотентна: повторный вызов и вызов вне
// звонка возвращают nil. Допустима в любой момент, включая середину
// connecting - незавершённая попытка подключения отменяется, и её
// позднее разрешение не воскресит сессию.
func (s *Session) LeaveCall(ctx context.Context) error {
	return s.hangup(ctx, false)
}

// EndCall завершает звонок для всех: как LeaveCall, но backend
// уведомляется о конце звонка, а не о выходе участника.
func (s *Session) EndCall(ctx context.Context) error {
	return s.hangup(ctx, true)
}

func (s *Session) hangup(ctx context.Context, end bool) error {
	done := make(chan error, 1)
	if !s.post(command{op: opLeave, end: end, reply: done}) {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset возвращает сессию из ended/failed в waiting, безусловно очищая
// CallSession, ростер и локальное состояние управления.
func (s *Session) Reset() error {
	return s.control(context.Background(), command{op: opReset})
}

// ToggleMute переключает микрофон. Оптимистично: локальный флаг
// меняется сразу, движок уведомляется fire-and-forget. Если последующее
// событие движка для локальной идентичности противоречит флагу,
// авторитетно событие (last engine-confirmed wins).
func (s *Session) ToggleMute(ctx context.Context) error {
	return s.control(ctx, command{op: opToggleMute})
}

// ToggleVideo переключает локальную камеру (оптимистично, см. ToggleMute)
func (s *Session) ToggleVideo(ctx context.Context) error {
	return s.control(ctx, command{op: opToggleVideo})
}

// ToggleSpeaker переключает громкую связь (оптимистично, см. ToggleMute)
func (s *Session) ToggleSpeaker(ctx context.Context) error {
	return s.control(ctx, command{op: opToggleSpeaker})
}

// SwitchCamera переключает фронтальную/основную камеру
func (s *Session) SwitchCamera(ctx context.Context) error {
	return s.control(ctx, command{op: opSwitchCamera})
}

// SetMinimized сворачивает/разворачивает представление звонка
func (s *Session) SetMinimized(ctx context.Context, minimized bool) error {
	return s.control(ctx, command{op: opSetMinimized, flag: minimized})
}

// SetControlsVisible показывает/прячет панель управления
func (s *Session) SetControlsVisible(ctx context.Context, visible bool) error {
	return s.control(ctx, command{op: opSetControlsVisible, flag: visible})
}

func (s *Session) control(ctx context.Context, cmd command) error {
	done := make(chan error, 1)
	cmd.reply = done
	if !s.post(cmd) {
		return ErrInvalidStatus("control", s.Status())
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartRecording включает запись звонка через backend.
// Сетевой вызов идёт вне очереди редуктора; флаг записи меняется только
// при успехе. Ошибка нефатальна: звонок продолжается.
func (s *Session) StartRecording(ctx context.Context) error {
	snap := s.Snapshot()
	if snap.Session == nil || !snap.Status.IsActive() {
		return ErrRecordingFailed("start", ErrInvalidStatus("startRecording", snap.Status))
	}
	if err := s.cfg.Sync.StartRecording(ctx, snap.Session.SessionID); err != nil {
		s.metrics.Error(ErrorKindRecording)
		return ErrRecordingFailed("start", err)
	}
	return s.control(ctx, command{op: opCommitRecording, recording: true})
}

// StopRecording выключает запись звонка через backend.
// Ссылка на артефакт записи, если backend её вернул, сохраняется в
// CallSession.RecordingURL.
func (s *Session) StopRecording(ctx context.Context) error {
	snap := s.Snapshot()
	if snap.Session == nil || !snap.Status.IsActive() {
		return ErrRecordingFailed("stop", ErrInvalidStatus("stopRecording", snap.Status))
	}
	url, err := s.cfg.Sync.StopRecording(ctx, snap.Session.SessionID)
	if err != nil {
		s.metrics.Error(ErrorKindRecording)
		return ErrRecordingFailed("stop", err)
	}
	return s.control(ctx, command{op: opCommitRecording, recording: false, recordingURL: url})
}

// post ставит команду в очередь редуктора
func (s *Session) post(cmd command) bool {
	select {
	case s.cmds <- cmd:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// run цикл редуктора: единственный владелец мутаций состояния.
// Выбор между очередью команд и потоком событий движка не переупорядочивает
// события одного источника.
func (s *Session) run() {
	defer s.wg.Done()
	events := s.cfg.Engine.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEngineEvent(ev)
		}
	}
}

func (s *Session) handleCommand(cmd command) {
	switch cmd.op {
	case opJoin:
		s.handleJoin(cmd)
	case opJoinResolved:
		s.handleJoinResolved(cmd)
	case opJoinFailed:
		s.handleJoinFailed(cmd)
	case opLeave:
		s.beginTeardown(cmd.end, "команда выхода", cmd.reply)
	case opTeardownDone:
		s.finishTeardown()
	case opTick:
		s.handleTick()
	case opToggleMute, opToggleVideo, opToggleSpeaker, opSwitchCamera:
		s.handleControl(cmd)
	case opSetMinimized:
		s.mu.Lock()
		s.controls.Minimized = cmd.flag
		s.mu.Unlock()
		cmd.reply <- nil
	case opSetControlsVisible:
		s.mu.Lock()
		s.controls.ControlsVisible = cmd.flag
		s.mu.Unlock()
		cmd.reply <- nil
	case opCommitRecording:
		s.handleCommitRecording(cmd)
	case opReset:
		s.handleReset(cmd)
	}
}

func (s *Session) handleJoin(cmd command) {
	st := s.Status()
	if st.IsActive() {
		cmd.reply <- ErrAlreadyInCall(st).WithSession(cmd.sessionID, st)
		return
	}
	// Из ended/failed новый звонок начинается с неявного Reset:
	// состояние предыдущего звонка очищается безусловно
	if st == StatusEnded || st == StatusFailed {
		s.clearState()
		if !s.transition(fsmEventReset, "новый звонок") {
			cmd.reply <- ErrInvalidStatus("joinCall", st)
			return
		}
	}
	if !s.transition(fsmEventJoin, "joinCall") {
		cmd.reply <- ErrInvalidStatus("joinCall", s.Status())
		return
	}

	att := &joinAttempt{
		id:        s.attempt.Add(1),
		sessionID: cmd.sessionID,
		kind:      cmd.kind,
		done:      cmd.reply,
	}
	s.pending = att

	s.mu.Lock()
	s.controls = defaultControls(cmd.kind)
	s.mu.Unlock()

	s.metrics.CallStarted(cmd.kind)
	s.log.Info().
		Str("session_id", cmd.sessionID).
		Str("kind", cmd.kind.String()).
		Uint64("attempt", att.id).
		Msg("начата попытка подключения")

	s.wg.Add(1)
	go s.runJoinAttempt(att.id, cmd.sessionID, cmd.kind)
}

// runJoinAttempt выполняет медленную часть подключения вне очереди:
// credential → initialize → join. Результат возвращается в очередь
// с идентификатором попытки; устаревшие результаты отбрасываются.
func (s *Session) runJoinAttempt(id uint64, sessionID string, kind CallKind) {
	defer s.wg.Done()

	cred, err := s.cfg.Gateway.RequestCredential(s.ctx, sessionID, kind)
	if err != nil {
		s.post(command{op: opJoinFailed, attemptID: id, err: classifyJoinErr(err, ErrCredentialFetch)})
		return
	}
	if s.attempt.Load() != id {
		// Попытка отменена, пока ждали реквизиты: движок не трогаем
		return
	}
	if err := s.cfg.Engine.Initialize(s.ctx, cred.AppID); err != nil {
		s.post(command{op: opJoinFailed, attemptID: id, err: classifyJoinErr(err, ErrEngineInit)})
		return
	}
	if s.attempt.Load() != id {
		return
	}
	if err := s.cfg.Engine.Join(s.ctx, cred, kind); err != nil {
		s.post(command{op: opJoinFailed, attemptID: id, err: classifyJoinErr(err, ErrEngineJoin)})
		return
	}
	s.post(command{op: opJoinResolved, attemptID: id, cred: cred})
}

// classifyJoinErr сохраняет типизированную ошибку коллаборатора
// (например PermissionDenied от движка), иначе оборачивает в категорию шага
func classifyJoinErr(err error, wrap func(error) *CallError) error {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	return wrap(err)
}

func (s *Session) handleJoinResolved(cmd command) {
	if s.pending == nil || s.pending.id != cmd.attemptID {
		// Позднее разрешение отменённой попытки: сессию не воскрешаем,
		// но канал движка нужно покинуть
		s.log.Warn().Uint64("attempt", cmd.attemptID).Msg("позднее разрешение join, канал будет покинут")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TeardownStepTimeout)
			defer cancel()
			if err := s.cfg.Engine.Leave(ctx); err != nil {
				s.log.Warn().Err(err).Msg("leave после позднего join не удался")
			}
		}()
		return
	}
	s.pending.cred = cmd.cred
	s.pending.engineDone = true
	s.maybeCompleteJoin()
}

func (s *Session) handleJoinFailed(cmd command) {
	if s.pending == nil || s.pending.id != cmd.attemptID {
		s.log.Debug().Uint64("attempt", cmd.attemptID).Msg("поздняя ошибка отменённой попытки, пропущено")
		return
	}
	att := s.pending
	s.pending = nil

	callErr, ok := cmd.err.(*CallError)
	if !ok {
		callErr = ErrEngineJoin(cmd.err)
	}
	callErr.WithSession(att.sessionID, StatusFailed)

	s.transition(fsmEventFail, callErr.Code)
	s.metrics.CallFailed(callErr.Kind)
	s.clearState()

	s.log.Error().Err(callErr).Str("session_id", att.sessionID).Msg("попытка подключения не удалась")
	att.done <- callErr
}

// maybeCompleteJoin завершает подключение, когда есть оба сигнала:
// успех Join движка и событие localJoined/connected
func (s *Session) maybeCompleteJoin() {
	att := s.pending
	if att == nil || !att.engineDone || !att.mediaUp {
		return
	}
	s.pending = nil

	s.mu.Lock()
	s.cred = att.cred
	s.session = &CallSession{
		SessionID: att.sessionID,
		Kind:      att.kind,
		StartedAt: time.Now(),
	}
	s.roster = NewRoster(att.cred.UID, s.cfg.LocalDisplayName, s.log)
	s.mu.Unlock()

	s.transition(fsmEventConnect, "движок подтвердил вход")
	s.applyRosterEvent(EngineEvent{Type: EngineEventLocalJoined})

	s.startTicker()
	s.awake.Acquire()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TeardownStepTimeout)
		defer cancel()
		if err := s.cfg.Sync.NotifyJoin(ctx, att.sessionID, att.cred.UID); err != nil {
			s.reportError(ErrSyncFailed("join", err))
		}
	}()

	att.done <- nil
}

func (s *Session) handleEngineEvent(ev EngineEvent) {
	switch ev.Type {
	case EngineEventConnectionStateChanged:
		s.handleConnState(ev)
	case EngineEventLocalJoined:
		if s.pending != nil {
			s.pending.mediaUp = true
			s.maybeCompleteJoin()
			return
		}
		s.applyRosterEvent(ev)
	case EngineEventError:
		// Нефатальные ошибки движка логируются и учитываются, звонок продолжается
		s.log.Warn().Int("code", ev.Code).Str("message", ev.Message).Msg("ошибка движка")
		s.metrics.Error(ErrorKindEngine)
		s.reportError(NewCallError("ENGINE_EVENT", ev.Message, ErrorKindEngine, SeverityWarning))
	default:
		s.applyRosterEvent(ev)
	}
}

func (s *Session) handleConnState(ev EngineEvent) {
	st := s.Status()
	switch ev.State {
	case ConnStateConnected:
		if s.pending != nil && st == StatusConnecting {
			s.pending.mediaUp = true
			s.maybeCompleteJoin()
			return
		}
		if st == StatusReconnecting {
			s.transition(fsmEventRecover, ev.Reason)
		}
	case ConnStateReconnecting:
		if st == StatusConnected {
			// Ростер не трогаем, тикер длительности продолжает считать
			s.metrics.Reconnect()
			s.transition(fsmEventLose, ev.Reason)
		}
	case ConnStateFailed, ConnStateDisconnected:
		if st == StatusConnected || st == StatusReconnecting {
			s.beginTeardown(false, "терминальный разрыв движка", nil)
		}
	}
}

// applyRosterEvent применяет событие к ростеру и реконсилирует
// оптимистичные локальные флаги: событие с локальной идентичностью
// авторитетно перезаписывает их
func (s *Session) applyRosterEvent(ev EngineEvent) {
	s.mu.Lock()
	if s.roster == nil {
		s.mu.Unlock()
		return
	}
	s.roster.Apply(ev)
	if ev.UID == s.roster.LocalUID() || ev.Type == EngineEventLocalJoined {
		switch ev.Type {
		case EngineEventAudioMuteChanged:
			s.controls.Muted = ev.Muted
		case EngineEventVideoMuteChanged:
			s.controls.VideoOff = ev.Muted
		}
	}
	n := s.roster.Len()
	s.mu.Unlock()
	s.metrics.RosterSize(n)
}

func (s *Session) handleControl(cmd command) {
	st := s.Status()
	if st != StatusConnected && st != StatusReconnecting {
		cmd.reply <- ErrInvalidStatus("control", st)
		return
	}

	// Оптимистичный флип сразу, движок уведомляется fire-and-forget
	s.mu.Lock()
	var call func() error
	switch cmd.op {
	case opToggleMute:
		s.controls.Muted = !s.controls.Muted
		muted := s.controls.Muted
		call = func() error { return s.cfg.Engine.SetMuted(muted) }
	case opToggleVideo:
		s.controls.VideoOff = !s.controls.VideoOff
		enabled := !s.controls.VideoOff
		call = func() error { return s.cfg.Engine.SetVideoEnabled(enabled) }
	case opToggleSpeaker:
		s.controls.SpeakerOn = !s.controls.SpeakerOn
		on := s.controls.SpeakerOn
		call = func() error { return s.cfg.Engine.SetSpeaker(on) }
	case opSwitchCamera:
		s.controls.FrontCamera = !s.controls.FrontCamera
		call = func() error { return s.cfg.Engine.SwitchCamera() }
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := call(); err != nil {
			s.log.Warn().Err(err).Msg("управляющий вызов движка не удался")
		}
	}()
	cmd.reply <- nil
}

func (s *Session) handleCommitRecording(cmd command) {
	s.mu.Lock()
	if s.session != nil {
		s.session.Recording = cmd.recording
		if cmd.recordingURL != "" {
			s.session.RecordingURL = cmd.recordingURL
		}
	}
	s.mu.Unlock()
	cmd.reply <- nil
}

func (s *Session) handleReset(cmd command) {
	switch s.Status() {
	case StatusWaiting:
		cmd.reply <- nil
	case StatusEnded, StatusFailed:
		s.clearState()
		s.transition(fsmEventReset, "reset")
		cmd.reply <- nil
	default:
		cmd.reply <- ErrInvalidStatus("reset", s.Status())
	}
}

func (s *Session) handleTick() {
	if s.tearing != nil {
		return
	}
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	// Wall-clock звонка: интервалы reconnecting входят в счётчик
	s.controls.CallDuration++
	s.mu.Unlock()
}

// beginTeardown запускает точную последовательность выхода:
// стоп тикера → leave движка → уведомление backend → отпускание экрана →
// очистка состояния → ended. Каждый шаг независим: ошибка одного не
// мешает остальным, выход из звонка не может застрять.
func (s *Session) beginTeardown(end bool, reason string, waiter chan error) {
	if s.tearing != nil {
		if waiter != nil {
			s.tearing.waiters = append(s.tearing.waiters, waiter)
		}
		return
	}
	st := s.Status()
	if !st.IsActive() {
		// Выход вне звонка идемпотентен
		if waiter != nil {
			waiter <- nil
		}
		return
	}

	// Шаг 1: тикер останавливается до любых остальных шагов, чтобы тик
	// не сработал против очищенной сессии
	s.stopTicker()

	// Незавершённая попытка подключения отменяется: счётчик попыток
	// растёт, и её позднее разрешение станет устаревшим
	if s.pending != nil {
		att := s.pending
		s.pending = nil
		s.attempt.Add(1)
		att.done <- ErrJoinCanceled()
	}

	s.tearing = &teardownState{end: end}
	if waiter != nil {
		s.tearing.waiters = append(s.tearing.waiters, waiter)
	}

	s.mu.RLock()
	var sessionID string
	var uid uint32
	if s.session != nil {
		sessionID = s.session.SessionID
		uid = s.cred.UID
	}
	s.mu.RUnlock()

	s.log.Info().Str("session_id", sessionID).Str("reason", reason).Bool("end", end).Msg("начат выход из звонка")

	s.wg.Add(1)
	go s.runTeardown(end, sessionID, uid)
}

// runTeardown выполняет медленные шаги выхода вне очереди редуктора
func (s *Session) runTeardown(end bool, sessionID string, uid uint32) {
	defer s.wg.Done()

	step := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TeardownStepTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn().Err(err).Str("step", name).Msg("шаг teardown не удался, продолжаем")
		}
	}

	step("engine_leave", func(ctx context.Context) error {
		return s.cfg.Engine.Leave(ctx)
	})
	if sessionID != "" {
		step("server_sync", func(ctx context.Context) error {
			var err error
			if end {
				err = s.cfg.Sync.NotifyEnd(ctx, sessionID)
			} else {
				err = s.cfg.Sync.NotifyLeave(ctx, sessionID, uid)
			}
			if err != nil {
				s.reportError(ErrSyncFailed("leave", err))
			}
			return err
		})
	}
	s.awake.Release()

	s.post(command{op: opTeardownDone})
}

// finishTeardown очищает состояние и переводит статус в ended
func (s *Session) finishTeardown() {
	t := s.tearing
	if t == nil {
		return
	}
	s.tearing = nil

	s.mu.RLock()
	duration := s.controls.CallDuration
	s.mu.RUnlock()

	s.clearState()
	s.transition(fsmEventEnd, "teardown завершён")
	s.metrics.CallEnded(duration)

	for _, w := range t.waiters {
		w <- nil
	}
}

// clearState безусловно очищает CallSession, ростер и локальное управление
func (s *Session) clearState() {
	s.mu.Lock()
	s.session = nil
	s.cred = JoinCredential{}
	if s.roster != nil {
		s.roster.Clear()
		s.roster = nil
	}
	s.controls = LocalControlState{}
	s.mu.Unlock()
}

// transition применяет событие FSM; невалидный переход логируется и
// оставляет статус без изменений
func (s *Session) transition(event, reason string) bool {
	from := CallStatus(s.machine.Current())
	if err := s.machine.Event(context.Background(), event); err != nil {
		s.log.Error().Err(err).Str("event", event).Str("from", from.String()).Msg("невалидный переход статуса")
		return false
	}
	to := CallStatus(s.machine.Current())

	s.mu.Lock()
	s.status = to
	s.mu.Unlock()

	s.metrics.StateTransition(from, to)
	s.log.Info().Str("from", from.String()).Str("to", to.String()).Str("reason", reason).Msg("переход статуса")

	s.cbMu.RLock()
	fn := s.onTransition
	s.cbMu.RUnlock()
	if fn != nil {
		fn(from, to, reason)
	}
	return true
}

func (s *Session) startTicker() {
	stop := make(chan struct{})
	s.tickerStop = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.cfg.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-s.ctx.Done():
				return
			case <-t.C:
				s.post(command{op: opTick})
			}
		}
	}()
}

func (s *Session) stopTicker() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *Session) reportError(err *CallError) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
