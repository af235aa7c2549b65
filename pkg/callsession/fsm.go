package callsession

import "github.com/looplab/fsm"

// События FSM статуса звонка.
// join       – JoinCall принят, начата попытка подключения;
// connect    – движок подтвердил вход в канал (localJoined/connected);
// lose       – временная потеря связи, ростер не трогаем;
// recover    – связь восстановлена;
// fail       – попытка подключения завершилась ошибкой;
// end        – явный выход или терминальный разрыв;
// reset      – возврат в waiting с безусловной очисткой состояния.
const (
	fsmEventJoin    = "join"
	fsmEventConnect = "connect"
	fsmEventLose    = "lose"
	fsmEventRecover = "recover"
	fsmEventFail    = "fail"
	fsmEventEnd     = "end"
	fsmEventReset   = "reset"
)

// newCallFSM строит машину статусов звонка поверх looplab/fsm.
// Таблица переходов - единственный источник истины о допустимых сменах
// статуса: невалидный переход возвращается ошибкой из fsm.Event.
func newCallFSM() *fsm.FSM {
	return fsm.NewFSM(
		string(StatusWaiting),
		fsm.Events{
			{Name: fsmEventJoin, Src: []string{string(StatusWaiting)}, Dst: string(StatusConnecting)},
			{Name: fsmEventConnect, Src: []string{string(StatusConnecting)}, Dst: string(StatusConnected)},
			{Name: fsmEventLose, Src: []string{string(StatusConnected)}, Dst: string(StatusReconnecting)},
			{Name: fsmEventRecover, Src: []string{string(StatusReconnecting)}, Dst: string(StatusConnected)},
			{Name: fsmEventFail, Src: []string{string(StatusConnecting)}, Dst: string(StatusFailed)},
			{Name: fsmEventEnd, Src: []string{
				string(StatusConnecting),
				string(StatusConnected),
				string(StatusReconnecting),
			}, Dst: string(StatusEnded)},
			{Name: fsmEventReset, Src: []string{
				string(StatusEnded),
				string(StatusFailed),
			}, Dst: string(StatusWaiting)},
		}, nil,
	)
}
