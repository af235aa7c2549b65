package callsession

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DeltaType тип изменения ростера после применения события
type DeltaType int

const (
	// DeltaNone событие не изменило ростер
	DeltaNone DeltaType = iota
	// DeltaJoined участник добавлен
	DeltaJoined
	// DeltaLeft участник удалён
	DeltaLeft
	// DeltaUpdated атрибуты участника обновлены на месте
	DeltaUpdated
)

func (d DeltaType) String() string {
	switch d {
	case DeltaJoined:
		return "joined"
	case DeltaLeft:
		return "left"
	case DeltaUpdated:
		return "updated"
	default:
		return "none"
	}
}

// RosterDelta результат применения одного события движка к ростеру
type RosterDelta struct {
	Type DeltaType
	UID  uint32
}

// Roster авторитетный реестр участников сессии.
//
// Чистый редуктор над событиями движка: участники создаются событием
// joined, удаляются событием left, атрибуты мутируются на месте
// последующими событиями той же идентичности. Никакой другой источник
// ростер не мутирует.
//
// Roster не содержит собственной синхронизации: все мутации выполняет
// единственный владелец (цикл редуктора Session), чтение извне идёт
// через копии под блокировкой сессии.
type Roster struct {
	localUID  uint32
	localName string

	participants map[uint32]*Participant

	log zerolog.Logger
}

// NewRoster создает ростер для одной сессии.
// localUID - идентичность локальной стороны из JoinCredential.
func NewRoster(localUID uint32, localName string, log zerolog.Logger) *Roster {
	return &Roster{
		localUID:     localUID,
		localName:    localName,
		participants: make(map[uint32]*Participant),
		log:          log.With().Str("component", "roster").Logger(),
	}
}

// LocalUID возвращает идентичность локальной стороны
func (r *Roster) LocalUID() uint32 {
	return r.localUID
}

// Apply применяет событие движка и возвращает результирующее изменение.
//
// Повторный joined известной идентичности - no-op (движок может
// передоставить уведомление после короткого реконнекта). joined с
// локальной идентичностью - no-op: локальная сторона никогда не
// вставляется как удалённый участник. Событие по неизвестной
// идентичности логируется и игнорируется: порядок событий движка
// относительно join/leave не гарантированно race-free, поэтому ростер
// никогда не считает неизвестную идентичность ошибкой.
func (r *Roster) Apply(ev EngineEvent) RosterDelta {
	switch ev.Type {
	case EngineEventLocalJoined:
		return r.applyLocalJoined(ev)
	case EngineEventParticipantJoined:
		return r.applyJoined(ev)
	case EngineEventParticipantLeft:
		return r.applyLeft(ev)
	case EngineEventAudioMuteChanged:
		return r.applyUpdate(ev, func(p *Participant) {
			p.AudioEnabled = !ev.Muted
		})
	case EngineEventVideoMuteChanged:
		return r.applyUpdate(ev, func(p *Participant) {
			p.VideoEnabled = !ev.Muted
		})
	case EngineEventNetworkQuality:
		return r.applyUpdate(ev, func(p *Participant) {
			p.Quality = ev.Quality
		})
	default:
		// События уровня соединения ростер не касаются
		return RosterDelta{Type: DeltaNone}
	}
}

func (r *Roster) applyLocalJoined(ev EngineEvent) RosterDelta {
	if _, ok := r.participants[r.localUID]; ok {
		return RosterDelta{Type: DeltaNone, UID: r.localUID}
	}
	r.participants[r.localUID] = &Participant{
		UID:          r.localUID,
		DisplayName:  r.localName,
		Role:         RoleParticipant,
		Connected:    true,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     time.Now(),
	}
	return RosterDelta{Type: DeltaJoined, UID: r.localUID}
}

func (r *Roster) applyJoined(ev EngineEvent) RosterDelta {
	if ev.UID == r.localUID {
		// Движок может прислать joined для локальной идентичности после
		// некоторых последовательностей реконнекта
		r.log.Debug().Uint32("uid", ev.UID).Msg("joined для локальной идентичности, пропущено")
		return RosterDelta{Type: DeltaNone, UID: ev.UID}
	}
	if p, ok := r.participants[ev.UID]; ok {
		p.Connected = true
		return RosterDelta{Type: DeltaNone, UID: ev.UID}
	}
	r.participants[ev.UID] = &Participant{
		UID:          ev.UID,
		Role:         RoleParticipant,
		Connected:    true,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     time.Now(),
	}
	return RosterDelta{Type: DeltaJoined, UID: ev.UID}
}

func (r *Roster) applyLeft(ev EngineEvent) RosterDelta {
	p, ok := r.participants[ev.UID]
	if !ok {
		r.log.Debug().Uint32("uid", ev.UID).Msg("left для неизвестной идентичности, пропущено")
		return RosterDelta{Type: DeltaNone, UID: ev.UID}
	}
	now := time.Now()
	p.LeftAt = &now
	p.Connected = false
	delete(r.participants, ev.UID)
	return RosterDelta{Type: DeltaLeft, UID: ev.UID}
}

func (r *Roster) applyUpdate(ev EngineEvent, mutate func(*Participant)) RosterDelta {
	p, ok := r.participants[ev.UID]
	if !ok {
		r.log.Debug().
			Uint32("uid", ev.UID).
			Str("event", ev.Type.String()).
			Msg("событие для неизвестной идентичности, пропущено")
		return RosterDelta{Type: DeltaNone, UID: ev.UID}
	}
	mutate(p)
	return RosterDelta{Type: DeltaUpdated, UID: ev.UID}
}

// Get возвращает копию участника по идентичности
func (r *Roster) Get(uid uint32) (Participant, bool) {
	p, ok := r.participants[uid]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// List возвращает копии всех участников, отсортированные по идентичности
func (r *Roster) List() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Len возвращает число участников, включая локальную сторону
func (r *Roster) Len() int {
	return len(r.participants)
}

// Clear удаляет всех участников
func (r *Roster) Clear() {
	r.participants = make(map[uint32]*Participant)
}
