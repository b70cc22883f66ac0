package game

import (
	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
)

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseInProgress
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting_for_players"
	case PhaseInProgress:
		return "in_progress"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Target addresses an emission to every online player or to one id.
type Target struct {
	ID  uint32
	all bool
}

// All addresses every online player.
var All = Target{all: true}

func To(id uint32) Target {
	return Target{ID: id}
}

func (t Target) IsAll() bool {
	return t.all
}

// Emitter receives every packet the engine produces. Emit is called with the
// engine lock held and must not block.
type Emitter interface {
	Emit(to Target, p protocol.Packet)
}

const (
	PlusTwoPenalty    = 2
	PlusFourPenalty   = 4
	BluffExtraPenalty = 2
)

type seat struct {
	id       uint32
	finished bool
}

// bluff records what adjudication needs about the last PlusFour.
type bluff struct {
	accused        uint32
	hadAlternative bool
}

type match struct {
	id      string
	seats   []seat
	names   map[uint32]string
	current int
	dir     protocol.Direction
	table   cards.Card
	active  cards.Color
	pending int
	bluff   *bluff
	// drawn is the card the current player drew this turn and may still play.
	drawn     *uint32
	standings []protocol.Standing
	over      bool
}

func (m *match) seatOf(id uint32) (int, bool) {
	for i, s := range m.seats {
		if s.id == id {
			return i, true
		}
	}
	return 0, false
}

func (m *match) has(id uint32) bool {
	_, ok := m.seatOf(id)
	return ok
}

func (m *match) currentID() uint32 {
	return m.seats[m.current].id
}

func (m *match) remaining() int {
	n := 0
	for _, s := range m.seats {
		if !s.finished {
			n++
		}
	}
	return n
}

// step returns the next unfinished seat after i in the current direction.
func (m *match) step(i int) int {
	n := len(m.seats)
	for k := 0; k < n; k++ {
		if m.dir == protocol.LeftToRight {
			i = (i + 1) % n
		} else {
			i = (i - 1 + n) % n
		}
		if !m.seats[i].finished {
			return i
		}
	}
	return i
}

func (m *match) reverse() {
	if m.dir == protocol.LeftToRight {
		m.dir = protocol.RightToLeft
	} else {
		m.dir = protocol.LeftToRight
	}
}

func (m *match) rank(id uint32) {
	m.standings = append(m.standings, protocol.Standing{
		Rank:     len(m.standings) + 1,
		PlayerID: id,
		Name:     m.names[id],
	})
}

// TurnState is a read-only snapshot of the engine.
type TurnState struct {
	Phase         string              `json:"phase"`
	MatchID       string              `json:"match_id,omitempty"`
	Order         []uint32            `json:"order,omitempty"`
	Finished      []uint32            `json:"finished,omitempty"`
	CurrentPlayer *uint32             `json:"current_player,omitempty"`
	Direction     protocol.Direction  `json:"direction,omitempty"`
	TableCard     *cards.Card         `json:"table_card,omitempty"`
	ActiveColor   cards.Color         `json:"active_color,omitempty"`
	PendingDraw   int                 `json:"pending_draw,omitempty"`
	BluffCallable bool                `json:"bluff_callable,omitempty"`
	Standings     []protocol.Standing `json:"standings,omitempty"`
}
