package game

import (
	"slices"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (e *Engine) requireTurnLocked(id uint32) error {
	if e.phase != PhaseInProgress || e.m == nil {
		return reject(ReasonNotYourTurn, "no match in progress")
	}
	if cur := e.m.currentID(); cur != id {
		return reject(ReasonNotYourTurn, "it is player %d's turn", cur)
	}
	return nil
}

// dealLocked draws n cards into id's hand.
func (e *Engine) dealLocked(id uint32, n int) ([]cards.Card, error) {
	var got []cards.Card
	err := e.reg.UpdateHand(id, func(d *cards.Deck) {
		got = d.DrawN(e.gen, n)
	})
	if err != nil {
		return nil, err
	}
	e.changed[id] = struct{}{}
	return got, nil
}

func (e *Engine) drawLocked(id uint32) error {
	if err := e.requireTurnLocked(id); err != nil {
		return err
	}
	m := e.m
	if m.pending > 0 {
		n := m.pending
		if _, err := e.dealLocked(id, n); err != nil {
			return err
		}
		m.pending = 0
		m.bluff = nil
		e.infoLocked("%s draws %d", m.names[id], n)
		return e.advanceLocked(0)
	}
	if m.drawn != nil {
		return reject(ReasonInvalidAction, "already drew this turn; play the drawn card or pass")
	}
	got, err := e.dealLocked(id, 1)
	if err != nil {
		return err
	}
	if len(got) == 1 && cards.IsCompatible(m.table, got[0]) {
		drawn := got[0].ID
		m.drawn = &drawn
		return nil
	}
	return e.advanceLocked(0)
}

func (e *Engine) passLocked(id uint32) error {
	if err := e.requireTurnLocked(id); err != nil {
		return err
	}
	if e.m.drawn == nil {
		return reject(ReasonInvalidAction, "draw before passing")
	}
	return e.advanceLocked(0)
}

func (e *Engine) playLocked(id uint32, cardID uint32, chosen *cards.Color) error {
	if err := e.requireTurnLocked(id); err != nil {
		return err
	}
	m := e.m
	if m.pending > 0 {
		return reject(ReasonMustDrawOrCallBluff, "draw %d or call the bluff", m.pending)
	}
	if m.drawn != nil && *m.drawn != cardID {
		return reject(ReasonInvalidCard, "only the drawn card may be played")
	}
	hand, err := e.reg.Hand(id)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(hand, func(c cards.Card) bool { return c.ID == cardID })
	if i < 0 {
		return reject(ReasonInvalidCard, "card %d is not in your hand", cardID)
	}
	card := hand[i]
	if !cards.IsCompatible(m.table, card) {
		return reject(ReasonInvalidCard, "%s does not match %s", card, m.table)
	}
	if card.IsSpecial() && (chosen == nil || !chosen.Valid()) {
		return reject(ReasonInvalidCard, "choose a color for %s", card)
	}

	hadAlternative := false
	err = e.reg.UpdateHand(id, func(d *cards.Deck) {
		hadAlternative = d.AnyCompatible(m.table, card.ID)
		d.Remove(card.ID)
	})
	if err != nil {
		return err
	}
	e.changed[id] = struct{}{}

	if card.IsSpecial() {
		card = card.WithChosenColor(*chosen)
		m.active = *chosen
	} else {
		m.active = card.Color
	}
	m.table = card
	m.drawn = nil
	m.bluff = nil
	left := len(hand) - 1

	if left == 0 {
		e.finishLocked(id)
		if m.over {
			return nil
		}
	}

	switch {
	case card.Kind == cards.KindPlusFour:
		m.pending = PlusFourPenalty
		if left > 0 {
			m.bluff = &bluff{accused: id, hadAlternative: hadAlternative}
		}
		return e.advanceLocked(0)
	case card.Kind == cards.KindChangeColor:
		return e.advanceLocked(0)
	case card.Rank == cards.RankPlusTwo:
		m.pending = PlusTwoPenalty
		return e.advanceLocked(0)
	case card.Rank == cards.RankBlock:
		return e.advanceLocked(1)
	case card.Rank == cards.RankReverse:
		m.reverse()
		return e.advanceLocked(0)
	default:
		return e.advanceLocked(0)
	}
}

// callBluffLocked adjudicates a challenge of the last PlusFour. An accused
// who held no alternative draws the penalty and the challenger keeps the turn;
// otherwise the challenger draws the penalty plus BluffExtraPenalty and
// forfeits the turn.
func (e *Engine) callBluffLocked(id uint32) error {
	m := e.m
	if e.phase != PhaseInProgress || m == nil || m.bluff == nil || m.pending == 0 || m.currentID() != id {
		return reject(ReasonCannotCallBluff, "there is no plus four to challenge")
	}
	b := *m.bluff
	n := m.pending
	log.Debug().
		Str("match_id", m.id).
		Uint32("caller", id).
		Uint32("accused", b.accused).
		Bool("had_alternative", b.hadAlternative).
		Msg("bluff called")

	if !b.hadAlternative {
		if _, err := e.dealLocked(b.accused, n); err != nil {
			return err
		}
		m.pending = 0
		m.bluff = nil
		e.infoLocked("%s called the bluff: %s draws %d", m.names[id], m.names[b.accused], n)
		return nil
	}
	if _, err := e.dealLocked(id, n+BluffExtraPenalty); err != nil {
		return err
	}
	m.pending = 0
	m.bluff = nil
	e.infoLocked("%s called the bluff and was wrong: draws %d", m.names[id], n+BluffExtraPenalty)
	return e.advanceLocked(0)
}

// finishLocked ranks a player who emptied their hand. The last unfinished
// player is ranked too once the match is decided.
func (e *Engine) finishLocked(id uint32) {
	m := e.m
	i, ok := m.seatOf(id)
	if !ok {
		return
	}
	m.seats[i].finished = true
	m.rank(id)
	e.infoLocked("%s finished in place %d", m.names[id], len(m.standings))
	if m.remaining() <= 1 {
		e.closeStandingsLocked()
	}
}

func (e *Engine) closeStandingsLocked() {
	m := e.m
	for i := range m.seats {
		if !m.seats[i].finished {
			m.seats[i].finished = true
			m.rank(m.seats[i].id)
		}
	}
	m.over = true
}

// advanceLocked moves the turn one seat, plus skip extra seats, then past
// offline players.
func (e *Engine) advanceLocked(skip int) error {
	m := e.m
	i := m.current
	for k := 0; k <= skip; k++ {
		i = m.step(i)
	}
	m.current = i
	m.drawn = nil
	return e.skipOfflineLocked()
}

// skipOfflineLocked passes the turn over offline players. An offline player
// who is skipped absorbs any pending penalty. When nobody in the match is
// online the turn stays put.
func (e *Engine) skipOfflineLocked() error {
	m := e.m
	targets, err := e.reg.Online()
	if err != nil {
		return err
	}
	online := make(map[uint32]bool, len(targets))
	for _, t := range targets {
		online[t.ID] = true
	}
	anyOnline := false
	for _, s := range m.seats {
		if !s.finished && online[s.id] {
			anyOnline = true
			break
		}
	}
	if !anyOnline {
		return nil
	}
	for !online[m.currentID()] {
		id := m.currentID()
		if m.pending > 0 {
			if _, err := e.dealLocked(id, m.pending); err != nil {
				return err
			}
			m.pending = 0
			m.bluff = nil
		}
		m.drawn = nil
		m.current = m.step(m.current)
	}
	return nil
}

// removeSeatLocked drops an abandoned player from the match.
func (e *Engine) removeSeatLocked(id uint32) error {
	m := e.m
	i, ok := m.seatOf(id)
	if !ok {
		return nil
	}
	wasCurrent := i == m.current
	if m.bluff != nil && m.bluff.accused == id {
		m.bluff = nil
	}
	m.seats = slices.Delete(m.seats, i, i+1)
	n := len(m.seats)
	if n == 0 {
		m.over = true
		return nil
	}
	if i < m.current {
		m.current--
	}
	if m.remaining() <= 1 {
		m.current = min(m.current, n-1)
		e.closeStandingsLocked()
		return nil
	}
	if !wasCurrent {
		return nil
	}
	m.pending = 0
	m.bluff = nil
	m.drawn = nil
	// Seat i now holds the player who sat after the one removed.
	start := i % n
	if m.dir == protocol.LeftToRight {
		start = (i - 1 + n) % n
	}
	m.current = m.step(start)
	return e.skipOfflineLocked()
}
