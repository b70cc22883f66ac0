package main

import (
	"slices"
	"sync"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/client"
	"github.com/danmuck/cardtable/internal/game"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/rs/zerolog/log"
)

// bot turns the event stream into intents. It never sends on its own;
// decisions go to the intents channel and the run loop forwards them.
type bot struct {
	client.NopHandler

	me         uint32
	seated     bool
	callBluffs bool
	startAt    int
	matches    int

	mu       sync.Mutex
	hand     []cards.Card
	drewFrom map[uint32]struct{}
	turn     *protocol.TurnUpdate
	roster   *protocol.PlayerUpdate
	asked    bool
	played   int

	intents chan protocol.Packet
	done    chan error
}

func newBot(cfg botConfig) *bot {
	return &bot{
		callBluffs: cfg.CallBluffs,
		startAt:    cfg.StartAt,
		matches:    cfg.Matches,
		intents:    make(chan protocol.Packet, 16),
		done:       make(chan error, 1),
	}
}

// setID seats the bot. Events that arrived before the id was known are
// evaluated again.
func (b *bot) setID(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.me = id
	b.seated = true
	b.maybeStartLocked()
	if b.turn != nil && b.turn.CurrentPlayer == b.me {
		b.decideLocked()
	}
}

func (b *bot) submit(p protocol.Packet) {
	select {
	case b.intents <- p:
	default:
		log.Warn().Str("type", p.Type().String()).Msg("intent queue full, dropping decision")
	}
}

func (b *bot) OnHand(hand []cards.Card) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hand = slices.Clone(hand)
}

func (b *bot) OnPlayers(update protocol.PlayerUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roster = &update
	b.maybeStartLocked()
}

// maybeStartLocked asks for a start when this bot is the host and enough
// players are online.
func (b *bot) maybeStartLocked() {
	if !b.seated || b.asked || b.roster == nil || b.startAt <= 0 || b.roster.Phase != game.PhaseWaiting.String() {
		return
	}
	online := 0
	host := true
	for _, p := range b.roster.Players {
		if !p.Online {
			continue
		}
		online++
		if p.ID < b.me {
			host = false
		}
	}
	if host && online >= b.startAt {
		b.asked = true
		b.submit(protocol.StartGame{})
	}
}

func (b *bot) OnTurn(turn protocol.TurnUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turn = &turn
	if !b.seated {
		return
	}
	if turn.CurrentPlayer != b.me {
		b.drewFrom = nil
		return
	}
	b.decideLocked()
}

func (b *bot) OnGameMessage(msg protocol.GameMessage) {
	if msg.Level != protocol.LevelError {
		log.Debug().Str("text", msg.Text).Msg("game")
		return
	}
	log.Warn().Str("reason", msg.Reason).Str("text", msg.Text).Msg("action rejected")
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.Reason == string(game.ReasonCannotStart) {
		b.asked = false
		return
	}
	if !b.seated || b.turn == nil || b.turn.CurrentPlayer != b.me {
		return
	}
	if b.drewFrom != nil {
		b.submit(protocol.PassAction())
		return
	}
	b.drewFrom = handIDs(b.hand)
	b.submit(protocol.DrawAction())
}

func (b *bot) OnGameEnd(end protocol.GameEnd) {
	b.mu.Lock()
	b.turn = nil
	b.drewFrom = nil
	b.asked = false
	b.played++
	finished := b.matches > 0 && b.played >= b.matches
	b.mu.Unlock()
	for _, s := range end.Standings {
		log.Info().Str("match_id", end.MatchID).Int("rank", s.Rank).Str("name", s.Name).Msg("standing")
	}
	if finished {
		b.finish(nil)
	}
}

func (b *bot) OnClosed(err error) {
	b.finish(err)
}

func (b *bot) finish(err error) {
	select {
	case b.done <- err:
	default:
	}
}

func (b *bot) decideLocked() {
	a := decide(b.hand, *b.turn, b.drewFrom, b.callBluffs)
	if a.Action == protocol.ActionDraw && b.turn.PendingDraw == nil {
		b.drewFrom = handIDs(b.hand)
	}
	b.submit(a)
}

// decide picks one action for the current turn. drewFrom holds the hand's
// card ids from before this turn's draw, or nil when the bot has not drawn.
func decide(hand []cards.Card, turn protocol.TurnUpdate, drewFrom map[uint32]struct{}, callBluffs bool) protocol.ActionUpdate {
	if turn.PendingDraw != nil {
		if turn.BluffCallable && callBluffs {
			return protocol.CallBluffAction()
		}
		return protocol.DrawAction()
	}
	if drewFrom != nil {
		for _, c := range hand {
			if _, old := drewFrom[c.ID]; !old && cards.IsCompatible(turn.TableCard, c) {
				return play(hand, c)
			}
		}
		return protocol.PassAction()
	}
	// Hold specials back while a normal card fits.
	var special *cards.Card
	for i, c := range hand {
		if !cards.IsCompatible(turn.TableCard, c) {
			continue
		}
		if !c.IsSpecial() {
			return play(hand, c)
		}
		if special == nil {
			special = &hand[i]
		}
	}
	if special != nil {
		return play(hand, *special)
	}
	return protocol.DrawAction()
}

func play(hand []cards.Card, c cards.Card) protocol.ActionUpdate {
	if !c.IsSpecial() {
		return protocol.PlayAction(c.ID, nil)
	}
	color := favoriteColor(hand)
	return protocol.PlayAction(c.ID, &color)
}

// favoriteColor is the most common color among normal cards, red on ties
// and empty hands.
func favoriteColor(hand []cards.Card) cards.Color {
	var counts [5]int
	for _, c := range hand {
		if !c.IsSpecial() && c.Color.Valid() {
			counts[c.Color]++
		}
	}
	best := cards.Red
	for _, col := range cards.Colors {
		if counts[col] > counts[best] {
			best = col
		}
	}
	return best
}

func handIDs(hand []cards.Card) map[uint32]struct{} {
	ids := make(map[uint32]struct{}, len(hand))
	for _, c := range hand {
		ids[c.ID] = struct{}{}
	}
	return ids
}
