package main

import (
	"testing"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/game"
	"github.com/danmuck/cardtable/internal/protocol"
)

func normal(id uint32, rank cards.Rank, color cards.Color) cards.Card {
	return cards.Card{ID: id, Kind: cards.KindNormal, Rank: rank, Color: color}
}

func turnOn(table cards.Card) protocol.TurnUpdate {
	return protocol.TurnUpdate{
		MatchID:       "match-1",
		TableCard:     table,
		ActiveColor:   table.Color,
		Direction:     protocol.LeftToRight,
		CurrentPlayer: 0,
	}
}

func TestDecidePrefersNormalCards(t *testing.T) {
	hand := []cards.Card{
		{ID: 1, Kind: cards.KindChangeColor},
		normal(2, 3, cards.Blue),
		normal(3, 7, cards.Red),
	}
	a := decide(hand, turnOn(normal(9, 7, cards.Green)), nil, false)
	if a.Action != protocol.ActionPlay || *a.CardID != 3 {
		t.Fatalf("expected to play card 3, got %+v", a)
	}

	a = decide(hand, turnOn(normal(9, 5, cards.Green)), nil, false)
	if a.Action != protocol.ActionPlay || *a.CardID != 1 {
		t.Fatalf("expected the special card, got %+v", a)
	}
	if a.ChosenColor == nil || !a.ChosenColor.Valid() {
		t.Fatalf("special played without a color: %+v", a)
	}
}

func TestDecideDrawsThenPlaysOrPasses(t *testing.T) {
	before := []cards.Card{normal(1, 3, cards.Blue)}
	table := turnOn(normal(9, 7, cards.Green))
	if a := decide(before, table, nil, false); a.Action != protocol.ActionDraw {
		t.Fatalf("expected draw, got %+v", a)
	}
	drewFrom := handIDs(before)

	fits := append(before, normal(2, 7, cards.Yellow))
	if a := decide(fits, table, drewFrom, false); a.Action != protocol.ActionPlay || *a.CardID != 2 {
		t.Fatalf("expected to play the drawn card, got %+v", a)
	}

	misses := append(before, normal(3, 1, cards.Yellow))
	if a := decide(misses, table, drewFrom, false); a.Action != protocol.ActionPass {
		t.Fatalf("expected pass, got %+v", a)
	}
}

func TestDecideWithPendingPenalty(t *testing.T) {
	hand := []cards.Card{normal(1, 7, cards.Green)}
	four := 4
	turn := turnOn(cards.Card{ID: 9, Kind: cards.KindPlusFour, Color: cards.Green})
	turn.PendingDraw = &four
	turn.BluffCallable = true

	if a := decide(hand, turn, nil, false); a.Action != protocol.ActionDraw {
		t.Fatalf("expected draw when not calling bluffs, got %+v", a)
	}
	if a := decide(hand, turn, nil, true); a.Action != protocol.ActionCallBluff {
		t.Fatalf("expected call bluff, got %+v", a)
	}
}

func TestFavoriteColor(t *testing.T) {
	hand := []cards.Card{
		normal(1, 1, cards.Blue),
		normal(2, 2, cards.Blue),
		normal(3, 3, cards.Yellow),
		{ID: 4, Kind: cards.KindPlusFour},
	}
	if got := favoriteColor(hand); got != cards.Blue {
		t.Fatalf("expected blue, got %s", got)
	}
	if got := favoriteColor(nil); got != cards.Red {
		t.Fatalf("expected red for empty hand, got %s", got)
	}
}

func TestBotHostStartsOnce(t *testing.T) {
	b := newBot(botConfig{StartAt: 2})
	roster := protocol.PlayerUpdate{
		Phase: game.PhaseWaiting.String(),
		Players: []protocol.PlayerInfo{
			{ID: 0, Name: "otto", Online: true},
			{ID: 1, Name: "ana", Online: true},
		},
	}
	b.OnPlayers(roster)
	if len(b.intents) != 0 {
		t.Fatalf("unseated bot asked to start")
	}
	b.setID(0)
	b.OnPlayers(roster)
	if len(b.intents) != 1 {
		t.Fatalf("expected one start request, got %d", len(b.intents))
	}
	if _, ok := (<-b.intents).(protocol.StartGame); !ok {
		t.Fatalf("expected StartGame intent")
	}

	guest := newBot(botConfig{StartAt: 2})
	guest.setID(1)
	guest.OnPlayers(roster)
	if len(guest.intents) != 0 {
		t.Fatalf("non-host bot asked to start")
	}
}

func TestBotActsOnlyOnItsTurn(t *testing.T) {
	b := newBot(botConfig{})
	b.setID(1)
	b.OnHand([]cards.Card{normal(1, 7, cards.Red)})

	turn := turnOn(normal(9, 7, cards.Green))
	b.OnTurn(turn)
	if len(b.intents) != 0 {
		t.Fatalf("bot acted out of turn")
	}
	turn.CurrentPlayer = 1
	b.OnTurn(turn)
	a, ok := (<-b.intents).(protocol.ActionUpdate)
	if !ok || a.Action != protocol.ActionPlay || *a.CardID != 1 {
		t.Fatalf("unexpected intent %+v", a)
	}
}

func TestBotStopsAfterMatches(t *testing.T) {
	b := newBot(botConfig{Matches: 1})
	b.OnGameEnd(protocol.GameEnd{MatchID: "match-1"})
	select {
	case err := <-b.done:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	default:
		t.Fatalf("bot did not finish after its last match")
	}
}
