package game

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/danmuck/cardtable/internal/registry"
	"github.com/danmuck/cardtable/internal/testutil/testlog"
)

type emitted struct {
	to Target
	p  protocol.Packet
}

type recorder struct {
	mu  sync.Mutex
	out []emitted
}

func (r *recorder) Emit(to Target, p protocol.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, emitted{to: to, p: p})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

func (r *recorder) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.out...)
}

func packetsOf[T protocol.Packet](r *recorder, keep func(Target) bool) []T {
	var out []T
	for _, e := range r.all() {
		if v, ok := e.p.(T); ok && keep(e.to) {
			out = append(out, v)
		}
	}
	return out
}

func toAll(t Target) bool { return t.IsAll() }

func toPlayer(id uint32) func(Target) bool {
	return func(t Target) bool { return !t.IsAll() && t.ID == id }
}

type nopLink struct{}

func (nopLink) Deliver(protocol.Packet) bool { return true }
func (nopLink) Close() error                 { return nil }
func (nopLink) RemoteAddr() string           { return "pipe" }

// captureLink records what the registry queues directly on a link.
type captureLink struct {
	nopLink
	mu   sync.Mutex
	sent []protocol.Packet
}

func (l *captureLink) Deliver(p protocol.Packet) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, p)
	return true
}

func (l *captureLink) packets() []protocol.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Packet(nil), l.sent...)
}

type table struct {
	t   *testing.T
	e   *Engine
	reg *registry.Registry
	rec *recorder
}

func newTable(t *testing.T, players int, cfg Config) *table {
	t.Helper()
	testlog.Start(t)
	gen := cards.NewGeneratorWithSource(rand.NewPCG(7, 11))
	reg := registry.New(gen, time.Second)
	rec := &recorder{}
	e := New(reg, gen, rec, cfg)
	e.newMatchID = func() string { return "match-1" }
	tb := &table{t: t, e: e, reg: reg, rec: rec}
	for i := 0; i < players; i++ {
		if _, _, err := e.Join(protocol.Join{Name: string(rune('a' + i))}, nopLink{}); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	return tb
}

func (tb *table) start() {
	tb.t.Helper()
	if err := tb.e.Start(0); err != nil {
		tb.t.Fatalf("start: %v", err)
	}
	tb.rec.reset()
}

func (tb *table) setTable(c cards.Card) {
	tb.e.mu.Lock()
	defer tb.e.mu.Unlock()
	tb.e.m.table = c
	tb.e.m.active = c.Color
}

func (tb *table) setHand(id uint32, cs ...cards.Card) []cards.Card {
	tb.t.Helper()
	var out []cards.Card
	err := tb.reg.UpdateHand(id, func(d *cards.Deck) {
		for _, c := range d.Cards() {
			d.Remove(c.ID)
		}
		for _, c := range cs {
			added, _ := d.Add(c)
			out = append(out, added)
		}
	})
	if err != nil {
		tb.t.Fatalf("set hand %d: %v", id, err)
	}
	return out
}

func (tb *table) handSize(id uint32) int {
	tb.t.Helper()
	h, err := tb.reg.Hand(id)
	if err != nil {
		tb.t.Fatalf("hand %d: %v", id, err)
	}
	return len(h)
}

func (tb *table) current() uint32 {
	tb.t.Helper()
	st := tb.e.State()
	if st.CurrentPlayer == nil {
		tb.t.Fatalf("no current player in %+v", st)
	}
	return *st.CurrentPlayer
}

func (tb *table) act(id uint32, a protocol.ActionUpdate) {
	tb.t.Helper()
	if err := tb.e.Act(id, a); err != nil {
		tb.t.Fatalf("player %d %s: %v", id, a.Action, err)
	}
}

func (tb *table) expectRejected(id uint32, a protocol.ActionUpdate, want Reason) {
	tb.t.Helper()
	tb.rec.reset()
	before := tb.e.State()
	err := tb.e.Act(id, a)
	if !errors.Is(err, ErrRejected) {
		tb.t.Fatalf("expected rejection %s, got %v", want, err)
	}
	if got, _ := ReasonOf(err); got != want {
		tb.t.Fatalf("expected reason %s, got %s", want, got)
	}
	if after := tb.e.State(); !reflect.DeepEqual(before, after) {
		tb.t.Fatalf("rejected action changed state:\nbefore=%+v\nafter=%+v", before, after)
	}
	msgs := packetsOf[protocol.GameMessage](tb.rec, func(Target) bool { return true })
	if len(msgs) != 1 || msgs[0].Level != protocol.LevelError || msgs[0].Reason != string(want) {
		tb.t.Fatalf("expected one private error message, got %+v", msgs)
	}
	if private := packetsOf[protocol.GameMessage](tb.rec, toPlayer(id)); len(private) != 1 {
		tb.t.Fatalf("error message must go to player %d only", id)
	}
}

func normal(t *testing.T, r cards.Rank, c cards.Color) cards.Card {
	t.Helper()
	card, err := cards.NewNormal(r, c)
	if err != nil {
		t.Fatalf("normal card: %v", err)
	}
	return card
}

func special(t *testing.T, k cards.Kind) cards.Card {
	t.Helper()
	card, err := cards.NewSpecial(k)
	if err != nil {
		t.Fatalf("special card: %v", err)
	}
	return card
}

func colorPtr(c cards.Color) *cards.Color { return &c }

func TestJoinQueuesStatusBeforeEmitting(t *testing.T) {
	tb := newTable(t, 0, DefaultConfig())
	link := &captureLink{}
	p, code, err := tb.e.Join(protocol.Join{Name: "ada"}, link)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	sent := link.packets()
	if len(sent) != 1 {
		t.Fatalf("expected only the JoinStatus on the link, got %+v", sent)
	}
	status, ok := sent[0].(protocol.JoinStatus)
	if !ok || !status.Accepted || status.Credentials.PlayerID != p.ID || status.Credentials.AccessCode != code {
		t.Fatalf("unexpected status: %#v", sent[0])
	}
	if len(packetsOf[protocol.JoinStatus](tb.rec, func(Target) bool { return true })) != 0 {
		t.Fatalf("JoinStatus must not go through the emitter")
	}
	hands := packetsOf[protocol.CardsUpdate](tb.rec, toPlayer(p.ID))
	if len(hands) != 1 || len(hands[0].Hand) != cards.HandSize {
		t.Fatalf("expected a private starting hand, got %+v", hands)
	}
	if len(packetsOf[protocol.NewPlayerData](tb.rec, toAll)) != 1 {
		t.Fatalf("expected NewPlayerData broadcast")
	}
	rosters := packetsOf[protocol.PlayerUpdate](tb.rec, toAll)
	if len(rosters) != 1 || rosters[0].Phase != PhaseWaiting.String() || len(rosters[0].Players) != 1 {
		t.Fatalf("unexpected roster: %+v", rosters)
	}
}

func TestJoinRejectedWhileInProgress(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()

	before, _ := tb.reg.Count()
	_, _, err := tb.e.Join(protocol.Join{Name: "late"}, nopLink{})
	if !errors.Is(err, registry.ErrGameInProgress) {
		t.Fatalf("expected ErrGameInProgress, got %v", err)
	}
	after, _ := tb.reg.Count()
	if before != after {
		t.Fatalf("player count changed: %d -> %d", before, after)
	}
	if len(tb.rec.all()) != 0 {
		t.Fatalf("rejected join must not emit")
	}
}

func TestStartRequiresHostAndPlayers(t *testing.T) {
	tb := newTable(t, 1, DefaultConfig())
	if r, _ := ReasonOf(tb.e.Start(0)); r != ReasonCannotStart {
		t.Fatalf("expected cannot_start with one player, got %q", r)
	}
	if _, _, err := tb.e.Join(protocol.Join{Name: "bo"}, nopLink{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if r, _ := ReasonOf(tb.e.Start(1)); r != ReasonCannotStart {
		t.Fatalf("expected cannot_start for non-host, got %q", r)
	}
	tb.rec.reset()
	if err := tb.e.Start(0); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if tb.e.Phase() != PhaseInProgress {
		t.Fatalf("expected in progress, got %s", tb.e.Phase())
	}
	turns := packetsOf[protocol.TurnUpdate](tb.rec, toAll)
	if len(turns) != 1 {
		t.Fatalf("expected one TurnUpdate, got %d", len(turns))
	}
	tu := turns[0]
	if tu.MatchID != "match-1" || tu.CurrentPlayer != 0 || tu.Direction != protocol.LeftToRight || len(tu.HandSizes) != 2 {
		t.Fatalf("unexpected turn update: %+v", tu)
	}
	if tu.TableCard.IsSpecial() || tu.TableCard.Rank.IsAction() {
		t.Fatalf("opening table card must be a plain number card, got %s", tu.TableCard)
	}
	if r, _ := ReasonOf(tb.e.Start(0)); r != ReasonCannotStart {
		t.Fatalf("expected cannot_start while running, got %q", r)
	}
}

func TestAutoStart(t *testing.T) {
	tb := newTable(t, 2, Config{AutoStartPlayers: 2})
	if tb.e.Phase() != PhaseInProgress {
		t.Fatalf("expected auto start, phase=%s", tb.e.Phase())
	}
}

func TestCallBluffWithoutPlusFourIsRejected(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()
	tb.expectRejected(0, protocol.CallBluffAction(), ReasonCannotCallBluff)
	tb.expectRejected(1, protocol.CallBluffAction(), ReasonCannotCallBluff)
}

func TestActionsOutOfTurnAreRejected(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.expectRejected(0, protocol.DrawAction(), ReasonNotYourTurn)
	tb.start()
	tb.expectRejected(1, protocol.DrawAction(), ReasonNotYourTurn)
	tb.expectRejected(1, protocol.PlayAction(0, nil), ReasonNotYourTurn)
	tb.expectRejected(0, protocol.PassAction(), ReasonInvalidAction)
}

func TestInvalidCards(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	hand := tb.setHand(0,
		normal(t, 7, cards.Blue),
		normal(t, 5, cards.Green),
		special(t, cards.KindChangeColor),
	)

	tb.expectRejected(0, protocol.PlayAction(hand[0].ID, nil), ReasonInvalidCard)
	tb.expectRejected(0, protocol.PlayAction(999, nil), ReasonInvalidCard)
	tb.expectRejected(0, protocol.PlayAction(hand[2].ID, nil), ReasonInvalidCard)

	tb.act(0, protocol.PlayAction(hand[1].ID, colorPtr(cards.Yellow)))
	st := tb.e.State()
	if st.ActiveColor != cards.Green || st.TableCard.ID != hand[1].ID {
		t.Fatalf("chosen color must be ignored for normal cards: %+v", st)
	}
	if *st.CurrentPlayer != 1 {
		t.Fatalf("expected turn to pass to 1, got %d", *st.CurrentPlayer)
	}
}

func TestPlayEmitsTurnAndPrivateHand(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	hand := tb.setHand(0, normal(t, 9, cards.Red), normal(t, 1, cards.Blue))

	tb.act(0, protocol.PlayAction(hand[0].ID, nil))
	hands := packetsOf[protocol.CardsUpdate](tb.rec, toPlayer(0))
	if len(hands) != 1 || len(hands[0].Hand) != 1 || hands[0].Hand[0].ID != hand[1].ID {
		t.Fatalf("expected private hand with the remaining card, got %+v", hands)
	}
	if other := packetsOf[protocol.CardsUpdate](tb.rec, toPlayer(1)); len(other) != 0 {
		t.Fatalf("unchanged hands must not be resent")
	}
	turns := packetsOf[protocol.TurnUpdate](tb.rec, toAll)
	if len(turns) != 1 {
		t.Fatalf("expected one TurnUpdate, got %d", len(turns))
	}
	if turns[0].HandSizes[0] != (protocol.HandCount{PlayerID: 0, Count: 1}) {
		t.Fatalf("unexpected hand sizes: %+v", turns[0].HandSizes)
	}
}

// threePlayerPlusFour has player 0 play a PlusFour choosing red, with or
// without another playable card left in hand.
func threePlayerPlusFour(t *testing.T, withAlternative bool) *table {
	tb := newTable(t, 3, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	rest := normal(t, 7, cards.Blue)
	if withAlternative {
		rest = normal(t, 9, cards.Red)
	}
	hand := tb.setHand(0, special(t, cards.KindPlusFour), rest, normal(t, 8, cards.Green))
	tb.setHand(1, normal(t, 1, cards.Blue), normal(t, 2, cards.Blue), normal(t, 3, cards.Blue))

	tb.act(0, protocol.PlayAction(hand[0].ID, colorPtr(cards.Red)))
	st := tb.e.State()
	if *st.CurrentPlayer != 1 || st.PendingDraw != PlusFourPenalty || !st.BluffCallable {
		t.Fatalf("unexpected state after plus four: %+v", st)
	}
	if st.ActiveColor != cards.Red || st.TableCard.Color != cards.Red {
		t.Fatalf("chosen color not applied: %+v", st)
	}
	return tb
}

func TestBluffAccusedWithoutAlternativeDraws(t *testing.T) {
	tb := threePlayerPlusFour(t, false)
	tb.act(1, protocol.CallBluffAction())

	if got := tb.handSize(0); got != 2+PlusFourPenalty {
		t.Fatalf("accused should hold %d cards, got %d", 2+PlusFourPenalty, got)
	}
	if got := tb.handSize(1); got != 3 {
		t.Fatalf("caller hand must be unchanged, got %d", got)
	}
	st := tb.e.State()
	if *st.CurrentPlayer != 1 || st.PendingDraw != 0 || st.BluffCallable {
		t.Fatalf("turn should pass to the player after the accused: %+v", st)
	}
	if len(packetsOf[protocol.CardsUpdate](tb.rec, toPlayer(0))) == 0 {
		t.Fatalf("accused must receive their new hand")
	}
}

func TestBluffAccusedWithAlternativePenalizesCaller(t *testing.T) {
	tb := threePlayerPlusFour(t, true)
	tb.act(1, protocol.CallBluffAction())

	if got := tb.handSize(1); got != 3+PlusFourPenalty+BluffExtraPenalty {
		t.Fatalf("caller should hold %d cards, got %d", 3+PlusFourPenalty+BluffExtraPenalty, got)
	}
	if got := tb.handSize(0); got != 2 {
		t.Fatalf("accused hand must be unchanged, got %d", got)
	}
	if cur := tb.current(); cur != 2 {
		t.Fatalf("caller must forfeit the turn, current=%d", cur)
	}
}

// holdRegistry keeps the registry lock busy until the returned func runs.
func (tb *table) holdRegistry() func() {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	go tb.reg.UpdateHand(0, func(*cards.Deck) {
		close(entered)
		<-unblock
	})
	<-entered
	return func() { close(unblock) }
}

func TestPenaltySurvivesRegistryLockTimeout(t *testing.T) {
	for _, action := range []protocol.ActionUpdate{protocol.CallBluffAction(), protocol.DrawAction()} {
		t.Run(string(action.Action), func(t *testing.T) {
			tb := threePlayerPlusFour(t, true)
			release := tb.holdRegistry()
			err := tb.e.Act(1, action)
			release()
			if !errors.Is(err, registry.ErrLockTimeout) {
				t.Fatalf("expected lock timeout, got %v", err)
			}
			st := tb.e.State()
			if *st.CurrentPlayer != 1 || st.PendingDraw != PlusFourPenalty || !st.BluffCallable {
				t.Fatalf("failed deal must keep the penalty: %+v", st)
			}

			tb.act(1, protocol.CallBluffAction())
			if got := tb.handSize(1); got != 3+PlusFourPenalty+BluffExtraPenalty {
				t.Fatalf("caller should hold %d cards, got %d", 3+PlusFourPenalty+BluffExtraPenalty, got)
			}
		})
	}
}

func TestPendingPlusFourRestrictsActions(t *testing.T) {
	tb := threePlayerPlusFour(t, false)
	tb.expectRejected(2, protocol.CallBluffAction(), ReasonCannotCallBluff)
	hand, _ := tb.reg.Hand(1)
	tb.expectRejected(1, protocol.PlayAction(hand[0].ID, nil), ReasonMustDrawOrCallBluff)

	tb.act(1, protocol.DrawAction())
	if got := tb.handSize(1); got != 3+PlusFourPenalty {
		t.Fatalf("expected penalty draw, got %d cards", got)
	}
	if cur := tb.current(); cur != 2 {
		t.Fatalf("drawing the penalty forfeits the turn, current=%d", cur)
	}
	tb.expectRejected(2, protocol.CallBluffAction(), ReasonCannotCallBluff)
}

func TestActionCards(t *testing.T) {
	t.Run("reverse", func(t *testing.T) {
		tb := newTable(t, 3, DefaultConfig())
		tb.start()
		tb.setTable(normal(t, 5, cards.Red))
		hand := tb.setHand(0, normal(t, cards.RankReverse, cards.Red), normal(t, 1, cards.Red))
		tb.act(0, protocol.PlayAction(hand[0].ID, nil))
		st := tb.e.State()
		if st.Direction != protocol.RightToLeft || *st.CurrentPlayer != 2 {
			t.Fatalf("unexpected state after reverse: %+v", st)
		}
	})
	t.Run("block", func(t *testing.T) {
		tb := newTable(t, 3, DefaultConfig())
		tb.start()
		tb.setTable(normal(t, 5, cards.Red))
		hand := tb.setHand(0, normal(t, cards.RankBlock, cards.Red), normal(t, 1, cards.Red))
		tb.act(0, protocol.PlayAction(hand[0].ID, nil))
		if cur := tb.current(); cur != 2 {
			t.Fatalf("block must skip player 1, current=%d", cur)
		}
	})
	t.Run("plus two", func(t *testing.T) {
		tb := newTable(t, 3, DefaultConfig())
		tb.start()
		tb.setTable(normal(t, 5, cards.Red))
		hand := tb.setHand(0, normal(t, cards.RankPlusTwo, cards.Red), normal(t, 1, cards.Red))
		tb.setHand(1, normal(t, 3, cards.Blue))
		tb.act(0, protocol.PlayAction(hand[0].ID, nil))
		st := tb.e.State()
		if *st.CurrentPlayer != 1 || st.PendingDraw != PlusTwoPenalty || st.BluffCallable {
			t.Fatalf("unexpected state after plus two: %+v", st)
		}
		tb.expectRejected(1, protocol.CallBluffAction(), ReasonCannotCallBluff)
		tb.act(1, protocol.DrawAction())
		if got := tb.handSize(1); got != 1+PlusTwoPenalty {
			t.Fatalf("expected %d cards, got %d", 1+PlusTwoPenalty, got)
		}
		if cur := tb.current(); cur != 2 {
			t.Fatalf("expected turn to pass to 2, got %d", cur)
		}
	})
	t.Run("change color on special top", func(t *testing.T) {
		tb := newTable(t, 2, DefaultConfig())
		tb.start()
		tb.setTable(normal(t, 5, cards.Red))
		hand := tb.setHand(0, special(t, cards.KindChangeColor), normal(t, 1, cards.Red))
		tb.setHand(1, normal(t, 5, cards.Red), normal(t, 2, cards.Blue))
		tb.act(0, protocol.PlayAction(hand[0].ID, colorPtr(cards.Blue)))
		h1, _ := tb.reg.Hand(1)
		tb.expectRejected(1, protocol.PlayAction(h1[0].ID, nil), ReasonInvalidCard)
		tb.act(1, protocol.PlayAction(h1[1].ID, nil))
	})
}

func TestDrawThenPlayOrPass(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	kept := tb.setHand(0, normal(t, 1, cards.Blue))

	tb.act(0, protocol.DrawAction())
	hand, _ := tb.reg.Hand(0)
	if len(hand) != 2 {
		t.Fatalf("expected one drawn card, hand=%d", len(hand))
	}
	drawn := hand[len(hand)-1]
	if !cards.IsCompatible(normal(t, 5, cards.Red), drawn) {
		if cur := tb.current(); cur != 1 {
			t.Fatalf("incompatible draw must pass the turn, current=%d", cur)
		}
		return
	}
	if cur := tb.current(); cur != 0 {
		t.Fatalf("compatible draw keeps the turn, current=%d", cur)
	}
	tb.expectRejected(0, protocol.PlayAction(kept[0].ID, nil), ReasonInvalidCard)
	tb.expectRejected(0, protocol.DrawAction(), ReasonInvalidAction)
	tb.act(0, protocol.PassAction())
	if cur := tb.current(); cur != 1 {
		t.Fatalf("pass must hand the turn on, current=%d", cur)
	}
}

func TestWinEndsMatchAndResets(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	hand := tb.setHand(0, normal(t, 3, cards.Red))

	tb.act(0, protocol.PlayAction(hand[0].ID, nil))
	ends := packetsOf[protocol.GameEnd](tb.rec, toAll)
	if len(ends) != 1 {
		t.Fatalf("expected one GameEnd, got %d", len(ends))
	}
	want := []protocol.Standing{{Rank: 1, PlayerID: 0, Name: "a"}, {Rank: 2, PlayerID: 1, Name: "b"}}
	if ends[0].MatchID != "match-1" || !reflect.DeepEqual(ends[0].Standings, want) {
		t.Fatalf("unexpected game end: %+v", ends[0])
	}
	if tb.e.Phase() != PhaseWaiting {
		t.Fatalf("expected reset to waiting, got %s", tb.e.Phase())
	}
	for _, id := range []uint32{0, 1} {
		if got := tb.handSize(id); got != cards.HandSize {
			t.Fatalf("player %d should hold a fresh hand, got %d", id, got)
		}
	}
	if _, _, err := tb.e.Join(protocol.Join{Name: "c"}, nopLink{}); err != nil {
		t.Fatalf("joins must reopen after reset: %v", err)
	}
}

func TestFinisherLeavesTurnOrder(t *testing.T) {
	tb := newTable(t, 3, DefaultConfig())
	tb.start()
	tb.setTable(normal(t, 5, cards.Red))
	hand := tb.setHand(0, normal(t, 3, cards.Red))
	tb.setHand(1, normal(t, cards.RankReverse, cards.Red), normal(t, 1, cards.Blue))
	tb.setHand(2, normal(t, 6, cards.Green), normal(t, 2, cards.Blue))

	tb.act(0, protocol.PlayAction(hand[0].ID, nil))
	st := tb.e.State()
	if tb.e.Phase() != PhaseInProgress || *st.CurrentPlayer != 1 {
		t.Fatalf("match must continue with player 1: %+v", st)
	}
	if !reflect.DeepEqual(st.Finished, []uint32{0}) || len(st.Standings) != 1 {
		t.Fatalf("expected player 0 ranked first: %+v", st)
	}

	h1, _ := tb.reg.Hand(1)
	tb.act(1, protocol.PlayAction(h1[0].ID, nil))
	if cur := tb.current(); cur != 2 {
		t.Fatalf("finished players are skipped, current=%d", cur)
	}
}

func TestDisconnectAndRejoinDuringMatch(t *testing.T) {
	tb := newTable(t, 3, DefaultConfig())
	link := &countingLink{}
	p, code, err := tb.e.Join(protocol.Join{Name: "d"}, link)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	tb.start()
	if err := tb.e.Disconnect(0, nopLink{}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if cur := tb.current(); cur != 1 {
		t.Fatalf("offline turn holder must be skipped, current=%d", cur)
	}

	if err := tb.e.Disconnect(p.ID, link); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	back := &captureLink{}
	if _, err := tb.e.Rejoin(protocol.Credentials{PlayerID: p.ID, AccessCode: code}, back); err != nil {
		t.Fatalf("rejoin of a seated player must succeed: %v", err)
	}
	if sent := back.packets(); len(sent) == 0 {
		t.Fatalf("rejoin queued nothing on the new link")
	} else if status, ok := sent[0].(protocol.JoinStatus); !ok || !status.Accepted || status.Credentials.PlayerID != p.ID {
		t.Fatalf("rejoin must queue the JoinStatus first, got %#v", sent[0])
	}
	if _, err := tb.e.Rejoin(protocol.Credentials{PlayerID: p.ID, AccessCode: code + 1}, nopLink{}); !errors.Is(err, registry.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRejoinOutsideMatchIsRejected(t *testing.T) {
	tb := newTable(t, 2, DefaultConfig())
	link := &countingLink{}
	p, code, err := tb.e.Join(protocol.Join{Name: "c"}, link)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := tb.e.Disconnect(p.ID, link); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	tb.start()
	if st := tb.e.State(); !reflect.DeepEqual(st.Order, []uint32{0, 1}) {
		t.Fatalf("offline players are not seated: %+v", st.Order)
	}
	if _, err := tb.e.Rejoin(protocol.Credentials{PlayerID: p.ID, AccessCode: code}, nopLink{}); !errors.Is(err, registry.ErrGameInProgress) {
		t.Fatalf("expected ErrGameInProgress, got %v", err)
	}
}

func TestAbandonDuringMatch(t *testing.T) {
	tb := newTable(t, 3, DefaultConfig())
	tb.start()
	if err := tb.e.Abandon(0); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	st := tb.e.State()
	if *st.CurrentPlayer != 1 || !reflect.DeepEqual(st.Order, []uint32{1, 2}) {
		t.Fatalf("turn must move to the next seat: %+v", st)
	}
	if err := tb.e.Abandon(2); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	ends := packetsOf[protocol.GameEnd](tb.rec, toAll)
	if len(ends) != 1 || len(ends[0].Standings) != 1 || ends[0].Standings[0].PlayerID != 1 {
		t.Fatalf("last player standing must win: %+v", ends)
	}
	if tb.e.Phase() != PhaseWaiting {
		t.Fatalf("expected reset, got %s", tb.e.Phase())
	}
}

type countingLink struct {
	nopLink
	id int
}
