package cards

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Draw weights out of a 108-card reference deck.
const (
	DeckSize      = 108
	specialWeight = 8
	// Normal ranks are drawn out of 25 slots: one for rank 0, two for each
	// of ranks 1..12.
	normalRankSlots = 25
)

// Generator produces random cards with the reference deck's distribution.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded from the clock.
func NewGenerator() *Generator {
	now := uint64(time.Now().UnixNano())
	return NewGeneratorWithSource(rand.NewPCG(now, now>>17|1))
}

// NewGeneratorWithSource returns a generator over src, for deterministic tests.
func NewGeneratorWithSource(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// PickRandom draws one card without an id.
func (g *Generator) PickRandom() Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pickLocked()
}

// PickNormalRandom redraws until it gets a normal card without a turn effect.
func (g *Generator) PickNormalRandom() Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		c := g.pickLocked()
		if c.Kind == KindNormal && !c.Rank.IsAction() {
			return c
		}
	}
}

func (g *Generator) pickLocked() Card {
	if g.rng.IntN(DeckSize) < specialWeight {
		if g.rng.IntN(2) == 0 {
			return Card{Kind: KindPlusFour}
		}
		return Card{Kind: KindChangeColor}
	}
	slot := g.rng.IntN(normalRankSlots)
	rank := Rank((slot + 1) / 2)
	return Card{
		Kind:  KindNormal,
		Rank:  rank,
		Color: Colors[g.rng.IntN(len(Colors))],
	}
}
