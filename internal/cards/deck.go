package cards

// HandSize is the number of cards dealt to a fresh hand.
const HandSize = 7

// Deck is an append-only pool of cards with ids unique to this deck. Ids are
// never reused, even after the card is removed. Not safe for concurrent use.
type Deck struct {
	cards  []Card
	nextID uint32
}

func NewDeck() *Deck {
	return &Deck{cards: make([]Card, 0, HandSize)}
}

// NewHand returns a deck holding a fresh starting hand.
func NewHand(gen *Generator) *Deck {
	d := NewDeck()
	for i := 0; i < HandSize; i++ {
		d.Draw(gen)
	}
	return d
}

// Add stores c under the next id. Once the deck holds DeckSize cards the
// request is ignored and ok is false.
func (d *Deck) Add(c Card) (Card, bool) {
	if len(d.cards) >= DeckSize {
		return Card{}, false
	}
	c.ID = d.nextID
	d.nextID++
	d.cards = append(d.cards, c)
	return c, true
}

// Draw adds one random card from gen.
func (d *Deck) Draw(gen *Generator) (Card, bool) {
	return d.Add(gen.PickRandom())
}

// DrawN adds up to n random cards and returns the ones actually added.
func (d *Deck) DrawN(gen *Generator, n int) []Card {
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		c, ok := d.Draw(gen)
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

func (d *Deck) Find(id uint32) (Card, bool) {
	for _, c := range d.cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Remove takes the card with id out of the deck.
func (d *Deck) Remove(id uint32) (Card, bool) {
	for i, c := range d.cards {
		if c.ID == id {
			d.cards = append(d.cards[:i], d.cards[i+1:]...)
			return c, true
		}
	}
	return Card{}, false
}

func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards returns a copy of the held cards in insertion order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// AnyCompatible reports whether any held card other than except can be
// played on top.
func (d *Deck) AnyCompatible(top Card, except uint32) bool {
	for _, c := range d.cards {
		if c.ID == except {
			continue
		}
		if IsCompatible(top, c) {
			return true
		}
	}
	return false
}
