package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRank  = errors.New("cards: invalid rank")
	ErrInvalidColor = errors.New("cards: invalid color")
	ErrInvalidKind  = errors.New("cards: invalid kind")
)

// Color of a normal card, or the chosen color of a special card.
type Color uint8

const (
	ColorNone Color = iota
	Red
	Green
	Blue
	Yellow
)

// Colors lists the four playable colors in wire order.
var Colors = [...]Color{Red, Green, Blue, Yellow}

func (c Color) Valid() bool {
	return c >= Red && c <= Yellow
}

func (c Color) String() string {
	switch c {
	case ColorNone:
		return "none"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// ParseColor accepts the lowercase names produced by String.
func ParseColor(raw string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "red":
		return Red, nil
	case "green":
		return Green, nil
	case "blue":
		return Blue, nil
	case "yellow":
		return Yellow, nil
	case "none", "":
		return ColorNone, nil
	default:
		return ColorNone, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
}

func (c Color) MarshalText() ([]byte, error) {
	if c != ColorNone && !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Rank of a normal card. Ranks 10..12 carry turn effects.
type Rank uint8

const (
	RankPlusTwo Rank = 10
	RankBlock   Rank = 11
	RankReverse Rank = 12
	MaxRank          = RankReverse
)

// IsAction reports whether the rank changes turn flow when played.
func (r Rank) IsAction() bool {
	return r >= RankPlusTwo && r <= RankReverse
}

func (r Rank) String() string {
	switch r {
	case RankPlusTwo:
		return "+2"
	case RankBlock:
		return "block"
	case RankReverse:
		return "reverse"
	default:
		return fmt.Sprintf("%d", uint8(r))
	}
}

// Kind is the card variant tag.
type Kind uint8

const (
	KindNormal Kind = iota
	KindPlusFour
	KindChangeColor
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindPlusFour:
		return "plus_four"
	case KindChangeColor:
		return "change_color"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k > KindChangeColor {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*k = KindNormal
	case "plus_four":
		*k = KindPlusFour
	case "change_color":
		*k = KindChangeColor
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(b))
	}
	return nil
}

// Card is one drawn card. Normal cards carry rank and color; special cards
// carry only the color chosen when they were played.
type Card struct {
	ID    uint32
	Kind  Kind
	Rank  Rank
	Color Color
}

// NewNormal builds a normal card without an id.
func NewNormal(rank Rank, color Color) (Card, error) {
	if rank > MaxRank {
		return Card{}, fmt.Errorf("%w: %d", ErrInvalidRank, rank)
	}
	if !color.Valid() {
		return Card{}, fmt.Errorf("%w: %d", ErrInvalidColor, uint8(color))
	}
	return Card{Kind: KindNormal, Rank: rank, Color: color}, nil
}

// NewSpecial builds a colorless special card without an id.
func NewSpecial(kind Kind) (Card, error) {
	if kind != KindPlusFour && kind != KindChangeColor {
		return Card{}, fmt.Errorf("%w: %s is not special", ErrInvalidKind, kind)
	}
	return Card{Kind: kind}, nil
}

func (c Card) IsSpecial() bool {
	return c.Kind == KindPlusFour || c.Kind == KindChangeColor
}

// WithChosenColor returns a copy of a special card with its chosen color set.
// Normal cards are returned unchanged.
func (c Card) WithChosenColor(color Color) Card {
	if c.IsSpecial() {
		c.Color = color
	}
	return c
}

// Validate rejects field combinations that no variant allows.
func (c Card) Validate() error {
	switch c.Kind {
	case KindNormal:
		if c.Rank > MaxRank {
			return fmt.Errorf("%w: %d", ErrInvalidRank, c.Rank)
		}
		if !c.Color.Valid() {
			return fmt.Errorf("%w: normal card needs a color", ErrInvalidColor)
		}
	case KindPlusFour, KindChangeColor:
		if c.Rank != 0 {
			return fmt.Errorf("%w: special card has no rank", ErrInvalidRank)
		}
		if c.Color != ColorNone && !c.Color.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidColor, uint8(c.Color))
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, uint8(c.Kind))
	}
	return nil
}

func (c Card) String() string {
	switch c.Kind {
	case KindNormal:
		return fmt.Sprintf("%s %s", c.Color, c.Rank)
	default:
		if c.Color == ColorNone {
			return c.Kind.String()
		}
		return fmt.Sprintf("%s(%s)", c.Kind, c.Color)
	}
}

type wireCard struct {
	ID    uint32 `json:"id"`
	Kind  Kind   `json:"kind"`
	Rank  *Rank  `json:"rank,omitempty"`
	Color *Color `json:"color,omitempty"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	w := wireCard{ID: c.ID, Kind: c.Kind}
	if c.Kind == KindNormal {
		rank := c.Rank
		w.Rank = &rank
	}
	if c.Color != ColorNone {
		color := c.Color
		w.Color = &color
	}
	return json.Marshal(w)
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var w wireCard
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Card{ID: w.ID, Kind: w.Kind}
	if w.Rank != nil {
		if w.Kind != KindNormal {
			return fmt.Errorf("%w: special card has no rank", ErrInvalidRank)
		}
		out.Rank = *w.Rank
	} else if w.Kind == KindNormal {
		return fmt.Errorf("%w: normal card needs a rank", ErrInvalidRank)
	}
	if w.Color != nil {
		out.Color = *w.Color
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*c = out
	return nil
}

// IsCompatible reports whether candidate may be played on top. A special top
// card carries the active color as its chosen color.
func IsCompatible(top, candidate Card) bool {
	if candidate.IsSpecial() {
		return true
	}
	if top.IsSpecial() {
		return candidate.Color == top.Color
	}
	return candidate.Rank == top.Rank || candidate.Color == top.Color
}
