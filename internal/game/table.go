package game

import (
	"topthat/internal/cards"
)

const DefaultMaxPlayers = 4

// Table is the shared state of one room. Deck top and pile top are the
// last elements.
type Table struct {
	TurnOrder      []string
	Current        int
	Deck           []cards.Card
	Pile           []cards.Card
	Discard        []cards.Card
	LastNonSpecial *cards.Card
	Started        bool
	MaxPlayers     int

	dealt int
}

func newTable(maxPlayers int) *Table {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	return &Table{MaxPlayers: maxPlayers}
}

func (t *Table) CurrentID() string {
	if len(t.TurnOrder) == 0 {
		return ""
	}
	return t.TurnOrder[t.Current]
}

// Top is the visible top of the pile. A copy carries the value of the card
// it duplicates, so the visible top is also the effective top.
func (t *Table) Top() (cards.Card, bool) {
	if len(t.Pile) == 0 {
		return cards.Card{}, false
	}
	return t.Pile[len(t.Pile)-1], true
}

// IsValidPlay reports whether group may go on the pile from hand or up cards.
func (t *Table) IsValidPlay(group []cards.Card) bool {
	if len(group) == 0 {
		return false
	}
	if cards.IsFourOfAKind(group) {
		return true
	}
	if !cards.SameRank(group) {
		return false
	}
	top := group[len(group)-1]
	if cards.IsSpecial(top.Value) {
		return true
	}
	pileTop, ok := t.Top()
	if !ok {
		return true
	}
	return cards.Rank(top.Value) > cards.Rank(pileTop.Value)
}

// AdvanceTurn moves to the next eligible player. When nobody is eligible the
// index is left alone and ok is false.
func (t *Table) AdvanceTurn(eligible func(id string) bool) (next string, ok bool) {
	n := len(t.TurnOrder)
	for step := 1; step <= n; step++ {
		i := (t.Current + step) % n
		if eligible(t.TurnOrder[i]) {
			t.Current = i
			return t.TurnOrder[i], true
		}
	}
	return "", false
}

func (t *Table) draw() (cards.Card, bool) {
	if len(t.Deck) == 0 {
		return cards.Card{}, false
	}
	c := t.Deck[len(t.Deck)-1]
	t.Deck = t.Deck[:len(t.Deck)-1]
	return c, true
}

// push appends played cards to the pile with normalized values.
func (t *Table) push(cs []cards.Card) []cards.Card {
	played := make([]cards.Card, len(cs))
	for i, c := range cs {
		c.Value = cards.Normalize(c.Value)
		c.FaceDown = false
		played[i] = c
	}
	t.Pile = append(t.Pile, played...)
	return played
}

// takePile empties the pile and returns its real cards. Copies are dropped.
func (t *Table) takePile() []cards.Card {
	out := make([]cards.Card, 0, len(t.Pile))
	for _, c := range t.Pile {
		if !c.IsCopy {
			out = append(out, c)
		}
	}
	t.Pile = nil
	t.LastNonSpecial = nil
	return out
}

// seedPile starts a fresh pile from the deck, if any cards remain.
func (t *Table) seedPile() {
	c, ok := t.draw()
	if !ok {
		return
	}
	c.Value = cards.Normalize(c.Value)
	c.FaceDown = false
	t.Pile = append(t.Pile, c)
	if cards.IsSpecial(c.Value) {
		t.LastNonSpecial = nil
	} else {
		cp := c
		t.LastNonSpecial = &cp
	}
}

func (t *Table) burn() {
	t.Discard = append(t.Discard, t.takePile()...)
	t.seedPile()
}

func (t *Table) pileHoldsFour() bool {
	if len(t.Pile) < 4 {
		return false
	}
	return cards.IsFourOfAKind(t.Pile[len(t.Pile)-4:])
}

// CardCount counts every real card on the table and in the given seats.
func (t *Table) CardCount(players map[string]*Player) int {
	n := len(t.Deck) + len(t.Discard)
	for _, c := range t.Pile {
		if !c.IsCopy {
			n++
		}
	}
	for _, p := range players {
		n += p.CardCount()
	}
	return n
}

// Dealt is the number of cards built into the deck at start.
func (t *Table) Dealt() int { return t.dealt }

func (t *Table) reset() {
	*t = Table{MaxPlayers: t.MaxPlayers}
}
