// Package bot picks moves for computer players.
package bot

import (
	"math/rand"

	"topthat/internal/cards"
)

// Zones match the wire names used by the game package.
const (
	ZoneHand = "hand"
	ZoneUp   = "upCards"
	ZoneDown = "downCards"
)

// View is what a computer may look at on its turn. Valid reports whether a
// group would be accepted on the current pile.
type View struct {
	Hand      []cards.Card
	UpCards   []*cards.Card
	DownCount int
	Valid     func(group []cards.Card) bool
}

type Move struct {
	Zone    string
	Indices []int
	PickUp  bool
}

type Strategy interface {
	Choose(v View, rng *rand.Rand) Move
}

// Default plays from the highest priority zone it can: a random legal rank
// group from the hand, a single up card, or a blind down card. With nothing
// legal it picks up.
type Default struct{}

func (Default) Choose(v View, rng *rand.Rand) Move {
	switch {
	case len(v.Hand) > 0:
		opts := handOptions(v.Hand, v.Valid)
		if len(opts) == 0 {
			return Move{PickUp: true}
		}
		return Move{Zone: ZoneHand, Indices: opts[rng.Intn(len(opts))]}

	case upCount(v.UpCards) > 0:
		var opts []int
		for i, c := range v.UpCards {
			if c != nil && v.Valid([]cards.Card{*c}) {
				opts = append(opts, i)
			}
		}
		if len(opts) == 0 {
			return Move{PickUp: true}
		}
		return Move{Zone: ZoneUp, Indices: []int{opts[rng.Intn(len(opts))]}}

	case v.DownCount > 0:
		return Move{Zone: ZoneDown, Indices: []int{rng.Intn(v.DownCount)}}
	}
	return Move{PickUp: true}
}

// handOptions lists every legal single card plus every legal group of two or
// more cards of one rank.
func handOptions(hand []cards.Card, valid func([]cards.Card) bool) [][]int {
	groups := make(map[string][]int)
	var order []string
	for i, c := range hand {
		v := cards.Normalize(c.Value)
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], i)
	}

	var opts [][]int
	for _, v := range order {
		idx := groups[v]
		group := make([]cards.Card, len(idx))
		for j, i := range idx {
			group[j] = hand[i]
		}
		if len(idx) > 1 && valid(group) {
			opts = append(opts, idx)
		}
		for _, i := range idx {
			if valid([]cards.Card{hand[i]}) {
				opts = append(opts, []int{i})
			}
		}
	}
	return opts
}

func upCount(up []*cards.Card) int {
	n := 0
	for _, c := range up {
		if c != nil {
			n++
		}
	}
	return n
}
