package game

import (
	"topthat/internal/cards"
)

// Effect types sent in specialEffect messages.
const (
	EffectReset = "two"
	EffectCopy  = "five"
	EffectBurn  = "ten"
	EffectFour  = "four"
)

type Effect struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Resolution struct {
	PileCleared bool
	Effects     []Effect
}

// Resolve applies the side effects of group, which is already on the pile.
// It never checks legality.
func (t *Table) Resolve(group []cards.Card) Resolution {
	var res Resolution
	if len(group) == 0 {
		return res
	}
	top := group[len(group)-1]
	four := cards.IsFourOfAKind(group) || t.pileHoldsFour()

	switch {
	case cards.IsTwo(top.Value):
		res.Effects = append(res.Effects, Effect{Type: EffectReset, Value: top.Value})

	case four || cards.IsTen(top.Value):
		typ := EffectFour
		if cards.IsTen(top.Value) {
			typ = EffectBurn
		}
		res.Effects = append(res.Effects, Effect{Type: typ, Value: top.Value})
		t.burn()
		res.PileCleared = true

	case cards.IsFive(top.Value):
		res.Effects = append(res.Effects, Effect{Type: EffectCopy, Value: top.Value})
		if t.LastNonSpecial == nil {
			break
		}
		cp := *t.LastNonSpecial
		cp.IsCopy = true
		t.Pile = append(t.Pile, cp)
		switch {
		case cards.IsTwo(cp.Value):
			res.Effects = append(res.Effects, Effect{Type: EffectReset, Value: cp.Value})
		case cards.IsTen(cp.Value):
			res.Effects = append(res.Effects, Effect{Type: EffectBurn, Value: cp.Value})
			t.burn()
			res.PileCleared = true
		}

	default:
		last := top
		t.LastNonSpecial = &last
	}
	return res
}
