package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topthat/internal/cards"
)

func pileOf(vs ...string) []cards.Card {
	out := make([]cards.Card, len(vs))
	for i, v := range vs {
		out[i] = cards.Card{Value: cards.Normalize(v), Suit: cards.Diamonds}
	}
	return out
}

func TestIsValidPlay(t *testing.T) {
	tb := newTable(4)
	assert.True(t, tb.IsValidPlay(hand("3")), "empty pile takes anything")
	assert.False(t, tb.IsValidPlay(nil))

	tb.Pile = pileOf("9")
	assert.True(t, tb.IsValidPlay(hand("J")))
	assert.True(t, tb.IsValidPlay(hand("J", "J")))
	assert.False(t, tb.IsValidPlay(hand("9")), "equal rank does not beat")
	assert.False(t, tb.IsValidPlay(hand("4")))
	assert.False(t, tb.IsValidPlay(hand("J", "Q")), "mixed ranks")
	assert.True(t, tb.IsValidPlay(hand("2")))
	assert.True(t, tb.IsValidPlay(hand("5")))
	assert.True(t, tb.IsValidPlay(hand("10")))

	tb.Pile = pileOf("K")
	assert.True(t, tb.IsValidPlay(hand("3", "3", "3", "3")), "four of a kind beats anything")

	tb.Pile = pileOf("2")
	assert.True(t, tb.IsValidPlay(hand("3")), "anything goes on a two")

	tb.Pile = append(pileOf("Q", "5"), cards.Card{Value: "q", IsCopy: true})
	assert.False(t, tb.IsValidPlay(hand("J")), "copy carries the copied rank")
	assert.True(t, tb.IsValidPlay(hand("K")))
}

func TestAdvanceTurnSkipsDisconnected(t *testing.T) {
	tb := newTable(4)
	tb.TurnOrder = []string{"a", "b", "c", "d"}
	connected := map[string]bool{"a": true, "b": false, "c": false, "d": true}
	eligible := func(id string) bool { return connected[id] }

	next, ok := tb.AdvanceTurn(eligible)
	require.True(t, ok)
	assert.Equal(t, "d", next)

	next, ok = tb.AdvanceTurn(eligible)
	require.True(t, ok)
	assert.Equal(t, "a", next)

	for i := 0; i < 10; i++ {
		next, _ = tb.AdvanceTurn(eligible)
		assert.True(t, connected[next])
	}
}

func TestAdvanceTurnNoEligiblePlayer(t *testing.T) {
	tb := newTable(4)
	tb.TurnOrder = []string{"a", "b", "c"}
	tb.Current = 1
	_, ok := tb.AdvanceTurn(func(string) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 1, tb.Current)
}

func TestAdvanceTurnReturnsToSoleEligible(t *testing.T) {
	tb := newTable(4)
	tb.TurnOrder = []string{"a", "b"}
	next, ok := tb.AdvanceTurn(func(id string) bool { return id == "a" })
	require.True(t, ok)
	assert.Equal(t, "a", next)
}

func TestResolveFourTensReportTen(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("9")
	played := tb.push(hand("10", "10", "10", "10"))
	res := tb.Resolve(played)

	assert.True(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectBurn, Value: cards.Ten}}, res.Effects)
	assert.Len(t, tb.Discard, 5)
	assert.Empty(t, tb.Pile)
}

func TestResolveFourThreesOnKingBurns(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("9", "K")
	tb.Deck = pileOf("7")
	group := hand("3", "3", "3", "3")
	require.True(t, tb.IsValidPlay(group))

	played := tb.push(group)
	res := tb.Resolve(played)

	assert.True(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectFour, Value: "3"}}, res.Effects)
	assert.Len(t, tb.Discard, 6)
	require.Len(t, tb.Pile, 1, "deck seeds a new pile")
	assert.Equal(t, "7", tb.Pile[0].Value)
	require.NotNil(t, tb.LastNonSpecial)
	assert.Equal(t, "7", tb.LastNonSpecial.Value)
	assert.Empty(t, tb.Deck)
}

func TestResolveTenBurns(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("4", "8")
	tb.Deck = pileOf("2")
	res := tb.Resolve(tb.push(hand("10")))

	assert.True(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectBurn, Value: cards.Ten}}, res.Effects)
	assert.Len(t, tb.Discard, 3)
	require.Len(t, tb.Pile, 1)
	assert.Nil(t, tb.LastNonSpecial, "special pile starter clears the last real card")
}

func TestResolveTenWithEmptyDeckLeavesEmptyPile(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("4")
	res := tb.Resolve(tb.push(hand("10")))
	assert.True(t, res.PileCleared)
	assert.Empty(t, tb.Pile)
	assert.Nil(t, tb.LastNonSpecial)
}

func TestResolveTwoResets(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("K")
	res := tb.Resolve(tb.push(hand("2")))
	assert.False(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectReset, Value: cards.Two}}, res.Effects)
	assert.Len(t, tb.Pile, 2)
}

func TestResolveFourTwosResetRatherThanBurn(t *testing.T) {
	tb := newTable(4)
	res := tb.Resolve(tb.push(hand("2", "2", "2", "2")))
	assert.False(t, res.PileCleared)
	assert.Equal(t, EffectReset, res.Effects[0].Type)
	assert.Len(t, tb.Pile, 4)
}

func TestResolveFiveCopiesLastRealCard(t *testing.T) {
	tb := newTable(4)
	tb.Resolve(tb.push(hand("9")))
	res := tb.Resolve(tb.push(hand("5")))

	assert.False(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectCopy, Value: cards.Five}}, res.Effects)
	require.Len(t, tb.Pile, 3)
	top := tb.Pile[2]
	assert.True(t, top.IsCopy)
	assert.Equal(t, "9", top.Value)
	assert.Equal(t, cards.Five, tb.Pile[1].Value, "five stays on the pile")
}

func TestResolveFiveWithoutLastRealCard(t *testing.T) {
	tb := newTable(4)
	res := tb.Resolve(tb.push(hand("5")))
	assert.False(t, res.PileCleared)
	assert.Len(t, tb.Pile, 1)
}

func TestResolveFiveCopyingTenBurns(t *testing.T) {
	tb := newTable(4)
	tb.Pile = pileOf("9", "5")
	ten := cards.Card{Value: cards.Ten, Suit: cards.Spades}
	tb.LastNonSpecial = &ten

	res := tb.Resolve(tb.push(hand("5")))
	assert.True(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectCopy, Value: cards.Five}, {Type: EffectBurn, Value: cards.Ten}}, res.Effects)
	assert.Empty(t, tb.Pile)
	assert.Len(t, tb.Discard, 3, "copies are not real cards")
}

func TestResolveFiveCopyingTwoResets(t *testing.T) {
	tb := newTable(4)
	two := cards.Card{Value: cards.Two, Suit: cards.Spades}
	tb.LastNonSpecial = &two

	res := tb.Resolve(tb.push(hand("5")))
	assert.False(t, res.PileCleared)
	assert.Equal(t, []Effect{{Type: EffectCopy, Value: cards.Five}, {Type: EffectReset, Value: cards.Two}}, res.Effects)
	assert.Len(t, tb.Pile, 2)
	assert.True(t, tb.IsValidPlay(hand("3")))
}

func TestResolvePlainCardUpdatesLastRealCard(t *testing.T) {
	tb := newTable(4)
	tb.Resolve(tb.push(hand("8", "8")))
	require.NotNil(t, tb.LastNonSpecial)
	assert.Equal(t, "8", tb.LastNonSpecial.Value)

	tb.Resolve(tb.push(hand("2")))
	assert.Equal(t, "8", tb.LastNonSpecial.Value, "specials leave it alone")
}

func TestTakePileDropsCopies(t *testing.T) {
	tb := newTable(4)
	tb.Pile = append(pileOf("9", "5"), cards.Card{Value: "9", IsCopy: true})
	got := tb.takePile()
	assert.Len(t, got, 2)
	assert.Empty(t, tb.Pile)
	assert.Nil(t, tb.LastNonSpecial)
}
