// Package cards holds the card model and the pure rank rules of the game.
package cards

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

type Suit string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
)

var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Values are the printed faces of one suit, lowest first.
var Values = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// Canonical rank symbols.
const (
	Two  = "two"
	Five = "five"
	Ten  = "ten"
)

// Card never changes once dealt; it only moves between containers.
// IsCopy marks the duplicate a five puts on the pile.
type Card struct {
	Value    string `json:"value"`
	Suit     Suit   `json:"suit"`
	FaceDown bool   `json:"faceDown,omitempty"`
	IsCopy   bool   `json:"isCopy,omitempty"`
}

var aliases = map[string]string{
	"2": Two, "two": Two,
	"3": "3", "three": "3",
	"4": "4", "four": "4",
	"5": Five, "five": Five,
	"6": "6", "six": "6",
	"7": "7", "seven": "7",
	"8": "8", "eight": "8",
	"9": "9", "nine": "9",
	"10": Ten, "ten": Ten,
	"j": "j", "jack": "j",
	"q": "q", "queen": "q",
	"k": "k", "king": "k",
	"a": "a", "ace": "a",
}

var ranks = map[string]int{
	Two: 2, "3": 3, "4": 4, Five: 5, "6": 6, "7": 7, "8": 8, "9": 9,
	Ten: 10, "j": 11, "q": 12, "k": 13, "a": 14,
}

// Normalize maps every spelling of a rank to its canonical symbol.
// Unknown input comes back unchanged.
func Normalize(v string) string {
	if c, ok := aliases[strings.ToLower(strings.TrimSpace(v))]; ok {
		return c
	}
	return v
}

// NormalizeAny does the same for loosely typed values such as decoded JSON.
// Numbers are read as their decimal spelling; nil and other types pass through.
func NormalizeAny(v any) any {
	switch x := v.(type) {
	case string:
		return Normalize(x)
	case int:
		return Normalize(strconv.Itoa(x))
	case float64:
		if x == float64(int(x)) {
			return Normalize(strconv.Itoa(int(x)))
		}
	}
	return v
}

// Rank orders values 2 < 3 < ... < 10 < J < Q < K < A. Unknown values rank 0.
func Rank(v string) int { return ranks[Normalize(v)] }

func IsTwo(v string) bool  { return Normalize(v) == Two }
func IsFive(v string) bool { return Normalize(v) == Five }
func IsTen(v string) bool  { return Normalize(v) == Ten }

func IsSpecial(v string) bool { return IsTwo(v) || IsFive(v) || IsTen(v) }

// IsFourOfAKind reports whether the first four cards share one known rank.
func IsFourOfAKind(cs []Card) bool {
	if len(cs) < 4 {
		return false
	}
	first := Normalize(cs[0].Value)
	if first == "" {
		return false
	}
	for _, c := range cs[1:4] {
		if Normalize(c.Value) != first {
			return false
		}
	}
	return true
}

// SameRank reports whether every card normalizes to one value.
func SameRank(cs []Card) bool {
	if len(cs) == 0 {
		return false
	}
	first := Normalize(cs[0].Value)
	for _, c := range cs[1:] {
		if Normalize(c.Value) != first {
			return false
		}
	}
	return true
}

// NewDeck returns n full 52-card decks in suit order.
func NewDeck(n int) []Card {
	out := make([]Card, 0, 52*n)
	for d := 0; d < n; d++ {
		for _, s := range Suits {
			for _, v := range Values {
				out = append(out, Card{Value: v, Suit: s})
			}
		}
	}
	return out
}

func Shuffle(cs []Card, rng *rand.Rand) {
	rng.Shuffle(len(cs), func(i, j int) { cs[i], cs[j] = cs[j], cs[i] })
}

// SortByRank orders a hand lowest rank first, suits keep deck order within a rank.
func SortByRank(cs []Card) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := Rank(cs[i].Value), Rank(cs[j].Value)
		if ri != rj {
			return ri < rj
		}
		return suitIndex(cs[i].Suit) < suitIndex(cs[j].Suit)
	})
}

func suitIndex(s Suit) int {
	for i, x := range Suits {
		if x == s {
			return i
		}
	}
	return len(Suits)
}
