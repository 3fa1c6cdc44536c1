package game

import (
	"sort"

	"topthat/internal/cards"
)

type Status string

const (
	StatusHost   Status = "host"
	StatusJoined Status = "joined"
	StatusReady  Status = "ready"
)

type Zone string

const (
	ZoneHand Zone = "hand"
	ZoneUp   Zone = "upCards"
	ZoneDown Zone = "downCards"
	zoneNone Zone = ""
)

const zoneSize = 3

// Player is one seat. It outlives disconnects; a rejoin restores this
// same record by ID.
type Player struct {
	ID        string
	Name      string
	ConnID    string
	Hand      []cards.Card
	UpCards   []*cards.Card
	DownCards []cards.Card
	Computer  bool
	Status    Status
	Connected bool
}

func newPlayer(id, name, connID string, computer bool) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		ConnID:    connID,
		Computer:  computer,
		Status:    StatusJoined,
		Connected: true,
	}
}

func (p *Player) addToHand(cs ...cards.Card) {
	p.Hand = append(p.Hand, cs...)
	cards.SortByRank(p.Hand)
}

func (p *Player) upCount() int {
	n := 0
	for _, c := range p.UpCards {
		if c != nil {
			n++
		}
	}
	return n
}

// ActiveZone is the zone the player must play from next.
func (p *Player) ActiveZone() Zone {
	switch {
	case len(p.Hand) > 0:
		return ZoneHand
	case p.upCount() > 0:
		return ZoneUp
	case len(p.DownCards) > 0:
		return ZoneDown
	}
	return zoneNone
}

func (p *Player) Out() bool { return p.ActiveZone() == zoneNone }

func (p *Player) CardCount() int { return len(p.Hand) + p.upCount() + len(p.DownCards) }

// zoneCards returns copies of the selected cards without removing them.
func (p *Player) zoneCards(z Zone, idx []int) ([]cards.Card, error) {
	out := make([]cards.Card, 0, len(idx))
	for _, i := range idx {
		switch z {
		case ZoneHand:
			if i < 0 || i >= len(p.Hand) {
				return nil, wrapf(ErrIndexOutOfRange, "hand index %d", i)
			}
			out = append(out, p.Hand[i])
		case ZoneUp:
			if i < 0 || i >= len(p.UpCards) || p.UpCards[i] == nil {
				return nil, wrapf(ErrIndexOutOfRange, "up card slot %d", i)
			}
			out = append(out, *p.UpCards[i])
		case ZoneDown:
			if i < 0 || i >= len(p.DownCards) {
				return nil, wrapf(ErrIndexOutOfRange, "down card index %d", i)
			}
			c := p.DownCards[i]
			c.FaceDown = false
			out = append(out, c)
		default:
			return nil, ErrWrongZone
		}
	}
	return out, nil
}

// take removes the selected cards. Indices must already be validated.
func (p *Player) take(z Zone, idx []int) []cards.Card {
	taken, _ := p.zoneCards(z, idx)
	switch z {
	case ZoneHand:
		p.Hand = removeIndices(p.Hand, idx)
	case ZoneUp:
		for _, i := range idx {
			p.UpCards[i] = nil
		}
	case ZoneDown:
		p.DownCards = removeIndices(p.DownCards, idx)
	}
	return taken
}

func removeIndices(cs []cards.Card, idx []int) []cards.Card {
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	out := cs[:0:0]
	for i, c := range cs {
		if !drop[i] {
			out = append(out, c)
		}
	}
	return out
}

func hasDuplicates(idx []int) bool {
	s := append([]int(nil), idx...)
	sort.Ints(s)
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			return true
		}
	}
	return false
}
