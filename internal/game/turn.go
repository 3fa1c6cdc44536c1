package game

import (
	"time"

	"github.com/sirupsen/logrus"

	"topthat/internal/bot"
	"topthat/internal/cards"
	"topthat/internal/history"
)

// turnGuardLocked holds the checks shared by every turn action.
func (s *Session) turnGuardLocked(playerID string) (*Player, error) {
	if s.destroyed {
		return nil, ErrSessionEnded
	}
	switch s.state {
	case StateInProgress:
	case StateStarting:
		return nil, ErrStarting
	default:
		return nil, ErrNotInProgress
	}
	p, ok := s.players[playerID]
	if !ok {
		return nil, ErrNotInRoom
	}
	if s.turnLock {
		return nil, ErrTurnInProgress
	}
	if s.table.CurrentID() != playerID {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// Play places cards from one zone on the pile.
func (s *Session) Play(playerID string, zone Zone, indices []int) error {
	s.mu.Lock()
	defer s.unlock()
	p, err := s.turnGuardLocked(playerID)
	if err != nil {
		return err
	}
	s.turnLock = true
	defer func() { s.turnLock = false }()
	return s.playLocked(p, zone, indices)
}

// PickUp takes the whole pile into the hand. It is refused while the
// player's current zone holds a legal play.
func (s *Session) PickUp(playerID string) error {
	s.mu.Lock()
	defer s.unlock()
	p, err := s.turnGuardLocked(playerID)
	if err != nil {
		return err
	}
	switch z := p.ActiveZone(); {
	case z == ZoneDown:
		return ErrMustPlayDownCard
	case z == zoneNone:
		return ErrNotInProgress
	case s.zoneHasValidPlay(p, z):
		return ErrValidPlayExists
	}
	s.turnLock = true
	defer func() { s.turnLock = false }()
	s.pickupLocked(p)
	return nil
}

func (s *Session) playLocked(p *Player, zone Zone, indices []int) error {
	if len(indices) == 0 {
		return wrapf(ErrInvalidPayload, "no cards selected")
	}
	if hasDuplicates(indices) {
		return ErrDuplicateIndices
	}
	if zone != p.ActiveZone() {
		return wrapf(ErrWrongZone, "play from %s", p.ActiveZone())
	}
	if zone == ZoneDown && len(indices) > 1 {
		return ErrTooManyDownCards
	}
	selected, err := p.zoneCards(zone, indices)
	if err != nil {
		return err
	}

	if zone != ZoneDown && !s.table.IsValidPlay(selected) {
		if !p.Computer {
			if !cards.SameRank(selected) && !cards.IsFourOfAKind(selected) {
				return ErrMixedRanks
			}
			if s.zoneHasValidPlay(p, zone) {
				return ErrInvalidPlay
			}
		}
		s.log.WithFields(logrus.Fields{"player": p.ID, "zone": zone}).Debug("invalid play forced into pickup")
		played := s.table.push(p.take(zone, indices))
		s.emitLocked(EvCardPlayed, CardPlayedPayload{PlayerID: p.ID, Cards: played, Zone: zone})
		s.pickupLocked(p)
		return nil
	}

	played := s.table.push(p.take(zone, indices))
	s.touchLocked()
	s.emitLocked(EvCardPlayed, CardPlayedPayload{PlayerID: p.ID, Cards: played, Zone: zone})

	res := s.table.Resolve(played)
	for _, e := range res.Effects {
		s.emitLocked(EvSpecialEffect, e)
	}
	if zone == ZoneHand {
		for len(p.Hand) < zoneSize {
			c, ok := s.table.draw()
			if !ok {
				break
			}
			p.addToHand(c)
		}
	}
	s.record(history.Play, p.ID, CardPlayedPayload{PlayerID: p.ID, Cards: played, Zone: zone})

	if p.Out() {
		s.gameOverLocked(p)
		return nil
	}
	if res.PileCleared {
		s.emitLocked(EvNextTurn, NextTurnPayload{PlayerID: p.ID})
		s.requestBroadcastLocked()
		s.scheduleComputerLocked(s.timing.ComputerSpecialDelay)
		return nil
	}
	s.advanceLocked()
	return nil
}

func (s *Session) pickupLocked(p *Player) {
	taken := s.table.takePile()
	p.addToHand(taken...)
	s.table.seedPile()
	s.touchLocked()
	s.emitLocked(EvPileTaken, PileTakenPayload{PlayerID: p.ID})
	s.record(history.PickUp, p.ID, map[string]int{"cards": len(taken)})
	s.advanceLocked()
}

// zoneHasValidPlay reports whether any single card, or any four of a kind,
// in zone could legally be played now.
func (s *Session) zoneHasValidPlay(p *Player, zone Zone) bool {
	var pool []cards.Card
	switch zone {
	case ZoneHand:
		pool = p.Hand
	case ZoneUp:
		for _, c := range p.UpCards {
			if c != nil {
				pool = append(pool, *c)
			}
		}
	default:
		return false
	}
	byRank := make(map[string][]cards.Card)
	for _, c := range pool {
		if s.table.IsValidPlay([]cards.Card{c}) {
			return true
		}
		v := cards.Normalize(c.Value)
		byRank[v] = append(byRank[v], c)
	}
	for _, g := range byRank {
		if cards.IsFourOfAKind(g) {
			return true
		}
	}
	return false
}

func (s *Session) advanceLocked() {
	next, ok := s.table.AdvanceTurn(s.eligible)
	if !ok {
		s.armShutdownLocked()
		s.requestBroadcastLocked()
		return
	}
	s.emitLocked(EvNextTurn, NextTurnPayload{PlayerID: next})
	s.requestBroadcastLocked()
	s.scheduleComputerLocked(s.timing.ComputerDelay)
}

// scheduleComputerLocked queues a move if the current player is a computer
// and somebody is still watching.
func (s *Session) scheduleComputerLocked(delay time.Duration) {
	if s.state != StateInProgress || s.connectedHumansLocked() == 0 {
		return
	}
	p := s.players[s.table.CurrentID()]
	if p == nil || !p.Computer {
		return
	}
	id := p.ID
	s.scheduleLocked(timerComputer, delay, func() { s.computerTurnLocked(id) })
}

func (s *Session) computerTurnLocked(id string) {
	if s.state != StateInProgress || s.table.CurrentID() != id {
		return
	}
	if s.turnLock {
		s.scheduleComputerLocked(s.timing.ComputerDelay)
		return
	}
	p := s.players[id]
	s.turnLock = true
	defer func() { s.turnLock = false }()

	mv := s.bot.Choose(bot.View{
		Hand:      p.Hand,
		UpCards:   p.UpCards,
		DownCount: len(p.DownCards),
		Valid:     s.table.IsValidPlay,
	}, s.rng)
	log := s.log.WithField("player", id)
	if mv.PickUp {
		log.Debug("computer picks up")
		s.pickupLocked(p)
		return
	}
	if err := s.playLocked(p, Zone(mv.Zone), mv.Indices); err != nil {
		log.WithError(err).Warn("computer move rejected, picking up")
		s.pickupLocked(p)
	}
}

func (s *Session) gameOverLocked(winner *Player) {
	s.state = StateGameOver
	s.cancelLocked(timerComputer)
	s.cancelLocked(timerSkip)
	s.log.WithField("winner", winner.ID).Info("game over")
	payload := GameOverPayload{WinnerID: winner.ID, WinnerName: winner.Name}
	s.emitLocked(EvGameOver, payload)
	s.broadcastLocked()
	s.record(history.GameOver, winner.ID, payload)
}
