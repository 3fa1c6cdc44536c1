package game

import (
	"topthat/internal/cards"
)

// Outbound event names.
const (
	EvJoined        = "joined"
	EvLobbyState    = "lobbyState"
	EvStateUpdate   = "stateUpdate"
	EvNextTurn      = "nextTurn"
	EvCardPlayed    = "cardPlayed"
	EvSpecialEffect = "specialEffect"
	EvPileTaken     = "pileTaken"
	EvGameOver      = "gameOver"
	EvSessionError  = "sessionError"
)

type JoinedPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	RoomCode string `json:"roomCode"`
}

type LobbyPlayer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
	IsComputer bool   `json:"isComputer"`
	Connected  bool   `json:"connected"`
}

type LobbyPayload struct {
	RoomCode              string        `json:"roomCode"`
	HostID                string        `json:"hostId"`
	Players               []LobbyPlayer `json:"players"`
	Started               bool          `json:"started"`
	ExpectedHumanCount    int           `json:"expectedHumanCount"`
	ExpectedComputerCount int           `json:"expectedComputerCount"`
}

type PlayerView struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	IsComputer bool          `json:"isComputer"`
	Connected  bool          `json:"connected"`
	HandCount  int           `json:"handCount"`
	UpCount    int           `json:"upCount"`
	DownCount  int           `json:"downCount"`
	Hand       []cards.Card  `json:"hand,omitempty"`
	UpCards    []*cards.Card `json:"upCards"`
	DownCards  []cards.Card  `json:"downCards,omitempty"`
}

// StateView is the table as seen by one player.
type StateView struct {
	Players            []PlayerView `json:"players"`
	Pile               []cards.Card `json:"pile"`
	DeckSize           int          `json:"deckSize"`
	DiscardCount       int          `json:"discardCount"`
	CurrentPlayerID    string       `json:"currentPlayerId"`
	Started            bool         `json:"started"`
	LastNonSpecialCard *cards.Card  `json:"lastNonSpecialCard"`
}

type NextTurnPayload struct {
	PlayerID string `json:"playerId"`
}

type CardPlayedPayload struct {
	PlayerID string       `json:"playerId"`
	Cards    []cards.Card `json:"cards"`
	Zone     Zone         `json:"zone"`
}

type PileTakenPayload struct {
	PlayerID string `json:"playerId"`
}

type GameOverPayload struct {
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName"`
}

type SessionErrorPayload struct {
	Message string `json:"message"`
}

// emitLocked multicasts to every connected human.
func (s *Session) emitLocked(event string, payload any) {
	for _, p := range s.players {
		if !p.Computer && p.Connected && p.ConnID != "" {
			s.out.Send(p.ConnID, event, payload)
		}
	}
}

func (s *Session) lobbyLocked() LobbyPayload {
	lp := LobbyPayload{
		RoomCode:              s.code,
		HostID:                s.hostID,
		Players:               make([]LobbyPlayer, 0, len(s.joinOrder)),
		Started:               s.state != StateLobby,
		ExpectedHumanCount:    s.expHumans,
		ExpectedComputerCount: s.expCPUs,
	}
	for _, id := range s.joinOrder {
		p := s.players[id]
		lp.Players = append(lp.Players, LobbyPlayer{
			ID: p.ID, Name: p.Name, Status: p.Status, IsComputer: p.Computer, Connected: p.Connected,
		})
	}
	return lp
}

func (s *Session) sendLobbyLocked() { s.emitLocked(EvLobbyState, s.lobbyLocked()) }

func (s *Session) viewFor(viewerID string) StateView {
	t := s.table
	v := StateView{
		Players:         make([]PlayerView, 0, len(t.TurnOrder)),
		Pile:            append([]cards.Card{}, t.Pile...),
		DeckSize:        len(t.Deck),
		DiscardCount:    len(t.Discard),
		CurrentPlayerID: t.CurrentID(),
		Started:         t.Started,
	}
	if t.LastNonSpecial != nil {
		c := *t.LastNonSpecial
		v.LastNonSpecialCard = &c
	}
	order := t.TurnOrder
	if len(order) == 0 {
		order = s.joinOrder
	}
	for _, id := range order {
		p := s.players[id]
		if p == nil {
			continue
		}
		pv := PlayerView{
			ID:         p.ID,
			Name:       p.Name,
			IsComputer: p.Computer,
			Connected:  p.Connected,
			HandCount:  len(p.Hand),
			UpCount:    p.upCount(),
			DownCount:  len(p.DownCards),
			UpCards:    make([]*cards.Card, len(p.UpCards)),
		}
		for i, c := range p.UpCards {
			if c != nil {
				cp := *c
				pv.UpCards[i] = &cp
			}
		}
		if id == viewerID {
			pv.Hand = append([]cards.Card{}, p.Hand...)
			pv.DownCards = append([]cards.Card{}, p.DownCards...)
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// broadcastLocked sends every connected human their own view now.
func (s *Session) broadcastLocked() {
	s.cancelLocked(timerBroadcast)
	s.lastBroadcast = s.sched.Now()
	for _, p := range s.players {
		if !p.Computer && p.Connected && p.ConnID != "" {
			s.out.Send(p.ConnID, EvStateUpdate, s.viewFor(p.ID))
		}
	}
}

// requestBroadcastLocked sends at most one state update per throttle window.
// Updates inside the window collapse into a trailing flush.
func (s *Session) requestBroadcastLocked() {
	w := s.timing.BroadcastThrottle
	if w <= 0 {
		s.broadcastLocked()
		return
	}
	if s.pendingLocked(timerBroadcast) {
		return
	}
	since := s.sched.Now().Sub(s.lastBroadcast)
	if since >= w {
		s.broadcastLocked()
		return
	}
	s.scheduleLocked(timerBroadcast, w-since, s.broadcastLocked)
}
