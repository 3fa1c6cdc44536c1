package game

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"topthat/internal/bot"
	"topthat/internal/cards"
	"topthat/internal/history"
)

type State int

const (
	StateLobby State = iota
	StateStarting
	StateInProgress
	StateGameOver
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateStarting:
		return "starting"
	case StateInProgress:
		return "in_progress"
	case StateGameOver:
		return "game_over"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outbox delivers one message to one connection. Implementations must not
// call back into the session synchronously.
type Outbox interface {
	Send(connID, event string, payload any)
}

type Timing struct {
	ComputerDelay        time.Duration
	ComputerSpecialDelay time.Duration
	RejoinResumeDelay    time.Duration
	StartupLock          time.Duration
	ShutdownGrace        time.Duration
	BroadcastThrottle    time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		ComputerDelay:        2 * time.Second,
		ComputerSpecialDelay: 3 * time.Second,
		RejoinResumeDelay:    250 * time.Millisecond,
		StartupLock:          12 * time.Second,
		ShutdownGrace:        3 * time.Minute,
		BroadcastThrottle:    50 * time.Millisecond,
	}
}

type Options struct {
	Code        string
	MaxPlayers  int
	Timing      Timing
	Outbox      Outbox
	Scheduler   Scheduler
	Rand        *rand.Rand
	Bot         bot.Strategy
	Recorder    history.Recorder
	Log         *logrus.Entry
	OnDestroyed func(code string)
}

type JoinRequest struct {
	PlayerID      string
	Name          string
	HumanCount    int
	ComputerCount int
}

type JoinResult struct {
	RoomCode string
	PlayerID string
	Rejoined bool
}

// Info is a point-in-time summary used by the registry.
type Info struct {
	Code            string
	HostName        string
	Players         int
	ConnectedHumans int
	MaxPlayers      int
	State           State
	Started         bool
	LastActivity    time.Time
}

// Session is one room. All state is guarded by mu; inbound requests and
// timer callbacks each take it for their whole run.
type Session struct {
	mu sync.Mutex

	code   string
	timing Timing
	out    Outbox
	sched  Scheduler
	rng    *rand.Rand
	bot    bot.Strategy
	rec    history.Recorder
	log    *logrus.Entry
	newID  func() string

	onDestroyed    func(code string)
	destroyPending bool

	state     State
	destroyed bool
	turnLock  bool

	players   map[string]*Player
	joinOrder []string
	hostID    string
	expHumans int
	expCPUs   int
	table     *Table
	awaitAck  map[string]bool

	timers   map[timerKey]pendingTimer
	timerGen uint64

	lastBroadcast time.Time
	lastActivity  time.Time
}

func NewSession(o Options) *Session {
	if o.Scheduler == nil {
		o.Scheduler = RealScheduler()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Bot == nil {
		o.Bot = bot.Default{}
	}
	if o.Recorder == nil {
		o.Recorder = history.Nop{}
	}
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		code:        o.Code,
		timing:      o.Timing,
		out:         o.Outbox,
		sched:       o.Scheduler,
		rng:         o.Rand,
		bot:         o.Bot,
		rec:         o.Recorder,
		log:         o.Log.WithField("room", o.Code),
		newID:       uuid.NewString,
		onDestroyed: o.OnDestroyed,
		players:     make(map[string]*Player),
		table:       newTable(o.MaxPlayers),
		timers:      make(map[timerKey]pendingTimer),
	}
	s.lastActivity = s.sched.Now()
	return s
}

func (s *Session) Code() string { return s.code }

// unlock releases mu and then reports a destroy that happened while it was
// held, so the callback may take other locks.
func (s *Session) unlock() {
	notify := s.destroyPending
	s.destroyPending = false
	s.mu.Unlock()
	if notify && s.onDestroyed != nil {
		s.onDestroyed(s.code)
	}
}

func (s *Session) touchLocked() { s.lastActivity = s.sched.Now() }

func (s *Session) record(typ, playerID string, payload any) {
	s.rec.Record(history.Action{
		Room:     s.code,
		Type:     typ,
		PlayerID: playerID,
		Payload:  payload,
		At:       s.sched.Now(),
	})
}

func (s *Session) humansLocked() []*Player {
	out := make([]*Player, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		if p := s.players[id]; p != nil && !p.Computer {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) connectedHumansLocked() int {
	n := 0
	for _, p := range s.players {
		if !p.Computer && p.Connected {
			n++
		}
	}
	return n
}

// Join seats a new player, or hands a returning disconnected identity to the
// rejoin path.
func (s *Session) Join(connID string, req JoinRequest) (JoinResult, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return JoinResult{}, ErrSessionEnded
	}
	if req.PlayerID != "" {
		if p, ok := s.players[req.PlayerID]; ok {
			if p.Connected || p.Computer {
				return JoinResult{}, ErrDuplicateJoin
			}
			if s.state == StateStarting {
				return JoinResult{}, ErrStarting
			}
			s.rejoinLocked(connID, p)
			return JoinResult{RoomCode: s.code, PlayerID: p.ID, Rejoined: true}, nil
		}
	}
	switch s.state {
	case StateLobby:
	case StateStarting:
		return JoinResult{}, ErrStarting
	default:
		return JoinResult{}, ErrGameStarted
	}
	if len(s.players) >= s.table.MaxPlayers {
		return JoinResult{}, ErrGameFull
	}

	// A playerId only ever names an existing seat; new seats get fresh ids.
	id := s.newID()
	p := newPlayer(id, req.Name, connID, false)
	if len(s.players) == 0 {
		p.Status = StatusHost
		s.hostID = id
		s.expHumans = req.HumanCount
		s.expCPUs = req.ComputerCount
	}
	s.players[id] = p
	s.joinOrder = append(s.joinOrder, id)
	s.touchLocked()
	s.log.WithFields(logrus.Fields{"player": id, "name": p.Name}).Info("player joined")

	s.out.Send(connID, EvJoined, JoinedPayload{PlayerID: id, Name: p.Name, RoomCode: s.code})
	s.sendLobbyLocked()
	s.record(history.Join, id, req)

	if s.expHumans > 0 && len(s.humansLocked()) >= s.expHumans {
		total := len(s.players) + s.expCPUs
		if total >= 2 && total <= s.table.MaxPlayers {
			s.startLocked(s.expCPUs)
		}
	}
	return JoinResult{RoomCode: s.code, PlayerID: id}, nil
}

// Rejoin reattaches a returning player to a new connection.
func (s *Session) Rejoin(connID, roomCode, playerID string) error {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrSessionEnded
	}
	if !strings.EqualFold(roomCode, s.code) {
		return ErrInvalidRoomForRejoin
	}
	if s.state == StateStarting {
		return ErrStarting
	}
	p, ok := s.players[playerID]
	if !ok || p.Computer {
		return ErrPlayerNotFound
	}
	s.rejoinLocked(connID, p)
	return nil
}

func (s *Session) rejoinLocked(connID string, p *Player) {
	resume := s.connectedHumansLocked() == 0
	p.ConnID = connID
	p.Connected = true
	s.cancelLocked(timerShutdown)
	s.touchLocked()
	s.log.WithField("player", p.ID).Info("player rejoined")

	s.out.Send(connID, EvJoined, JoinedPayload{PlayerID: p.ID, Name: p.Name, RoomCode: s.code})
	s.sendLobbyLocked()
	if s.table.Started {
		// With nobody connected the turn was left on a disconnected seat.
		moved := false
		if s.state == StateInProgress && !s.eligible(s.table.CurrentID()) {
			_, moved = s.table.AdvanceTurn(s.eligible)
		}
		s.broadcastLocked()
		if s.state == StateInProgress {
			next := NextTurnPayload{PlayerID: s.table.CurrentID()}
			if moved {
				s.emitLocked(EvNextTurn, next)
			} else {
				s.out.Send(connID, EvNextTurn, next)
			}
			if resume {
				s.scheduleComputerLocked(s.timing.RejoinResumeDelay)
			}
		}
	}
	s.record(history.Rejoin, p.ID, nil)
}

// Start deals the game. An empty requester skips the host check.
func (s *Session) Start(requesterID string, computerCount int) error {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrSessionEnded
	}
	switch s.state {
	case StateLobby:
	case StateStarting:
		return ErrStarting
	default:
		return ErrGameStarted
	}
	if requesterID != "" && requesterID != s.hostID {
		return ErrNotHost
	}
	total := len(s.players) + computerCount
	if computerCount < 0 || total < 2 || total > s.table.MaxPlayers {
		return wrapf(ErrInvalidPlayerCount, "%d players", total)
	}
	s.startLocked(computerCount)
	return nil
}

func (s *Session) startLocked(computerCount int) {
	s.state = StateStarting
	t := s.table

	for i := 1; i <= computerCount; i++ {
		id := fmt.Sprintf("COMPUTER_%d", i)
		s.players[id] = newPlayer(id, fmt.Sprintf("CPU %d", i), "", true)
		s.joinOrder = append(s.joinOrder, id)
	}
	t.TurnOrder = make([]string, 0, len(s.joinOrder))
	t.TurnOrder = append(t.TurnOrder, s.hostID)
	for _, id := range s.joinOrder {
		if id != s.hostID {
			t.TurnOrder = append(t.TurnOrder, id)
		}
	}
	t.Current = 0

	decks := 1
	if len(t.TurnOrder) >= 4 {
		decks = 2
	}
	t.Deck = cards.NewDeck(decks)
	cards.Shuffle(t.Deck, s.rng)
	t.dealt = len(t.Deck)

	for _, id := range t.TurnOrder {
		p := s.players[id]
		p.DownCards, p.UpCards, p.Hand = nil, make([]*cards.Card, 0, zoneSize), nil
		for i := 0; i < zoneSize; i++ {
			c, _ := t.draw()
			c.FaceDown = true
			p.DownCards = append(p.DownCards, c)
		}
		for i := 0; i < zoneSize; i++ {
			c, _ := t.draw()
			p.UpCards = append(p.UpCards, &c)
		}
		for i := 0; i < zoneSize; i++ {
			c, _ := t.draw()
			p.addToHand(c)
		}
	}
	t.Started = true
	s.touchLocked()
	s.log.WithFields(logrus.Fields{"players": len(t.TurnOrder), "decks": decks}).Info("game started")

	s.sendLobbyLocked()
	s.broadcastLocked()
	s.record(history.Start, s.hostID, map[string]int{"computers": computerCount, "decks": decks})

	s.awaitAck = make(map[string]bool)
	for _, p := range s.players {
		if !p.Computer && p.Connected {
			s.awaitAck[p.ID] = true
		}
	}
	if s.timing.StartupLock <= 0 || len(s.awaitAck) == 0 {
		s.beginPlayLocked()
		return
	}
	s.scheduleLocked(timerStartup, s.timing.StartupLock, s.beginPlayLocked)
}

// DealAck records that a client finished showing the opening deal.
func (s *Session) DealAck(playerID string) error {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrSessionEnded
	}
	if s.state != StateStarting {
		return nil
	}
	delete(s.awaitAck, playerID)
	if len(s.awaitAck) == 0 {
		s.beginPlayLocked()
	}
	return nil
}

func (s *Session) beginPlayLocked() {
	if s.state != StateStarting {
		return
	}
	s.cancelLocked(timerStartup)
	s.awaitAck = nil
	s.state = StateInProgress
	if !s.players[s.table.CurrentID()].Connected {
		if _, ok := s.table.AdvanceTurn(s.eligible); !ok {
			s.armShutdownLocked()
		}
	}
	s.emitLocked(EvNextTurn, NextTurnPayload{PlayerID: s.table.CurrentID()})
	s.broadcastLocked()
	s.scheduleComputerLocked(s.timing.ComputerDelay)
}

// Ready toggles a lobby player's ready flag. The host stays host.
func (s *Session) Ready(playerID string, ready bool) error {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrSessionEnded
	}
	if s.state != StateLobby {
		return ErrGameStarted
	}
	p, ok := s.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if p.Status != StatusHost {
		p.Status = StatusJoined
		if ready {
			p.Status = StatusReady
		}
	}
	s.touchLocked()
	s.sendLobbyLocked()
	return nil
}

// Disconnect handles a closed connection. connID must still be the player's
// current connection; a stale close after a rejoin is ignored.
func (s *Session) Disconnect(playerID, connID string) {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return
	}
	p, ok := s.players[playerID]
	if !ok || p.Computer || p.ConnID != connID {
		return
	}
	s.touchLocked()
	log := s.log.WithField("player", playerID)

	if s.state == StateLobby {
		delete(s.players, playerID)
		s.joinOrder = removeID(s.joinOrder, playerID)
		if s.hostID == playerID {
			s.hostID = ""
			if len(s.joinOrder) > 0 {
				s.hostID = s.joinOrder[0]
				s.players[s.hostID].Status = StatusHost
			}
		}
		log.Info("player left lobby")
		s.sendLobbyLocked()
		s.record(history.Leave, playerID, nil)
		return
	}

	p.Connected = false
	p.ConnID = ""
	log.Info("player disconnected")
	s.record(history.Disconnect, playerID, nil)

	switch s.state {
	case StateStarting:
		delete(s.awaitAck, playerID)
		if len(s.awaitAck) == 0 {
			s.beginPlayLocked()
		}
	case StateInProgress:
		if s.table.CurrentID() == playerID {
			if s.turnLock {
				s.scheduleLocked(timerSkip, 0, func() { s.skipLocked(playerID) })
			} else {
				s.skipLocked(playerID)
			}
		}
	}
	if s.connectedHumansLocked() == 0 {
		s.cancelLocked(timerComputer)
		s.armShutdownLocked()
	}
	s.requestBroadcastLocked()
}

func (s *Session) eligible(id string) bool {
	p := s.players[id]
	return p != nil && p.Connected
}

func (s *Session) skipLocked(playerID string) {
	if s.state != StateInProgress || s.table.CurrentID() != playerID {
		return
	}
	s.advanceLocked()
}

func (s *Session) armShutdownLocked() {
	if s.pendingLocked(timerShutdown) {
		return
	}
	s.log.WithField("grace", s.timing.ShutdownGrace).Info("no humans connected, shutdown armed")
	s.scheduleLocked(timerShutdown, s.timing.ShutdownGrace, func() {
		s.destroyLocked("all players left")
	})
}

// Destroy ends the session. Later calls do nothing.
func (s *Session) Destroy(reason string) {
	s.mu.Lock()
	defer s.unlock()
	s.destroyLocked(reason)
}

func (s *Session) destroyLocked(reason string) {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.state = StateDestroyed
	s.cancelAllLocked()
	s.emitLocked(EvSessionError, SessionErrorPayload{Message: reason})
	s.players = make(map[string]*Player)
	s.joinOrder = nil
	s.awaitAck = nil
	s.table.reset()
	s.destroyPending = true
	s.log.WithField("reason", reason).Info("room destroyed")
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.unlock()
	info := Info{
		Code:            s.code,
		Players:         len(s.players),
		ConnectedHumans: s.connectedHumansLocked(),
		MaxPlayers:      s.table.MaxPlayers,
		State:           s.state,
		Started:         s.table.Started || s.state > StateLobby,
		LastActivity:    s.lastActivity,
	}
	if h := s.players[s.hostID]; h != nil {
		info.HostName = h.Name
	}
	return info
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
