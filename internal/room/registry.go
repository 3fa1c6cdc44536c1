// Package room owns the set of live game sessions and routes connections
// to them.
package room

import (
	"context"
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"topthat/internal/game"
	"topthat/internal/history"
	"topthat/internal/protocol"
)

const (
	codeLen      = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type Options struct {
	MaxPlayers   int
	Timing       game.Timing
	Outbox       game.Outbox
	Scheduler    game.Scheduler
	Recorder     history.Recorder
	Log          *logrus.Logger
	Seed         int64
	EmptyTimeout time.Duration
	StaleTimeout time.Duration
}

// binding ties a connection to its seat.
type binding struct {
	code     string
	playerID string
}

// Info is the public summary of a room.
type Info struct {
	RoomCode   string `json:"roomCode"`
	HostName   string `json:"hostName"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	Started    bool   `json:"started"`
}

type Registry struct {
	opts Options
	log  *logrus.Logger

	mu       sync.Mutex
	rooms    map[string]*game.Session
	bindings map[string]binding
	seeds    int64
}

func New(o Options) *Registry {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = game.DefaultMaxPlayers
	}
	if o.Scheduler == nil {
		o.Scheduler = game.RealScheduler()
	}
	if o.Recorder == nil {
		o.Recorder = history.Nop{}
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return &Registry{
		opts:     o,
		log:      o.Log,
		rooms:    make(map[string]*game.Session),
		bindings: make(map[string]binding),
	}
}

func (r *Registry) MaxPlayers() int { return r.opts.MaxPlayers }

func genRoomID(n int) (string, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		x, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[x.Int64()]
	}
	return string(out), nil
}

func (r *Registry) createLocked() (*game.Session, error) {
	var code string
	for {
		c, err := genRoomID(codeLen)
		if err != nil {
			return nil, err
		}
		if _, taken := r.rooms[c]; !taken {
			code = c
			break
		}
	}
	r.seeds++
	seed := time.Now().UnixNano() + r.seeds
	if r.opts.Seed != 0 {
		seed = r.opts.Seed + r.seeds
	}
	s := game.NewSession(game.Options{
		Code:        code,
		MaxPlayers:  r.opts.MaxPlayers,
		Timing:      r.opts.Timing,
		Outbox:      r.opts.Outbox,
		Scheduler:   r.opts.Scheduler,
		Rand:        mrand.New(mrand.NewSource(seed)),
		Recorder:    r.opts.Recorder,
		Log:         logrus.NewEntry(r.log),
		OnDestroyed: r.forget,
	})
	r.rooms[code] = s
	r.log.WithField("room", code).Info("room created")
	return s, nil
}

// forget drops a destroyed room and every connection bound to it.
func (r *Registry) forget(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, code)
	for conn, b := range r.bindings {
		if b.code == code {
			delete(r.bindings, conn)
		}
	}
}

func (r *Registry) Session(code string) (*game.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rooms[code]
	return s, ok
}

func (r *Registry) bound(connID string) (binding, *game.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[connID]
	if !ok {
		return binding{}, nil, game.ErrNotInRoom
	}
	s, ok := r.rooms[b.code]
	if !ok {
		delete(r.bindings, connID)
		return binding{}, nil, game.ErrNotInRoom
	}
	return b, s, nil
}

func (r *Registry) bind(connID, code, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn, b := range r.bindings {
		if b.code == code && b.playerID == playerID {
			delete(r.bindings, conn)
		}
	}
	r.bindings[connID] = binding{code: code, playerID: playerID}
}

// Join creates a room when req has no code, otherwise joins the named one.
func (r *Registry) Join(connID string, req protocol.Join) (game.JoinResult, error) {
	r.mu.Lock()
	if _, ok := r.bindings[connID]; ok {
		r.mu.Unlock()
		return game.JoinResult{}, game.ErrAlreadyInRoom
	}
	var (
		s       *game.Session
		created bool
	)
	if req.RoomCode == "" {
		var err error
		if s, err = r.createLocked(); err != nil {
			r.mu.Unlock()
			return game.JoinResult{}, err
		}
		created = true
	} else if s = r.rooms[req.RoomCode]; s == nil {
		r.mu.Unlock()
		return game.JoinResult{}, game.ErrRoomNotFound
	}
	r.mu.Unlock()

	res, err := s.Join(connID, game.JoinRequest{
		PlayerID:      req.PlayerID,
		Name:          req.PlayerName,
		HumanCount:    req.HumanCount,
		ComputerCount: req.ComputerCount,
	})
	if err != nil {
		if created {
			s.Destroy("join failed")
		}
		return res, err
	}
	r.bind(connID, res.RoomCode, res.PlayerID)
	return res, nil
}

func (r *Registry) Rejoin(connID string, req protocol.Rejoin) error {
	r.mu.Lock()
	if b, ok := r.bindings[connID]; ok && (b.code != req.RoomCode || b.playerID != req.PlayerID) {
		r.mu.Unlock()
		return game.ErrAlreadyInRoom
	}
	s := r.rooms[req.RoomCode]
	r.mu.Unlock()
	if s == nil {
		return game.ErrInvalidRoomForRejoin
	}
	if err := s.Rejoin(connID, req.RoomCode, req.PlayerID); err != nil {
		return err
	}
	r.bind(connID, req.RoomCode, req.PlayerID)
	return nil
}

func (r *Registry) Start(connID string, req protocol.Start) error {
	b, s, err := r.bound(connID)
	if err != nil {
		return err
	}
	return s.Start(b.playerID, req.ComputerCount)
}

func (r *Registry) Play(connID string, req protocol.Play) error {
	b, s, err := r.bound(connID)
	if err != nil {
		return err
	}
	return s.Play(b.playerID, req.Zone, req.CardIndices)
}

func (r *Registry) PickUp(connID string) error {
	b, s, err := r.bound(connID)
	if err != nil {
		return err
	}
	return s.PickUp(b.playerID)
}

func (r *Registry) Ready(connID string, req protocol.Ready) error {
	b, s, err := r.bound(connID)
	if err != nil {
		return err
	}
	return s.Ready(b.playerID, req.Ready)
}

func (r *Registry) DealAck(connID string) error {
	b, s, err := r.bound(connID)
	if err != nil {
		return err
	}
	return s.DealAck(b.playerID)
}

// Disconnect unbinds connID and tells its room.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	b, ok := r.bindings[connID]
	delete(r.bindings, connID)
	s := r.rooms[b.code]
	r.mu.Unlock()
	if !ok || s == nil {
		return
	}
	s.Disconnect(b.playerID, connID)
}

func (r *Registry) snapshot() []*game.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*game.Session, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	return out
}

// List returns the open lobbies, oldest code first.
func (r *Registry) List() []Info {
	var out []Info
	for _, s := range r.snapshot() {
		in := s.Info()
		if in.State != game.StateLobby {
			continue
		}
		out = append(out, Info{
			RoomCode:   in.Code,
			HostName:   in.HostName,
			Players:    in.Players,
			MaxPlayers: in.MaxPlayers,
			Started:    in.Started,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomCode < out[j].RoomCode })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Sweep destroys rooms nobody is connected to: never started ones after
// EmptyTimeout, started ones after StaleTimeout.
func (r *Registry) Sweep(now time.Time) int {
	n := 0
	for _, s := range r.snapshot() {
		in := s.Info()
		if in.ConnectedHumans > 0 {
			continue
		}
		idle := now.Sub(in.LastActivity)
		switch {
		case !in.Started && idle >= r.opts.EmptyTimeout:
			s.Destroy("room closed: no players")
		case in.Started && r.opts.StaleTimeout > 0 && idle >= r.opts.StaleTimeout:
			s.Destroy("room closed: inactive")
		default:
			continue
		}
		n++
	}
	if n > 0 {
		r.log.WithField("rooms", n).Info("swept idle rooms")
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.Sweep(now)
		}
	}
}

// Close destroys every room.
func (r *Registry) Close() {
	for _, s := range r.snapshot() {
		s.Destroy("server shutting down")
	}
}
