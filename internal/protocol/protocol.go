// Package protocol defines the websocket envelope and turns raw client
// messages into strict request values.
package protocol

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"topthat/internal/game"
)

type InMsg struct {
	T     string          `json:"t"`
	ReqID string          `json:"reqId,omitempty"`
	P     json.RawMessage `json:"p,omitempty"`
}

type OutMsg struct {
	T     string      `json:"t"`
	ReqID string      `json:"reqId,omitempty"`
	P     interface{} `json:"p,omitempty"`
}

// Inbound message names.
const (
	MsgJoin    = "join"
	MsgRejoin  = "rejoin"
	MsgStart   = "start"
	MsgPlay    = "play"
	MsgPickUp  = "pickUpPile"
	MsgReady   = "ready"
	MsgDealAck = "dealAck"
	MsgLeave   = "leave"
	MsgPing    = "ping"
)

// Outbound names produced here rather than by a session.
const (
	MsgAck   = "ack"
	MsgError = "error"
	MsgPong  = "pong"
)

type Ack struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

type ErrPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Request is one of the concrete request types below.
type Request interface{ request() }

type Join struct {
	RoomCode      string
	PlayerID      string
	PlayerName    string
	HumanCount    int
	ComputerCount int
}

type Rejoin struct {
	RoomCode string
	PlayerID string
}

type Start struct{ ComputerCount int }

type Play struct {
	Zone        game.Zone
	CardIndices []int
}

type PickUp struct{}
type Ready struct{ Ready bool }
type DealAck struct{}
type Leave struct{}
type Ping struct{}

func (Join) request()    {}
func (Rejoin) request()  {}
func (Start) request()   {}
func (Play) request()    {}
func (PickUp) request()  {}
func (Ready) request()   {}
func (DealAck) request() {}
func (Leave) request()   {}
func (Ping) request()    {}

const (
	maxNameLen = 20
	maxCodeLen = 10
)

var (
	nameRe = regexp.MustCompile(`^[a-zA-Z0-9\s._-]+$`)
	codeRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
)

// Decode validates in against maxPlayers and returns the typed request.
func Decode(in InMsg, maxPlayers int) (Request, error) {
	switch in.T {
	case MsgJoin:
		return decodeJoin(in.P, maxPlayers)
	case MsgRejoin:
		return decodeRejoin(in.P)
	case MsgStart:
		var p struct {
			ComputerCount *int `json:"computerCount"`
		}
		if err := unmarshal(in.P, &p); err != nil {
			return nil, err
		}
		n := 0
		if p.ComputerCount != nil {
			n = *p.ComputerCount
		}
		if n < 0 || n > maxPlayers-1 {
			return nil, game.ErrInvalidPlayerCount
		}
		return Start{ComputerCount: n}, nil
	case MsgPlay:
		return decodePlay(in.P)
	case MsgPickUp:
		return PickUp{}, nil
	case MsgReady:
		var p struct {
			Ready *bool `json:"ready"`
		}
		if err := unmarshal(in.P, &p); err != nil {
			return nil, err
		}
		return Ready{Ready: p.Ready == nil || *p.Ready}, nil
	case MsgDealAck:
		return DealAck{}, nil
	case MsgLeave:
		return Leave{}, nil
	case MsgPing:
		return Ping{}, nil
	}
	return nil, game.ErrUnknownMessage
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return game.ErrInvalidPayload
	}
	return nil
}

func decodeJoin(raw json.RawMessage, maxPlayers int) (Request, error) {
	var p struct {
		RoomCode      *string `json:"roomCode"`
		PlayerID      *string `json:"playerId"`
		PlayerName    *string `json:"playerName"`
		HumanCount    *int    `json:"humanCount"`
		ComputerCount *int    `json:"computerCount"`
	}
	if len(raw) == 0 {
		return nil, game.ErrInvalidPayload
	}
	if err := unmarshal(raw, &p); err != nil {
		return nil, err
	}
	var j Join
	if p.PlayerName == nil {
		return nil, game.ErrInvalidPlayerName
	}
	j.PlayerName = strings.TrimSpace(*p.PlayerName)
	if j.PlayerName == "" || len(j.PlayerName) > maxNameLen || !nameRe.MatchString(j.PlayerName) {
		return nil, game.ErrInvalidPlayerName
	}
	if p.RoomCode != nil && strings.TrimSpace(*p.RoomCode) != "" {
		code, err := roomCode(*p.RoomCode)
		if err != nil {
			return nil, err
		}
		j.RoomCode = code
	}
	if p.PlayerID != nil && strings.TrimSpace(*p.PlayerID) != "" {
		id, err := playerID(*p.PlayerID)
		if err != nil {
			return nil, game.ErrInvalidPayload
		}
		j.PlayerID = id
	}

	// Counts only matter to whoever creates the room.
	if j.RoomCode == "" || p.HumanCount != nil || p.ComputerCount != nil {
		if p.HumanCount == nil || p.ComputerCount == nil {
			return nil, game.ErrInvalidPlayerCount
		}
		h, c := *p.HumanCount, *p.ComputerCount
		if h < 1 || h > maxPlayers || c < 0 || c > maxPlayers-1 || h+c < 2 || h+c > maxPlayers {
			return nil, game.ErrInvalidPlayerCount
		}
		j.HumanCount, j.ComputerCount = h, c
	}
	return j, nil
}

func decodeRejoin(raw json.RawMessage) (Request, error) {
	var p struct {
		RoomCode string `json:"roomCode"`
		PlayerID string `json:"playerId"`
	}
	if len(raw) == 0 {
		return nil, game.ErrInvalidRejoinData
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, game.ErrInvalidRejoinData
	}
	id, err := playerID(p.PlayerID)
	if err != nil {
		return nil, game.ErrInvalidRejoinData
	}
	code, err := roomCode(p.RoomCode)
	if err != nil {
		return nil, game.ErrInvalidRejoinData
	}
	return Rejoin{RoomCode: code, PlayerID: id}, nil
}

// playerID accepts only the uuids the server hands out at join.
func playerID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func decodePlay(raw json.RawMessage) (Request, error) {
	var p struct {
		CardIndices []int  `json:"cardIndices"`
		Zone        string `json:"zone"`
	}
	if len(raw) == 0 {
		return nil, game.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, game.ErrInvalidPayload
	}
	if len(p.CardIndices) == 0 {
		return nil, game.ErrInvalidPayload
	}
	for _, i := range p.CardIndices {
		if i < 0 {
			return nil, game.ErrIndexOutOfRange
		}
	}
	z := game.Zone(p.Zone)
	switch z {
	case game.ZoneHand, game.ZoneUp, game.ZoneDown:
	default:
		return nil, game.ErrInvalidPayload
	}
	return Play{Zone: z, CardIndices: p.CardIndices}, nil
}

func roomCode(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxCodeLen || !codeRe.MatchString(s) {
		return "", game.ErrInvalidRoomCode
	}
	return strings.ToUpper(s), nil
}
