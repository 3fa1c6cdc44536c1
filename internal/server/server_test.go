package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topthat/internal/game"
	"topthat/internal/protocol"
	"topthat/internal/room"
)

const timeout = 2 * time.Second

type serverMsg struct {
	T     string          `json:"t"`
	ReqID string          `json:"reqId"`
	P     json.RawMessage `json:"p"`
}

func startTestServer(t *testing.T) (*httptest.Server, *room.Registry) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	hub := NewHub(log)
	timing := game.DefaultTiming()
	timing.StartupLock = 0
	timing.BroadcastThrottle = 0
	reg := room.New(room.Options{Timing: timing, Outbox: hub, Log: log, Seed: 1})
	srv := httptest.NewServer(NewRouter(hub, reg, reg, log))
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return srv, reg
}

func wsDial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "test done"))
		conn.Close()
	})
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, typ, reqID string, payload any) {
	t.Helper()
	msg := map[string]any{"t": typ, "reqId": reqID}
	if payload != nil {
		msg["p"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) serverMsg {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var msg serverMsg
		require.NoError(t, json.Unmarshal(data, &msg), string(data))
		if msg.T == typ {
			return msg
		}
	}
}

func TestHealthAndRooms(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rooms []room.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Empty(t, rooms)
}

func TestJoinAgainstComputer(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := wsDial(t, srv)

	sendMessage(t, conn, protocol.MsgJoin, "r1", map[string]any{
		"playerName": "Ann", "humanCount": 1, "computerCount": 1,
	})
	// The deal goes out before the join is acknowledged.
	state := readUntil(t, conn, game.EvStateUpdate)
	var view game.StateView
	require.NoError(t, json.Unmarshal(state.P, &view))
	assert.Equal(t, 34, view.DeckSize)
	require.Len(t, view.Players, 2)
	assert.Len(t, view.Players[0].Hand, 3)

	turn := readUntil(t, conn, game.EvNextTurn)
	var next game.NextTurnPayload
	require.NoError(t, json.Unmarshal(turn.P, &next))

	ackMsg := readUntil(t, conn, protocol.MsgAck)
	assert.Equal(t, "r1", ackMsg.ReqID)
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(ackMsg.P, &ack))
	require.True(t, ack.Success)
	assert.Len(t, ack.RoomCode, 6)
	assert.Equal(t, ack.PlayerID, view.Players[0].ID)
	assert.Equal(t, ack.PlayerID, next.PlayerID)

	sendMessage(t, conn, protocol.MsgPlay, "r2", map[string]any{"cardIndices": []int{0, 0}, "zone": "hand"})
	errMsg := readUntil(t, conn, protocol.MsgError)
	assert.Equal(t, "r2", errMsg.ReqID)
	var ep protocol.ErrPayload
	require.NoError(t, json.Unmarshal(errMsg.P, &ep))
	assert.Equal(t, "DUPLICATE_INDICES", ep.Code)
}

func TestJoinRejectedWithAck(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := wsDial(t, srv)

	sendMessage(t, conn, protocol.MsgJoin, "r1", map[string]any{"roomCode": "NOPE22", "playerName": "Ann"})
	msg := readUntil(t, conn, protocol.MsgAck)
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(msg.P, &ack))
	assert.False(t, ack.Success)
	assert.Equal(t, "ROOM_NOT_FOUND", ack.Code)

	sendMessage(t, conn, "dance", "r2", nil)
	msg = readUntil(t, conn, protocol.MsgError)
	assert.Equal(t, "r2", msg.ReqID)

	sendMessage(t, conn, protocol.MsgPing, "r3", nil)
	msg = readUntil(t, conn, protocol.MsgPong)
	assert.Equal(t, "r3", msg.ReqID)
}

func TestReconnectRestoresSeat(t *testing.T) {
	srv, reg := startTestServer(t)
	host := wsDial(t, srv)
	sendMessage(t, host, protocol.MsgJoin, "", map[string]any{"playerName": "Host", "humanCount": 2, "computerCount": 0})
	var hostAck protocol.Ack
	require.NoError(t, json.Unmarshal(readUntil(t, host, protocol.MsgAck).P, &hostAck))

	guest := wsDial(t, srv)
	sendMessage(t, guest, protocol.MsgJoin, "", map[string]any{"roomCode": hostAck.RoomCode, "playerName": "Guest"})
	var guestAck protocol.Ack
	require.NoError(t, json.Unmarshal(readUntil(t, guest, protocol.MsgAck).P, &guestAck))
	require.True(t, guestAck.Success)

	require.NoError(t, guest.Close())
	require.Eventually(t, func() bool {
		s, ok := reg.Session(hostAck.RoomCode)
		return ok && s.Info().ConnectedHumans == 1
	}, timeout, 10*time.Millisecond)

	again := wsDial(t, srv)
	sendMessage(t, again, protocol.MsgRejoin, "rj", map[string]any{"roomCode": hostAck.RoomCode, "playerId": guestAck.PlayerID})
	state := readUntil(t, again, game.EvStateUpdate)
	var view game.StateView
	require.NoError(t, json.Unmarshal(state.P, &view))
	for _, p := range view.Players {
		if p.ID == guestAck.PlayerID {
			assert.Len(t, p.Hand, 3)
			assert.True(t, p.Connected)
		}
	}

	msg := readUntil(t, again, protocol.MsgAck)
	assert.Equal(t, "rj", msg.ReqID)
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(msg.P, &ack))
	assert.True(t, ack.Success)
}

func TestLeaveIsAcknowledged(t *testing.T) {
	srv, reg := startTestServer(t)
	conn := wsDial(t, srv)
	sendMessage(t, conn, protocol.MsgJoin, "j", map[string]any{"playerName": "Ann", "humanCount": 2, "computerCount": 0})
	var joinAck protocol.Ack
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.MsgAck).P, &joinAck))
	require.True(t, joinAck.Success)

	sendMessage(t, conn, protocol.MsgLeave, "lv", nil)
	msg := readUntil(t, conn, protocol.MsgAck)
	assert.Equal(t, "lv", msg.ReqID)
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(msg.P, &ack))
	assert.True(t, ack.Success)

	s, ok := reg.Session(joinAck.RoomCode)
	require.True(t, ok)
	assert.Equal(t, 0, s.Info().Players)
}
