// Package server is the websocket and http front of the game server.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"topthat/internal/game"
	"topthat/internal/protocol"
)

const (
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Dispatcher receives decoded requests from connections.
type Dispatcher interface {
	MaxPlayers() int
	Join(connID string, req protocol.Join) (game.JoinResult, error)
	Rejoin(connID string, req protocol.Rejoin) error
	Start(connID string, req protocol.Start) error
	Play(connID string, req protocol.Play) error
	PickUp(connID string) error
	Ready(connID string, req protocol.Ready) error
	DealAck(connID string) error
	Disconnect(connID string)
}

type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	id   string

	mu     sync.Mutex
	closed bool
}

// push never blocks; it reports false when the buffer is full.
func (c *Conn) push(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks live connections and implements game.Outbox.
type Hub struct {
	log *logrus.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{log: log, conns: make(map[string]*Conn)}
}

// Send queues a message for connID. A full or unknown connection drops it.
func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.send(c, protocol.OutMsg{T: event, P: payload})
}

func (h *Hub) send(c *Conn, out protocol.OutMsg) {
	b, err := json.Marshal(out)
	if err != nil {
		h.log.WithError(err).WithField("t", out.T).Error("marshal outbound message")
		return
	}
	if !c.push(b) {
		h.log.WithField("conn", c.id).Warn("send buffer full, message dropped")
	}
}

func (h *Hub) sendErr(c *Conn, reqID string, err error) {
	h.send(c, protocol.OutMsg{T: protocol.MsgError, ReqID: reqID, P: protocol.ErrPayload{Message: err.Error(), Code: game.CodeOf(err)}})
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll drops every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Warn("websocket upgrade")
			return
		}
		c := &Conn{ws: ws, send: make(chan []byte, sendBuffer), id: uuid.NewString()}
		h.register(c)
		h.log.WithField("conn", c.id).Debug("connection opened")
		go h.writePump(c)
		h.readPump(c, d)
	}
}

func (h *Hub) readPump(c *Conn, d Dispatcher) {
	defer func() {
		d.Disconnect(c.id)
		h.unregister(c)
		_ = c.ws.Close()
		h.log.WithField("conn", c.id).Debug("connection closed")
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).WithField("conn", c.id).Info("websocket read")
			}
			return
		}
		var in protocol.InMsg
		if err := json.Unmarshal(data, &in); err != nil {
			h.sendErr(c, "", game.ErrInvalidPayload)
			continue
		}
		h.dispatch(c, d, in)
	}
}

func (h *Hub) dispatch(c *Conn, d Dispatcher, in protocol.InMsg) {
	req, err := protocol.Decode(in, d.MaxPlayers())
	if err != nil {
		h.reject(c, in, err)
		return
	}
	switch req := req.(type) {
	case protocol.Join:
		res, err := d.Join(c.id, req)
		if err != nil {
			h.reject(c, in, err)
			return
		}
		h.send(c, protocol.OutMsg{T: protocol.MsgAck, ReqID: in.ReqID, P: protocol.Ack{Success: true, RoomCode: res.RoomCode, PlayerID: res.PlayerID}})
	case protocol.Rejoin:
		if err := d.Rejoin(c.id, req); err != nil {
			h.reject(c, in, err)
			return
		}
		h.send(c, protocol.OutMsg{T: protocol.MsgAck, ReqID: in.ReqID, P: protocol.Ack{Success: true, RoomCode: req.RoomCode, PlayerID: req.PlayerID}})
	case protocol.Start:
		err = d.Start(c.id, req)
	case protocol.Play:
		err = d.Play(c.id, req)
	case protocol.PickUp:
		err = d.PickUp(c.id)
	case protocol.Ready:
		err = d.Ready(c.id, req)
	case protocol.DealAck:
		err = d.DealAck(c.id)
	case protocol.Ping:
		h.send(c, protocol.OutMsg{T: protocol.MsgPong, ReqID: in.ReqID})
	case protocol.Leave:
		d.Disconnect(c.id)
		h.send(c, protocol.OutMsg{T: protocol.MsgAck, ReqID: in.ReqID, P: protocol.Ack{Success: true}})
	}
	if err != nil {
		h.reject(c, in, err)
	}
}

// reject answers join and rejoin with a failed ack and everything else with
// an error message.
func (h *Hub) reject(c *Conn, in protocol.InMsg, err error) {
	log := h.log.WithFields(logrus.Fields{"conn": c.id, "t": in.T, "code": game.CodeOf(err)})
	if game.KindOf(err) == 0 {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Debug("request rejected")
	}
	if in.T == protocol.MsgJoin || in.T == protocol.MsgRejoin {
		h.send(c, protocol.OutMsg{T: protocol.MsgAck, ReqID: in.ReqID, P: protocol.Ack{Error: err.Error(), Code: game.CodeOf(err)}})
		return
	}
	h.sendErr(c, in.ReqID, err)
}

func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
