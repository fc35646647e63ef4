package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
	idleHeartbeat  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ControlHandler lets a connected Client act on watch/unwatch requests and
// report the current state for the init handshake. Implemented by
// internal/api.Server.
type ControlHandler interface {
	Watch(venue, symbol string) error
	Unwatch(venue, symbol string)
	Watching() []string
	ContractCount() int
}

// wireFrame is the JSON shape actually written to the socket: {type, key,
// data, timestamp}. Envelope stays typed (Stats/Alert) for Go-side sinks;
// this is the re-encoding the wire contract specifies.
type wireFrame struct {
	Type      EventKind `json:"type"`
	Key       string    `json:"key,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

type initFrame struct {
	Type          string   `json:"type"`
	Watching      []string `json:"watching"`
	ContractCount int      `json:"contract_count"`
}

type heartbeatFrame struct {
	Type string `json:"type"`
}

type clientAction struct {
	Action string `json:"action"`
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// Client is one connected WebSocket subscriber. It owns a buffered outbound
// channel; Send is non-blocking and reports false (causing the Hub to drop
// the client) when that buffer is full, so one slow reader never stalls
// delivery to everyone else.
type Client struct {
	conn *websocket.Conn
	out  chan Envelope
	ctrl ControlHandler
}

// Upgrade promotes an HTTP request to a WebSocket connection, registers the
// resulting Client with hub, sends the init handshake frame, and starts its
// read/write pumps. It blocks until the connection closes.
func Upgrade(hub *Hub, ctrl ControlHandler, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[broadcast] upgrade failed: %v", err)
		return
	}

	c := &Client{conn: conn, out: make(chan Envelope, sendBuffer), ctrl: ctrl}
	hub.Register(c)
	defer hub.Unregister(c)

	if err := c.sendInit(); err != nil {
		log.Printf("[broadcast] init frame: %v", err)
		return
	}

	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()
	close(done)
}

func (c *Client) sendInit() error {
	watching := []string{}
	var contractCount int
	if c.ctrl != nil {
		watching = c.ctrl.Watching()
		contractCount = c.ctrl.ContractCount()
	}
	data, err := json.Marshal(initFrame{Type: "init", Watching: watching, ContractCount: contractCount})
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Send(env Envelope) bool {
	select {
	case c.out <- env:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleClientMessage(msg)
	}
}

// handleClientMessage dispatches the two inbound shapes the edge accepts:
// the literal text "ping" (kept alive by the read deadline above, no reply
// required) and {action:"watch"|"unwatch", venue, symbol}.
func (c *Client) handleClientMessage(msg []byte) {
	if string(msg) == "ping" {
		return
	}
	if c.ctrl == nil {
		return
	}

	var action clientAction
	if err := json.Unmarshal(msg, &action); err != nil {
		log.Printf("[broadcast] unreadable client message: %v", err)
		return
	}

	switch action.Action {
	case "watch":
		if err := c.ctrl.Watch(action.Venue, action.Symbol); err != nil {
			log.Printf("[broadcast] client watch %s/%s failed: %v", action.Venue, action.Symbol, err)
		}
	case "unwatch":
		c.ctrl.Unwatch(action.Venue, action.Symbol)
	default:
		log.Printf("[broadcast] unknown client action %q", action.Action)
	}
}

func (c *Client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	idleTimer := time.NewTimer(idleHeartbeat)
	defer func() {
		ticker.Stop()
		idleTimer.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case env, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(toWireFrame(env))
			if err != nil {
				log.Printf("[broadcast] marshal envelope: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			resetTimer(idleTimer, idleHeartbeat)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-idleTimer.C:
			data, _ := json.Marshal(heartbeatFrame{Type: "heartbeat"})
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			idleTimer.Reset(idleHeartbeat)
		}
	}
}

func toWireFrame(env Envelope) wireFrame {
	frame := wireFrame{Type: env.Type, Key: env.Key, Timestamp: env.Timestamp}
	switch env.Type {
	case EventStats:
		frame.Data = env.Stats
	case EventAlert:
		frame.Data = env.Alert
	}
	return frame
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
