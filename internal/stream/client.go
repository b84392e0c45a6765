package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/panebridge/panebridge/internal/bridge"
	"github.com/panebridge/panebridge/internal/parse"
)

// Client is one streaming connection. It moves from unauthenticated to
// authenticated, or is closed with a distinguishing code on auth
// timeout or invalid token.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte

	isAuthed  atomic.Bool
	authTimer *time.Timer

	mu         sync.Mutex
	sessions   map[string]int // session id -> bridge listener token
	lastAck    int64
	sendClosed bool
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		id:       newClientID(),
		conn:     conn,
		server:   s,
		send:     make(chan []byte, 256),
		sessions: make(map[string]int),
	}
}

func (c *Client) authed() bool { return c.isAuthed.Load() }

// accept marks the client authenticated and confirms the connection.
func (c *Client) accept() {
	c.stopAuthTimer()
	c.isAuthed.Store(true)
	c.sendMsg(Message{Type: MsgConnected, ClientID: c.id, Timestamp: wireTime()})
}

func (c *Client) startAuthTimer(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authTimer = time.AfterFunc(timeout, func() {
		if !c.authed() {
			c.closeWith(CloseAuthTimeout, "authentication timeout")
		}
	})
}

func (c *Client) stopAuthTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
}

// closeWith sends a close frame with a distinguishing code and tears
// the connection down.
func (c *Client) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	// WriteControl is safe to call concurrently with the write pump.
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	c.conn.Close()
}

// sendRaw queues a pre-marshaled frame. A client that cannot keep up
// has its frame dropped rather than blocking the broadcast path.
// Bridge listeners can fire after the client is reaped, so the send is
// guarded against the closed channel.
func (c *Client) sendRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("stream: dropping frame for slow client id=%s", c.id)
	}
}

// closeSend shuts the outbound queue. Serialized with sendRaw through
// c.mu; the channel send there never blocks, so holding the lock across
// both is safe.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) sendMsg(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("stream: marshal %s: %v", msg.Type, err)
		return
	}
	c.sendRaw(data)
}

func (c *Client) sendError(requestID, code, text string) {
	c.sendMsg(Message{
		Type:      MsgError,
		RequestID: requestID,
		Code:      code,
		Message:   text,
		Timestamp: wireTime(),
	})
}

// releaseSessions drops every session subscription this client holds.
func (c *Client) releaseSessions() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]int)
	c.mu.Unlock()

	for sid, token := range sessions {
		c.server.bridge.Unsubscribe(sid, token)
		c.server.bridge.DisconnectClient(sid, c.id)
	}
}

// readPump reads frames until the transport dies, then reaps the
// client.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	pongWait := c.server.config().Stream.PingInterval() * 2
	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("stream: read error id=%s: %v", c.id, err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump owns all writes to the connection, including the keepalive
// ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.config().Stream.PingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame. Protocol errors get a
// structured reply with a stable code; the connection stays open for
// everything except auth failure.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeParse, "invalid JSON frame")
		return
	}

	if !c.authed() && msg.Type != MsgAuth && msg.Type != MsgPing {
		c.sendError(msg.RequestID, ErrCodeAuthRequired, "authenticate first")
		return
	}

	switch msg.Type {
	case MsgAuth:
		c.handleAuth(msg)
	case MsgChat:
		c.handleChat(msg)
	case MsgTyping:
		c.handleTyping(msg)
	case MsgSync:
		c.handleSync(msg)
	case MsgAck:
		c.mu.Lock()
		if msg.LastSeq > c.lastAck {
			c.lastAck = msg.LastSeq
		}
		c.mu.Unlock()
	case MsgPing:
		c.sendMsg(Message{Type: MsgPong, RequestID: msg.RequestID, Timestamp: wireTime()})
	case MsgSessionConnect:
		c.handleSessionConnect(msg)
	case MsgSessionDisconnect:
		c.handleSessionDisconnect(msg)
	case MsgSessionInput:
		c.handleSessionInput(msg)
	case MsgSessionInterrupt:
		c.handleSessionInterrupt(msg)
	case MsgPermissionResponse:
		c.handlePermissionResponse(msg)
	default:
		c.sendError(msg.RequestID, ErrCodeUnknownType, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *Client) handleAuth(msg Message) {
	if c.authed() {
		return
	}
	token := c.server.config().Server.AuthToken
	if token != "" && msg.Token != token {
		c.sendError(msg.RequestID, ErrCodeInvalidToken, "invalid token")
		c.closeWith(CloseInvalidToken, "invalid token")
		return
	}
	c.accept()
}

func (c *Client) handleChat(msg Message) {
	chat, _ := c.server.limits()
	if !chat.Allow(c.id) {
		c.sendError(msg.RequestID, ErrCodeRateLimited, "chat rate limit exceeded")
		return
	}
	seq := c.server.broadcast(Message{
		Type:      MsgChat,
		Text:      msg.Text,
		From:      c.id,
		Timestamp: wireTime(),
	})
	c.sendMsg(Message{Type: MsgDelivered, RequestID: msg.RequestID, Seq: seq})
}

func (c *Client) handleTyping(msg Message) {
	// Over-limit typing indicators are dropped silently.
	_, typing := c.server.limits()
	if !typing.Allow(c.id) {
		return
	}
	c.server.broadcast(Message{
		Type:      MsgTyping,
		From:      c.id,
		Timestamp: wireTime(),
	})
}

// handleSync is the sole gap-recovery mechanism: the client reports
// its last-seen sequence number and gets everything newer, ascending.
func (c *Client) handleSync(msg Message) {
	entries := c.server.replay.Since(msg.LastSeq)
	frames := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		frames[i] = json.RawMessage(e.Data)
	}
	c.sendMsg(Message{
		Type:      MsgSyncResponse,
		RequestID: msg.RequestID,
		Messages:  frames,
		Timestamp: wireTime(),
	})
}

func (c *Client) handleSessionConnect(msg Message) {
	replay, err := c.server.bridge.ConnectClient(msg.SessionID, c.id)
	if err != nil {
		c.sendError(msg.RequestID, ErrCodeUnknownSession, err.Error())
		return
	}

	token := c.server.bridge.Subscribe(msg.SessionID, bridge.OutputListener{
		OnEvent: func(sid string, ev parse.Event) {
			e := ev
			c.sendMsg(Message{Type: MsgSessionOutput, SessionID: sid, Event: &e})
		},
		OnRaw: func(sid string, lines []string) {
			c.sendMsg(Message{Type: MsgSessionRaw, SessionID: sid, Lines: lines})
		},
	})

	c.mu.Lock()
	if old, dup := c.sessions[msg.SessionID]; dup {
		c.server.bridge.Unsubscribe(msg.SessionID, old)
	}
	c.sessions[msg.SessionID] = token
	c.mu.Unlock()

	reply := Message{
		Type:      MsgSessionConnected,
		RequestID: msg.RequestID,
		SessionID: msg.SessionID,
		Timestamp: wireTime(),
	}
	if msg.Replay {
		reply.Lines = replay
	}
	c.sendMsg(reply)
}

func (c *Client) handleSessionDisconnect(msg Message) {
	c.mu.Lock()
	token, ok := c.sessions[msg.SessionID]
	delete(c.sessions, msg.SessionID)
	c.mu.Unlock()

	if ok {
		c.server.bridge.Unsubscribe(msg.SessionID, token)
		c.server.bridge.DisconnectClient(msg.SessionID, c.id)
	}
	c.sendMsg(Message{
		Type:      MsgSessionDisconnected,
		RequestID: msg.RequestID,
		SessionID: msg.SessionID,
		Timestamp: wireTime(),
	})
}

func (c *Client) handleSessionInput(msg Message) {
	queued, err := c.server.bridge.SendInput(msg.SessionID, msg.Text)
	if err != nil {
		c.sendError(msg.RequestID, ErrCodeInputFailed, err.Error())
		return
	}
	c.sendMsg(Message{Type: MsgDelivered, RequestID: msg.RequestID, Queued: queued})
}

func (c *Client) handleSessionInterrupt(msg Message) {
	if err := c.server.bridge.SendInterrupt(msg.SessionID); err != nil {
		c.sendError(msg.RequestID, ErrCodeSessionOp, err.Error())
		return
	}
	c.sendMsg(Message{Type: MsgDelivered, RequestID: msg.RequestID})
}

func (c *Client) handlePermissionResponse(msg Message) {
	if err := c.server.bridge.SendPermissionResponse(msg.SessionID, msg.RequestID, msg.Response); err != nil {
		c.sendError(msg.RequestID, ErrCodeSessionOp, err.Error())
		return
	}
	c.sendMsg(Message{Type: MsgDelivered, RequestID: msg.RequestID})
}
