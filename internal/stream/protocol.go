package stream

import (
	"encoding/json"

	"github.com/panebridge/panebridge/internal/parse"
)

// Client-to-server message types.
const (
	MsgAuth               = "auth"
	MsgChat               = "chat"
	MsgTyping             = "typing"
	MsgSync               = "sync"
	MsgAck                = "ack"
	MsgPing               = "ping"
	MsgSessionConnect     = "session_connect"
	MsgSessionDisconnect  = "session_disconnect"
	MsgSessionInput       = "session_input"
	MsgSessionInterrupt   = "session_interrupt"
	MsgPermissionResponse = "permission_response"
)

// Server-to-client message types.
const (
	MsgAuthChallenge       = "auth_challenge"
	MsgConnected           = "connected"
	MsgDelivered           = "delivered"
	MsgError               = "error"
	MsgSyncResponse        = "sync_response"
	MsgSessionConnected    = "session_connected"
	MsgSessionOutput       = "session_output"
	MsgSessionRaw          = "session_raw"
	MsgSessionDisconnected = "session_disconnected"
	MsgPong                = "pong"
)

// WebSocket close codes distinguishing auth failures.
const (
	CloseInvalidToken = 4001
	CloseAuthTimeout  = 4002
)

// Stable error codes carried in error replies.
const (
	ErrCodeAuthRequired   = "auth_required"
	ErrCodeInvalidToken   = "invalid_token"
	ErrCodeParse          = "parse_error"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnknownSession = "unknown_session"
	ErrCodeInputFailed    = "input_failed"
	ErrCodeSessionOp      = "session_op_failed"
)

// Message is the JSON frame for both directions. Fields are populated
// per message type; unused fields are omitted on the wire.
type Message struct {
	Type      string `json:"type"`
	Seq       int64  `json:"seq,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"ts,omitempty"`

	// auth
	Token string `json:"token,omitempty"`

	// chat / typing
	Text string `json:"text,omitempty"`
	From string `json:"from,omitempty"`

	// sync / ack
	LastSeq  int64             `json:"last_seq,omitempty"`
	Messages []json.RawMessage `json:"messages,omitempty"`

	// session scope
	SessionID string       `json:"session_id,omitempty"`
	Replay    bool         `json:"replay,omitempty"`
	Lines     []string     `json:"lines,omitempty"`
	Event     *parse.Event `json:"event,omitempty"`
	Queued    bool         `json:"queued,omitempty"`
	Response  string       `json:"response,omitempty"`

	// connected / error
	ClientID string `json:"client_id,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}
