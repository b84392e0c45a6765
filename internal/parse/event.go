// Package parse turns cleaned agent terminal output into structured events.
package parse

// EventType identifies the semantic class of an output event.
type EventType string

const (
	EventToolUse           EventType = "tool_use"
	EventMessage           EventType = "message"
	EventToolResult        EventType = "tool_result"
	EventStatus            EventType = "status"
	EventPermissionRequest EventType = "permission_request"
	EventCostUpdate        EventType = "cost_update"
	EventError             EventType = "error"
)

// Event is the tagged union emitted by the parser. The JSON shape
// {type, ...variant fields} is a wire contract: consumers such as terminal
// dashboards decode it field-for-field.
type Event struct {
	Type EventType `json:"type"`

	// tool_use
	Tool   string `json:"tool,omitempty"`
	Detail string `json:"detail,omitempty"`

	// message / tool_result / error
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// status
	State string `json:"state,omitempty"`

	// permission_request
	Action    string `json:"action,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// cost_update
	Tokens  int64   `json:"tokens,omitempty"`
	CostUSD float64 `json:"cost_usd,omitempty"`
}
