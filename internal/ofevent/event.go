// Package ofevent defines the wire-level event record exchanged with the
// OF backend: a schemaless key/value map carrying exactly one discriminator
// field (type, event, or id) plus free-form payload.
package ofevent

import "encoding/json"

// Synthetic event names posted onto the queue by the lifecycle controller.
const (
	Start     = "START"
	Stop      = "STOP"
	Exit      = "EXIT"
	StartFail = "STARTFAIL"
)

// Channel notification type names.
const (
	ChannelUp    = "CHANNEL_UP"
	ChannelDown  = "CHANNEL_DOWN"
	ChannelAlert = "CHANNEL_ALERT"
)

// Event is an unordered key/value record. A valid Event carries exactly one
// discriminator: "type" (OF message/channel notification), "event"
// (synthetic internal event), or "id" (RPC reply, paired with "result" or
// "error"). Accessors treat a missing field as absence, never as an error;
// the core must not typecheck payloads beyond these discriminator fields.
type Event map[string]any

// Decode parses one newline-delimited JSON frame from the backend into an Event.
func Decode(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode serializes the event as a single JSON frame (no trailing newline).
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(map[string]any(e))
}

func (e Event) str(key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (e Event) num(key string) (float64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// TypeOf returns the "type" discriminator, if present.
func (e Event) TypeOf() (string, bool) { return e.str("type") }

// EventOf returns the "event" discriminator (synthetic event name), if present.
func (e Event) EventOf() (string, bool) { return e.str("event") }

// IsReply reports whether the event carries an "id" field, i.e. it is an
// RPC reply rather than an OF message or synthetic event.
func (e Event) IsReply() bool {
	_, ok := e["id"]
	return ok
}

// Xid returns the transaction id ("id" for replies, "xid" for OF messages).
func (e Event) Xid() (uint32, bool) {
	if n, ok := e.num("id"); ok {
		return uint32(n), true
	}
	if n, ok := e.num("xid"); ok {
		return uint32(n), true
	}
	return 0, false
}

// ConnID returns the "conn_id" field, if present.
func (e Event) ConnID() (uint64, bool) {
	n, ok := e.num("conn_id")
	return uint64(n), ok
}

// Result returns the "result" field of an RPC reply, if present.
func (e Event) Result() (any, bool) {
	v, ok := e["result"]
	return v, ok
}

// Error returns the "error" field of an RPC reply, if present.
func (e Event) Error() (any, bool) {
	v, ok := e["error"]
	return v, ok
}

// More reports whether the reply's result flags contain "MORE" and the
// result type carries the "REPLY." prefix — both are required for a reply
// to be treated as a non-terminal streaming chunk (see design notes).
func (e Event) More() bool {
	result, ok := e.Result()
	if !ok {
		return false
	}
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	typeName, _ := m["type"].(string)
	if len(typeName) < len("REPLY.") || typeName[:len("REPLY.")] != "REPLY." {
		return false
	}
	flags, ok := m["flags"].([]any)
	if !ok {
		return false
	}
	for _, f := range flags {
		if s, ok := f.(string); ok && s == "MORE" {
			return true
		}
	}
	return false
}

// WithXid returns params wrapped as an outgoing frame for method,
// tagged with the given xid. Used by the RPC client surface when building
// request frames.
func WithXid(xid uint32, method string, params any) map[string]any {
	return map[string]any{
		"id":     xid,
		"method": method,
		"params": params,
	}
}
