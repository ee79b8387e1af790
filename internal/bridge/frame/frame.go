// Package frame parses and classifies the JSON-RPC lines flowing across
// the bridge's stdin/stdout boundary. It never re-encodes a frame it did
// not synthesize itself - the raw bytes a client sent are the bytes that
// must reach the upstream POST endpoint byte-for-byte.
package frame

import (
	"encoding/json"
	"strings"
)

// Kind classifies a frame the bridge read from the local client.
type Kind int

const (
	// KindRequest carries both id and method.
	KindRequest Kind = iota
	// KindNotification carries method but no id.
	KindNotification
	// KindResponse carries id and either result or error, no method.
	KindResponse
)

// Frame is a parsed client->server (or replayed) line. Raw is preserved
// verbatim as received so forwarding never re-serializes a byte
// differently than the caller wrote it.
type Frame struct {
	Raw    json.RawMessage
	Kind   Kind
	Id     interface{}
	HasId  bool
	Method string
}

type probe struct {
	Id     *json.RawMessage `json:"id"`
	Method string           `json:"method"`
}

// Parse decodes line into a Frame. It returns an error if line is not a
// JSON object, mirroring the Parse error condition of the classifier.
func Parse(line []byte) (*Frame, error) {
	var p probe
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, err
	}
	f := &Frame{Raw: append(json.RawMessage(nil), line...)}
	if p.Id != nil {
		f.HasId = true
		var id interface{}
		_ = json.Unmarshal(*p.Id, &id)
		f.Id = id
	}
	f.Method = p.Method
	switch {
	case f.HasId && f.Method != "":
		f.Kind = KindRequest
	case !f.HasId:
		f.Kind = KindNotification
	default:
		f.Kind = KindResponse
	}
	return f, nil
}

// IsInitialize reports whether f is the MCP handshake request (id 0,
// method "initialize").
func (f *Frame) IsInitialize() bool {
	if f == nil || f.Method != "initialize" {
		return false
	}
	return isZero(f.Id)
}

func isZero(id interface{}) bool {
	switch v := id.(type) {
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	case json.Number:
		return v.String() == "0"
	}
	return false
}

// IdEquals reports whether f's id equals other, tolerating the numeric
// type differences JSON unmarshaling introduces (float64 vs int); a string
// id never equals a numeric one.
func (f *Frame) IdEquals(other interface{}) bool {
	if f == nil || !f.HasId {
		return false
	}
	return IdsEqual(f.Id, other)
}

// IdsEqual compares two decoded JSON-RPC ids for equality. Numeric ids
// compare by value across float64/int/int64/json.Number; strings compare
// only with strings.
func IdsEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// CancelledReason extracts params.reason from a notifications/cancelled
// frame, if present.
func CancelledReason(f *Frame) string {
	if f == nil || f.Method != "notifications/cancelled" {
		return ""
	}
	var env struct {
		Params struct {
			Reason string `json:"reason"`
		} `json:"params"`
	}
	if err := json.Unmarshal(f.Raw, &env); err != nil {
		return ""
	}
	return env.Params.Reason
}

// CancelledRequestId extracts params.requestId from a
// notifications/cancelled frame, if present. The MCP canonical field is
// requestId; some servers emit "id" instead, so both are tried.
func CancelledRequestId(f *Frame) (interface{}, bool) {
	if f == nil || f.Method != "notifications/cancelled" {
		return nil, false
	}
	var env struct {
		Params struct {
			RequestId interface{} `json:"requestId"`
			Id        interface{} `json:"id"`
		} `json:"params"`
	}
	if err := json.Unmarshal(f.Raw, &env); err != nil {
		return nil, false
	}
	if env.Params.RequestId != nil {
		return env.Params.RequestId, true
	}
	if env.Params.Id != nil {
		return env.Params.Id, true
	}
	return nil, false
}

// IsTimeoutCancellation reports whether f is a notifications/cancelled
// whose reason contains the timeout marker text used by MCP clients.
func IsTimeoutCancellation(f *Frame) bool {
	return strings.Contains(CancelledReason(f), "Request timed out")
}
