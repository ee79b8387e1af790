// Package classify maps transport and protocol errors onto the taxonomy
// of §4.5 so the supervisor can decide whether to reconnect, rotate the
// session id, or simply surface a JSON-RPC error.
package classify

import (
	"net/http"
	"strings"

	"github.com/viant/jsonrpc"
)

// Kind is the error taxonomy of §4.5/§7.
type Kind int

const (
	Internal Kind = iota
	SessionLost
	ConnectionLost
	Timeout
	Parse
	InvalidRequest
	Transient
)

func (k Kind) String() string {
	switch k {
	case SessionLost:
		return "SessionLost"
	case ConnectionLost:
		return "ConnectionLost"
	case Timeout:
		return "Timeout"
	case Parse:
		return "Parse"
	case InvalidRequest:
		return "InvalidRequest"
	case Transient:
		return "Transient"
	default:
		return "Internal"
	}
}

// RequestTimeout and ConnectionClosed are JSON-RPC error codes the core
// spec names but that are not part of the standard -32xxx reserved range.
const (
	RequestTimeout   = -32001
	ConnectionClosed = -32000
)

var sessionLostSubstrings = []string{
	"could not find session",
	"session expired",
	"invalid session",
	"received request before initialization was complete",
}

var connectionLostSubstrings = []string{
	"connection lost",
	"fetch failed",
	"network error",
	"econnrefused",
	"not connected",
}

var timeoutSubstrings = []string{
	"timed out",
	"timeout",
}

// Message classifies a free-form error/status message (e.g. from the SSE
// client or an HTTP response body) into a Kind.
func Message(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, s := range sessionLostSubstrings {
		if strings.Contains(lower, s) {
			return SessionLost
		}
	}
	for _, s := range connectionLostSubstrings {
		if strings.Contains(lower, s) {
			return ConnectionLost
		}
	}
	if strings.Contains(lower, "invalid request") {
		return InvalidRequest
	}
	for _, s := range timeoutSubstrings {
		if strings.Contains(lower, s) {
			return Timeout
		}
	}
	return Transient
}

// HTTPStatus classifies an HTTP response status code from the POST sender
// or SSE client.
func HTTPStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return SessionLost
	case status >= 500:
		return ConnectionLost
	case status >= 400:
		return InvalidRequest
	default:
		return Transient
	}
}

// Code maps a Kind to the JSON-RPC error code emitted in synthesized
// error frames per §4.5/§7.
func Code(k Kind) int {
	switch k {
	case SessionLost:
		return jsonrpc.MethodNotFound
	case Timeout:
		return RequestTimeout
	case ConnectionLost:
		return ConnectionClosed
	case Parse:
		return jsonrpc.ParseError
	case InvalidRequest:
		return jsonrpc.InvalidRequest
	default:
		return jsonrpc.InternalError
	}
}

// Reconnects reports whether a Kind should drive the supervisor into a
// reconnect cycle on its own (as opposed to being surfaced as a one-off
// error response with no state transition).
func (k Kind) Reconnects() bool {
	switch k {
	case SessionLost, ConnectionLost, Transient:
		return true
	default:
		return false
	}
}
