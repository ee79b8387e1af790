package frame

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/jsonrpc"
)

// errorData mirrors jsonrpc.InnerError's error object shape but without its
// `omitempty` tag on Data: encoding/json treats a non-nil, zero-length map
// as empty under omitempty and drops the member entirely, which would
// contradict §7's mandated "data":<object|{}> and this package's own goal
// of always emitting the member.
type errorData struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// errorFrame mirrors the JSON-RPC 2.0 error object shape of §7, with Data
// always present (as {} when there is nothing to report) since some
// strict clients reject error objects missing the member.
type errorFrame struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      interface{} `json:"id"`
	Error   errorData   `json:"error"`
}

// BuildError synthesizes the JSON-RPC error frame of §7. When hasId is
// false the id is synthesized as "error-<unixMs>" rather than emitted as
// null, per the core spec's resolution of its own open question.
func BuildError(id interface{}, hasId bool, code int, message string) ([]byte, error) {
	if !hasId {
		id = fmt.Sprintf("error-%d", time.Now().UnixMilli())
	}
	ef := errorFrame{
		Jsonrpc: jsonrpc.Version,
		Id:      id,
		Error: errorData{
			Code:    code,
			Message: message,
			Data:    map[string]interface{}{},
		},
	}
	return json.Marshal(ef)
}

// BuildCancelled synthesizes a notifications/cancelled derivative for a
// server error response, carrying the original request id under the
// canonical "requestId" field (§9's resolution of the id/requestId
// naming ambiguity).
func BuildCancelled(requestId interface{}, reason string) []byte {
	type params struct {
		RequestId interface{} `json:"requestId"`
		Reason    string      `json:"reason"`
	}
	type notification struct {
		Jsonrpc string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  params `json:"params"`
	}
	n := notification{
		Jsonrpc: jsonrpc.Version,
		Method:  "notifications/cancelled",
		Params:  params{RequestId: requestId, Reason: reason},
	}
	data, _ := json.Marshal(n)
	return data
}

// ShutdownNotification builds the best-effort shutdown notice of §6, sent
// on SIGINT/SIGTERM before the bridge tears down its connection.
func ShutdownNotification(at time.Time) []byte {
	return BuildCancelled(fmt.Sprintf("shutdown-%d", at.UnixMilli()), "Client shutting down")
}
