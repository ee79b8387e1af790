package router

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/viant/jsonrpc/internal/bridge/frameio"
	"github.com/viant/jsonrpc/internal/bridge/supervisor"
)

// newTestRouter builds a Router around a Supervisor that never connects
// (Options.URL is unreachable), so every test observes NOT-READY behavior
// deterministically without a live upstream.
func newTestRouter() (*Router, *bytes.Buffer) {
	var out bytes.Buffer
	writer := frameio.NewWriter(&out)
	debug := frameio.NewDebugger(&bytes.Buffer{}, false)
	sup := supervisor.New(supervisor.Options{
		URL:         "http://127.0.0.1:1/sse",
		MaxAttempts: 1,
	}, debug, writer.Emit, nil)
	r := New(context.Background(), sup, writer, debug)
	return r, &out
}

func TestHandleStdinLineMalformedEmitsParseError(t *testing.T) {
	r, out := newTestRouter()
	r.HandleStdinLine([]byte("not json"))

	var decoded struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &decoded); err != nil {
		t.Fatalf("expected a decodable error frame, got %q: %v", out.String(), err)
	}
	if decoded.Error.Code == 0 {
		t.Fatal("expected a non-zero JSON-RPC parse error code")
	}
}

func TestDispatchRequestQueuesWhileNotReady(t *testing.T) {
	r, out := newTestRouter()
	r.HandleStdinLine([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`))

	if r.sup.Queue().Len() != 1 {
		t.Fatalf("expected request queued while not ready, got len %d", r.sup.Queue().Len())
	}
	if out.Len() != 0 {
		t.Fatalf("expected no immediate output while queuing, got %q", out.String())
	}
}

func TestHandleOutboundNotificationDroppedWhileNotReady(t *testing.T) {
	r, out := newTestRouter()
	r.HandleStdinLine([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`))

	if r.sup.Queue().Len() != 0 {
		t.Fatalf("expected notification to never be queued (I2), got len %d", r.sup.Queue().Len())
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output for a dropped notification, got %q", out.String())
	}
}

func TestCancelledNotificationRemovesQueuedRequest(t *testing.T) {
	r, _ := newTestRouter()
	r.HandleStdinLine([]byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{}}`))
	if r.sup.Queue().Len() != 1 {
		t.Fatalf("expected the request queued first, got len %d", r.sup.Queue().Len())
	}

	r.HandleStdinLine([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":5,"reason":"client cancelled"}}`))
	if r.sup.Queue().Len() != 0 {
		t.Fatalf("expected cancellation to remove the queued request, got len %d", r.sup.Queue().Len())
	}
}

func TestHandleUpstreamFrameForwardsAndSynthesizesCancelled(t *testing.T) {
	r, out := newTestRouter()
	upstream := `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Could not find session for id abc"}}`
	r.HandleUpstreamFrame([]byte(upstream))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected the forwarded error plus one synthesized cancellation, got %d lines: %q", len(lines), out.String())
	}

	var forwarded struct {
		Id int `json:"id"`
	}
	if err := json.Unmarshal(lines[0], &forwarded); err != nil || forwarded.Id != 3 {
		t.Fatalf("expected the original frame forwarded first, got %q", lines[0])
	}

	var cancelled struct {
		Method string `json:"method"`
		Params struct {
			RequestId int `json:"requestId"`
		} `json:"params"`
	}
	if err := json.Unmarshal(lines[1], &cancelled); err != nil {
		t.Fatalf("failed to decode synthesized notification: %v", err)
	}
	if cancelled.Method != "notifications/cancelled" || cancelled.Params.RequestId != 3 {
		t.Fatalf("unexpected synthesized notification: %q", lines[1])
	}
}

func TestHandleUpstreamFrameWithoutErrorForwardsOnly(t *testing.T) {
	r, out := newTestRouter()
	r.HandleUpstreamFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one forwarded line, got %d: %q", len(lines), out.String())
	}
}

func TestHandleUpstreamFrameMalformedIsDropped(t *testing.T) {
	r, out := newTestRouter()
	r.HandleUpstreamFrame([]byte("not json"))
	if out.Len() != 0 {
		t.Fatalf("expected malformed upstream frame to be silently dropped, got %q", out.String())
	}
}
