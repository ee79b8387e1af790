// Package router implements the Frame Router of §4.7: it dispatches
// frames arriving from stdin to the queue or the sender depending on
// readiness, and dispatches frames arriving from the upstream SSE stream
// to stdout, synthesizing notifications/cancelled derivatives for server
// error responses.
package router

import (
	"context"
	"encoding/json"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/internal/bridge/classify"
	"github.com/viant/jsonrpc/internal/bridge/frame"
	"github.com/viant/jsonrpc/internal/bridge/frameio"
	"github.com/viant/jsonrpc/internal/bridge/supervisor"
)

// Router wires stdin lines and upstream SSE messages to the supervisor,
// queue and stdout writer.
type Router struct {
	sup    *supervisor.Supervisor
	out    *frameio.Writer
	debug  *frameio.Debugger
	ctx    context.Context
}

// New creates a Router bound to sup. ctx is used as the base context for
// direct (non-queued) sends.
func New(ctx context.Context, sup *supervisor.Supervisor, out *frameio.Writer, debug *frameio.Debugger) *Router {
	return &Router{sup: sup, out: out, debug: debug, ctx: ctx}
}

// HandleStdinLine implements the outbound (client -> server) half of §4.7.
func (r *Router) HandleStdinLine(line []byte) {
	f, err := frame.Parse(line)
	if err != nil {
		r.debug.Debugf("failed to parse stdin line: %v", err)
		raw, buildErr := frame.BuildError(nil, false, classify.Code(classify.Parse), err.Error())
		if buildErr == nil {
			r.out.Emit(raw)
		}
		return
	}

	r.sup.RequestReconnectIfRecovering()

	switch f.Kind {
	case frame.KindNotification:
		r.handleOutboundNotification(f)
	default:
		r.dispatchRequest(f)
	}
}

// dispatchRequest implements "if it parses and has id" (§4.7): queued
// while not READY, sent directly otherwise, with failed direct sends
// requeued at the front for replay after the reconnect they trigger.
func (r *Router) dispatchRequest(f *frame.Frame) {
	if !r.sup.IsReady() {
		r.sup.Queue().Push(f)
		return
	}
	if err := r.sup.Send(r.ctx, f); err != nil {
		// The supervisor has already classified the failure, requeued f
		// if appropriate, and driven any state transition.
		r.debug.Debugf("send failed for id %v: %v", f.Id, err)
	}
}

// handleOutboundNotification implements the lacks-id branch of §4.7:
// cancellation bookkeeping always runs; forwarding happens only when
// READY, otherwise the notification is dropped per invariant I2/P5.
func (r *Router) handleOutboundNotification(f *frame.Frame) {
	if f.Method == "notifications/cancelled" {
		r.sup.NotifyCancelled(f)
	}
	if !r.sup.IsReady() {
		return
	}
	if err := r.sup.Send(r.ctx, f); err != nil {
		r.debug.Debugf("notification send failed: %v", err)
	}
}

// HandleUpstreamFrame implements the inbound (server -> client) half of
// §4.7: every frame is forwarded; error responses additionally get a
// synthesized notifications/cancelled derivative, and SessionLost errors
// drive the supervisor out of READY.
func (r *Router) HandleUpstreamFrame(raw []byte) {
	var probe struct {
		Id    *json.RawMessage    `json:"id"`
		Error *jsonrpc.InnerError `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		r.debug.Debugf("dropping malformed upstream frame: %v", err)
		return
	}

	r.out.Emit(raw)

	if probe.Error == nil {
		return
	}
	var id interface{}
	if probe.Id != nil {
		_ = json.Unmarshal(*probe.Id, &id)
	}
	r.out.Emit(frame.BuildCancelled(id, "Error: "+probe.Error.Message))

	if classify.Message(probe.Error.Message) == classify.SessionLost {
		r.sup.LeaveReadyOnUpstreamError(probe.Error.Message)
	}
}
