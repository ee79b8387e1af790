// Package supervisor implements the Session/Reconnect Supervisor of §4.6 -
// the state machine that owns the SSE subscription and POST sender, drives
// reconnect scheduling and session-id rotation, and replays the handshake
// after every reconnect.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/internal/bridge/classify"
	"github.com/viant/jsonrpc/internal/bridge/frame"
	"github.com/viant/jsonrpc/internal/bridge/queue"
	"github.com/viant/jsonrpc/internal/bridge/session"
	"github.com/viant/jsonrpc/transport/client/http/sse"
)

// ConsecutiveTimeoutThreshold is the number of consecutive
// notifications/cancelled("Request timed out") that escalate to a full
// reconnect (§4.5 Timeout row, P7).
const ConsecutiveTimeoutThreshold = 3

// EmitFunc writes a synthesized or forwarded JSON-RPC frame to stdout.
type EmitFunc func(raw []byte)

// UpstreamFrameFunc is invoked for every frame the SSE client relays, so
// the frame router (owned by the caller) can apply §4.7's inbound policy.
type UpstreamFrameFunc func(raw []byte)

// Options configures a Supervisor's tunables (mirrors config.Config,
// decoupled so the package has no import-cycle on config).
type Options struct {
	URL              string
	BaseDelay        time.Duration
	DelayCap         time.Duration
	MaxAttempts      int
	RecoveryInterval time.Duration
	AuthToken        string
	HTTPClient       *http.Client

	// WatchdogInterval, when non-zero, enables the stale-connection
	// watchdog of SPEC_FULL.md §C: if no SSE activity (the "endpoint"
	// event or any message) arrives within this window while READY, the
	// connection is treated as dead and torn down for reconnect. Zero
	// disables the watchdog, matching the core spec's state machine,
	// which does not require one.
	WatchdogInterval time.Duration
}

// Supervisor is the state machine of §4.6. All field access is guarded by
// mux; callbacks from the SSE client and timers funnel through methods
// that take the lock, satisfying §5's "single task owns supervisor state"
// requirement even though the SSE client and sender run on their own
// goroutines.
type Supervisor struct {
	opts   Options
	logger jsonrpc.Logger
	emit   EmitFunc
	onFrame UpstreamFrameFunc

	queue   *queue.Queue
	session *session.Session

	mux                    sync.Mutex
	state                  State
	reconnectAttempts      int
	consecutiveTimeouts    int
	lastReconnectAttemptAt time.Time
	lastActivityAt         time.Time
	gen                    uint64
	reconnectTimer         *time.Timer

	sseClient *sse.Client
	sender    *sse.Transport
	connCancel context.CancelFunc
	connCtx    context.Context

	closed chan struct{}
}

// New creates a Supervisor. emit writes frames to stdout; onFrame is
// called for every upstream SSE message event, before the supervisor
// applies its own readiness bookkeeping, so the caller's router sees every
// frame exactly once per arrival.
func New(opts Options, logger jsonrpc.Logger, emit EmitFunc, onFrame UpstreamFrameFunc) *Supervisor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Supervisor{
		opts:    opts,
		logger:  logger,
		emit:    emit,
		onFrame: onFrame,
		queue:   queue.New(),
		session: session.New(),
		state:   Init,
		closed:  make(chan struct{}),
	}
}

// Queue exposes the pending-frame FIFO so the router can push/drain it
// according to readiness, per the split of responsibility between
// components 4, 6 and 7.
func (s *Supervisor) Queue() *queue.Queue { return s.queue }

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state
}

// IsReady reports whether frames may be sent immediately.
func (s *Supervisor) IsReady() bool {
	return s.State() == Ready
}

func (s *Supervisor) authHeaders() http.Header {
	if s.opts.AuthToken == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.opts.AuthToken)
	return h
}

// Start begins the first connection attempt (INIT -> CONNECTING).
func (s *Supervisor) Start(ctx context.Context) {
	s.mux.Lock()
	s.state = Connecting
	s.mux.Unlock()
	go s.connect(ctx)
}

// connect opens a new SSE subscription and POST sender for the current
// session id. It runs on its own goroutine so Start/scheduleReconnect
// never block the caller.
func (s *Supervisor) connect(parent context.Context) {
	s.mux.Lock()
	s.gen++
	myGen := s.gen
	connCtx, cancel := context.WithCancel(parent)
	s.connCancel = cancel
	s.connCtx = connCtx
	s.mux.Unlock()

	streamURL, err := session.StreamURL(s.opts.URL, s.session.ID())
	if err != nil {
		s.onConnectFailed(myGen, err)
		return
	}

	sender := sse.NewTransport(s.opts.HTTPClient, s.opts.URL, s.authHeaders())
	client := sse.New(streamURL,
		sse.WithClient(s.opts.HTTPClient),
		sse.WithHeaders(s.authHeaders()),
	)
	client.OnOpen = func(endpoint string) {
		sender.SetEndpoint(endpoint)
		s.session.SetEndpoint(endpoint)
		// OnOpen runs inside client.Start, before the assignment below;
		// install the sender now so markReady drains through it.
		s.mux.Lock()
		if s.gen == myGen {
			s.sender = sender
		}
		s.mux.Unlock()
		s.markReady(myGen)
	}
	client.OnMessage = func(data []byte) {
		s.handleUpstreamMessage(myGen, data)
	}
	client.OnError = func(err error) {
		s.handleConnectionDrop(myGen, err)
	}
	client.OnClose = func() {
		s.handleConnectionDrop(myGen, fmt.Errorf("SSE connection closed"))
	}

	if err := client.Start(connCtx); err != nil {
		s.onConnectFailed(myGen, err)
		return
	}

	s.mux.Lock()
	if s.gen != myGen {
		// superseded while connecting; tear the new one back down.
		s.mux.Unlock()
		client.Stop()
		return
	}
	s.sseClient = client
	s.sender = sender
	s.mux.Unlock()

	s.touchActivity()
	if s.opts.WatchdogInterval > 0 {
		go s.watchdog(connCtx, myGen)
	}
}

// touchActivity records that SSE activity (the endpoint handshake or a
// relayed message) was just observed, for the stale-connection watchdog.
func (s *Supervisor) touchActivity() {
	s.mux.Lock()
	s.lastActivityAt = time.Now()
	s.mux.Unlock()
}

// watchdog implements the optional stale-connection detector of
// SPEC_FULL.md §C: if WatchdogInterval elapses with no SSE activity while
// this generation is still READY, the connection is treated as dead.
func (s *Supervisor) watchdog(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.opts.WatchdogInterval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.staleGen(gen) {
				return
			}
			s.mux.Lock()
			idle := time.Since(s.lastActivityAt)
			ready := s.state == Ready
			s.mux.Unlock()
			if ready && idle >= s.opts.WatchdogInterval {
				s.handleConnectionDrop(gen, fmt.Errorf("no SSE activity for %s, connection presumed dead", idle))
				return
			}
		}
	}
}

func (s *Supervisor) staleGen(gen uint64) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return gen != s.gen
}

// onConnectFailed handles a failed connect() attempt (CONNECTING -> BACKOFF
// or CONNECTING -> RECOVERY once MaxAttempts is exhausted).
func (s *Supervisor) onConnectFailed(gen uint64, cause error) {
	if s.staleGen(gen) {
		return
	}
	s.mux.Lock()
	if s.state == Closing {
		s.mux.Unlock()
		return
	}
	s.reconnectAttempts++
	attempts := s.reconnectAttempts
	s.lastReconnectAttemptAt = time.Now()
	if attempts >= s.opts.MaxAttempts {
		s.state = Recovery
		s.mux.Unlock()
		s.emitAdvisory(classify.ConnectionLost, fmt.Sprintf("Failed to reconnect after %d attempts: %v", s.opts.MaxAttempts, cause))
		return
	}
	s.state = Backoff
	s.mux.Unlock()
	s.scheduleReconnect(gen, attempts)
}

// scheduleReconnect arms the single pending reconnect timer (invariant I4).
func (s *Supervisor) scheduleReconnect(gen uint64, attempts int) {
	delay := BackoffDelay(attempts, s.opts.BaseDelay, s.opts.DelayCap)
	s.mux.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.session.Rotate(attempts)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		if s.staleGen(gen) {
			return
		}
		s.mux.Lock()
		if s.state == Closing {
			s.mux.Unlock()
			return
		}
		s.state = Connecting
		ctx := s.connCtx
		s.mux.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		s.connect(ctx)
	})
	s.mux.Unlock()
}

// markReady transitions to READY the first time either the explicit
// "endpoint" event or the inbound-frame fallback observes one, per §4.6.
// Idempotent: a second caller for the same generation is a no-op.
func (s *Supervisor) markReady(gen uint64) {
	if s.staleGen(gen) {
		return
	}
	s.mux.Lock()
	if s.state == Ready || s.state == Closing {
		s.mux.Unlock()
		return
	}
	s.state = Ready
	s.reconnectAttempts = 0
	s.consecutiveTimeouts = 0
	s.session.Freeze()
	sender := s.sender
	s.mux.Unlock()

	if sender != nil {
		s.drainQueue(sender)
	}
}

func (s *Supervisor) drainQueue(sender *sse.Transport) {
	s.queue.DrainWhile(func(f *frame.Frame) bool {
		if !s.IsReady() {
			return false
		}
		ctx := s.connCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := sender.SendData(ctx, f.Raw); err != nil {
			kind := ClassifySendErr(err)
			if kind.Reconnects() {
				// f is still at the front of the queue (DrainWhile does
				// not pop it when we return false); leaveReady's
				// promoteInitialize runs against that still-queued frame
				// rather than a duplicate pushed in front of it.
				s.leaveReady(kind, err)
				return false
			}
			// Not a connectivity failure: surface the error and consume
			// the frame so a malformed request doesn't wedge the drain.
			s.emitErrorFor(f, kind, err.Error())
			return true
		}
		return true
	})
}

// Send transmits f immediately via the current sender, bypassing the
// queue. Call only when IsReady(). On a connectivity failure the frame is
// pushed back to the front of the queue before the handshake is promoted
// ahead of it, so P2 (handshake first after reconnect) holds regardless
// of whether the failed frame came from the queue or a direct dispatch.
func (s *Supervisor) Send(ctx context.Context, f *frame.Frame) error {
	s.mux.Lock()
	sender := s.sender
	s.mux.Unlock()
	if sender == nil {
		err := fmt.Errorf("not connected")
		s.onDirectSendFailure(f, err)
		return err
	}
	err := sender.SendData(ctx, f.Raw)
	if err != nil {
		s.onDirectSendFailure(f, err)
	}
	return err
}

// ClassifySendErr maps an error returned by Send to the §4.5 taxonomy,
// for callers that need to decide whether a send failure is recoverable.
func ClassifySendErr(err error) classify.Kind {
	if se, ok := err.(*sse.StatusError); ok {
		return classify.HTTPStatus(se.StatusCode)
	}
	return classify.Message(err.Error())
}

// onDirectSendFailure applies §4.5's policy for a frame dispatched
// straight to the sender (not via the queue): connectivity kinds requeue
// it at the front, then tear down the connection and schedule a
// reconnect; Parse/InvalidRequest/Internal surface an error response
// instead.
func (s *Supervisor) onDirectSendFailure(f *frame.Frame, err error) {
	kind := ClassifySendErr(err)
	if kind.Reconnects() {
		// Notifications are never queued (invariant I2): only a request
		// with an id is worth replaying after the reconnect this failure
		// triggers.
		if f != nil && f.HasId {
			s.queue.PushFront(f)
		}
		s.leaveReady(kind, err)
		return
	}
	s.emitErrorFor(f, kind, err.Error())
}

// handleConnectionDrop handles an SSE-side error/close while this
// connection is the active one.
func (s *Supervisor) handleConnectionDrop(gen uint64, err error) {
	if s.staleGen(gen) {
		return
	}
	if s.State() != Ready {
		// Drop while still connecting: treated the same as a failed
		// connect attempt, since no frames could have been in flight.
		s.onConnectFailed(gen, err)
		return
	}
	s.leaveReady(classify.ConnectionLost, err)
}

// leaveReady performs the READY -> BACKOFF transition of §4.6: clear the
// endpoint, abort outstanding work, promote the handshake, emit one
// advisory error, then schedule the next attempt.
func (s *Supervisor) leaveReady(kind classify.Kind, cause error) {
	s.mux.Lock()
	if s.state == Closing {
		s.mux.Unlock()
		return
	}
	wasReady := s.state == Ready
	s.state = Backoff
	s.gen++
	gen := s.gen
	cancel := s.connCancel
	sender := s.sender
	client := s.sseClient
	s.mux.Unlock()

	s.session.ClearEndpoint()
	if sender != nil {
		sender.ClearEndpoint()
	}
	if cancel != nil {
		cancel()
	}
	if client != nil {
		// Stop waits for the SSE read loop to exit, and leaveReady may be
		// running on that loop (OnError, or a relayed SessionLost frame).
		go client.Stop()
	}
	s.queue.PromoteInitialize()

	if wasReady {
		s.emitAdvisory(kind, causeMessage(cause))
	}

	s.mux.Lock()
	s.reconnectAttempts++
	attempts := s.reconnectAttempts
	s.lastReconnectAttemptAt = time.Now()
	if attempts >= s.opts.MaxAttempts {
		s.state = Recovery
		s.mux.Unlock()
		s.emitAdvisory(classify.ConnectionLost, fmt.Sprintf("Failed to reconnect after %d attempts: %v", s.opts.MaxAttempts, cause))
		return
	}
	s.mux.Unlock()
	s.scheduleReconnect(gen, attempts)
}

func causeMessage(err error) string {
	if err == nil {
		return "connection lost"
	}
	return err.Error()
}

// LeaveReadyOnUpstreamError drives a READY -> BACKOFF transition in
// response to a server error frame the router classified as SessionLost
// (§4.7: "the router instructs the supervisor to leave READY").
func (s *Supervisor) LeaveReadyOnUpstreamError(message string) {
	if !s.IsReady() {
		return
	}
	s.leaveReady(classify.SessionLost, fmt.Errorf("%s", message))
}

// NotifyCancelled applies the outbound-notification bookkeeping of §4.7:
// escalate on three consecutive timeout cancellations, and remove any
// queued frame the cancellation targets (P6, P7).
func (s *Supervisor) NotifyCancelled(f *frame.Frame) {
	if id, ok := frame.CancelledRequestId(f); ok {
		s.queue.RemoveById(id)
	}
	if !frame.IsTimeoutCancellation(f) {
		return
	}
	s.mux.Lock()
	s.consecutiveTimeouts++
	hit := s.consecutiveTimeouts >= ConsecutiveTimeoutThreshold
	if hit {
		s.consecutiveTimeouts = 0
	}
	s.mux.Unlock()
	if hit {
		s.leaveReady(classify.Timeout, fmt.Errorf("3 consecutive request timeouts"))
	}
}

// RequestReconnectIfRecovering applies §4.6's RECOVERY re-arm rule: the
// next client request observed while in RECOVERY retries immediately if
// at least RecoveryInterval has elapsed since the last attempt.
func (s *Supervisor) RequestReconnectIfRecovering() {
	s.mux.Lock()
	if s.state != Recovery {
		s.mux.Unlock()
		return
	}
	if time.Since(s.lastReconnectAttemptAt) <= s.opts.RecoveryInterval {
		s.mux.Unlock()
		return
	}
	s.reconnectAttempts = 0
	s.state = Connecting
	s.gen++
	gen := s.gen
	ctx := s.connCtx
	s.mux.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go s.connect(ctx)
	_ = gen
}

// handleUpstreamMessage relays a raw SSE message event to the caller's
// router and, as a fallback for servers that omit the explicit "endpoint"
// event, opportunistically marks the connection READY (§4.6, §9).
func (s *Supervisor) handleUpstreamMessage(gen uint64, data []byte) {
	if s.staleGen(gen) {
		return
	}
	s.touchActivity()
	if s.onFrame != nil {
		s.onFrame(data)
	}
	if !s.IsReady() {
		s.markReady(gen)
	}
}

// emitErrorFor synthesizes and writes a JSON-RPC error response for a
// client request the bridge could not deliver, using its tracked id when
// known (§7).
func (s *Supervisor) emitErrorFor(f *frame.Frame, kind classify.Kind, message string) {
	id, hasId := interface{}(nil), false
	if f != nil {
		id, hasId = f.Id, f.HasId
	}
	s.emitError(id, hasId, kind, message)
}

func (s *Supervisor) emitError(id interface{}, hasId bool, kind classify.Kind, message string) {
	raw, err := frame.BuildError(id, hasId, classify.Code(kind), message)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("failed to encode error frame: %v", err)
		}
		return
	}
	s.emit(raw)
}

// emitAdvisory emits the single advisory error frame a state transition
// produces (§7: "one advisory error frame per transition, not per retry").
func (s *Supervisor) emitAdvisory(kind classify.Kind, message string) {
	s.emitError(nil, false, kind, message)
}

// Shutdown implements the CLOSING sequence of §5: best-effort shutdown
// notification (bounded by a 500ms timeout), then teardown of the SSE
// subscription and POST sender. Stdin is not closed here.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mux.Lock()
	if s.state == Closing {
		s.mux.Unlock()
		return
	}
	s.state = Closing
	sender := s.sender
	client := s.sseClient
	cancel := s.connCancel
	timer := s.reconnectTimer
	s.mux.Unlock()

	if timer != nil {
		timer.Stop()
	}

	if sender != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		raw := frame.ShutdownNotification(time.Now())
		if err := sender.SendData(shutdownCtx, raw); err != nil && s.logger != nil {
			s.logger.Errorf("shutdown notification failed: %v", err)
		}
		shutdownCancel()
	}

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Stop()
	}
	close(s.closed)
}

// Done is closed once Shutdown has torn down the connection.
func (s *Supervisor) Done() <-chan struct{} { return s.closed }
