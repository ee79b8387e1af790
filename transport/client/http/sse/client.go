package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is a callback-driven Server-Sent Events reader used to receive
// frames from an upstream MCP server. It does not correlate requests with
// responses itself - it only relays raw bytes to the caller, which owns
// JSON-RPC framing and session bookkeeping.
type Client struct {
	streamURL        string
	handshakeTimeout time.Duration
	client           *http.Client
	headers          http.Header

	// OnOpen fires once the "endpoint" handshake event arrives, carrying the
	// per-session POST path the server expects subsequent frames on.
	OnOpen func(endpoint string)
	// OnMessage fires for every "message" (or unlabeled) SSE event.
	OnMessage func(data []byte)
	// OnError fires when the stream ends abnormally, after the handshake completed.
	OnError func(err error)
	// OnClose fires once the read loop exits, for any reason.
	OnClose func()

	mux     sync.Mutex
	body    io.ReadCloser
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// Start opens the stream, performs the endpoint handshake synchronously and,
// on success, begins relaying events on a background goroutine. A non-nil
// error means the client never connected and Start may be retried.
func (c *Client) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	req, err := c.newStreamingRequest(runCtx)
	if err != nil {
		cancel()
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to SSE stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	endpoint, err := c.handshake(runCtx, reader)
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return err
	}

	c.mux.Lock()
	c.cancel = cancel
	c.body = resp.Body
	c.done = make(chan struct{})
	c.stopped = false
	c.mux.Unlock()

	if c.OnOpen != nil {
		c.OnOpen(endpoint)
	}
	go c.listen(runCtx, reader)
	return nil
}

// Stop cancels the stream and waits for the read loop to exit. Safe to call
// more than once and safe to call on a Client that never started.
func (c *Client) Stop() {
	c.mux.Lock()
	if c.stopped {
		c.mux.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	body := c.body
	done := c.done
	c.mux.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Client) isStopped() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.stopped
}

func (c *Client) newStreamingRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")
	for k, v := range c.headers {
		req.Header[k] = v
	}
	return req, nil
}

func (c *Client) handshake(ctx context.Context, reader *bufio.Reader) (string, error) {
	hctx, hcancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer hcancel()
	event, err := c.read(hctx, reader)
	if err != nil {
		return "", err
	}
	if event.Event != "endpoint" {
		return "", fmt.Errorf("unexpected event: %s", event.Event)
	}
	if event.Data == "" {
		return "", fmt.Errorf("endpoint event is empty")
	}
	return event.Data, nil
}

func (c *Client) listen(ctx context.Context, reader *bufio.Reader) {
	defer close(c.done)
	defer func() {
		if c.OnClose != nil {
			c.OnClose()
		}
	}()
	for {
		event, err := c.read(ctx, reader)
		if err != nil {
			if c.isStopped() {
				return
			}
			if c.OnError != nil {
				c.OnError(err)
			}
			return
		}
		switch event.Event {
		case "", "message":
			if c.OnMessage != nil {
				c.OnMessage([]byte(event.Data))
			}
		default:
			// keepalive/comment or a vendor event type neither side needs
		}
	}
}

func (c *Client) read(ctx context.Context, reader *bufio.Reader) (*Event, error) {
	var hasData bool
	event := &Event{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if hasData {
						return event, nil
					}
					return nil, io.EOF
				}
				return nil, fmt.Errorf("SSE stream error: %w", err)
			}

			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				// A blank line ends the record. The "event:" field is
				// optional per the SSE wire format - an event with only
				// a data field is the default "message" event (§4.2) -
				// so hasData alone is enough to terminate, not
				// hasData && hasEvent.
				if hasData {
					return event, nil
				}
				continue
			}

			if strings.HasPrefix(line, "event:") {
				event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			} else if strings.HasPrefix(line, "data:") {
				event.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				hasData = true
			}
		}
	}
}

// New creates an SSE client for streamURL. It does not connect until Start is called.
func New(streamURL string, options ...Option) *Client {
	c := &Client{
		streamURL:        streamURL,
		handshakeTimeout: 30 * time.Second,
		client:           &http.Client{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}
