package sse

import (
	"bytes"
	"context"
	"fmt"
	"github.com/viant/afs/url"
	"io"
	"net/http"
	"sync"
)

// StatusError is returned by SendData when the POST endpoint replies with
// a non-2xx status, so callers can classify 404 ("session not found")
// separately from other 4xx/5xx responses without parsing the message.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status code: %d: %s", e.StatusCode, e.Body)
}

// Transport is the POST half of the upstream transport (§4.3): it issues
// one-shot POSTs of client->server frames to the per-session endpoint URL
// the SSE stream delivered. It never retries; retry policy belongs to the
// caller's supervisor.
type Transport struct {
	client   *http.Client
	host     string
	endpoint string
	headers  http.Header
	sync.Mutex
}

// NewTransport creates a sender bound to host, the upstream SSE URL's
// scheme+authority, used to resolve relative endpoint paths (§6 "resolved
// relative to U"). SetEndpoint must be called once the "endpoint" SSE
// event arrives before SendData can succeed.
func NewTransport(client *http.Client, host string, headers http.Header) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	return &Transport{client: client, host: host, headers: headers}
}

// SendData sends data to the server. Cancellation is via ctx: aborting it
// unblocks an in-flight POST the way the supervisor does when it tears
// down a connection.
func (c *Transport) SendData(ctx context.Context, data []byte) error {
	c.Mutex.Lock()
	endpoint := c.endpoint
	headers := c.headers
	client := c.client
	c.Mutex.Unlock()

	if endpoint == "" {
		return fmt.Errorf("transport is not initialized - endpoint is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

// SetEndpoint records the per-session POST URL delivered by the SSE
// "endpoint" event, resolving it against host when it is relative.
func (c *Transport) SetEndpoint(uri string) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.setEndpoint(uri)
}

func (c *Transport) setEndpoint(URI string) {
	c.endpoint = url.Join(c.host, URI)
}

// ClearEndpoint drops the known endpoint, e.g. when the supervisor leaves
// READY and must not let a stale sender send to an abandoned session.
func (c *Transport) ClearEndpoint() {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.endpoint = ""
}
