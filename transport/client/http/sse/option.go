package sse

import (
	"net/http"
	"time"
)

// Option is a function that configures the Client
type Option func(*Client)

// WithClient sets the HTTP client used to open the stream.
func WithClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithHandshakeTimeout bounds how long Start waits for the initial "endpoint" event.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = timeout
	}
}

// WithHeaders sets additional headers sent on the streaming GET request, e.g. bearer auth.
func WithHeaders(headers http.Header) Option {
	return func(c *Client) {
		c.headers = headers
	}
}
