package classify

import (
	"net/http"
	"testing"
)

func TestMessageClassification(t *testing.T) {
	testCases := []struct {
		description string
		msg         string
		expect      Kind
	}{
		{"session not found", "Could not find session for id abc", SessionLost},
		{"session expired", "session expired", SessionLost},
		{"invalid session", "Invalid session", SessionLost},
		{"premature request", "received request before initialization was complete", SessionLost},
		{"connection lost", "connection lost", ConnectionLost},
		{"fetch failed", "fetch failed: dial tcp refused", ConnectionLost},
		{"invalid request", "Invalid Request: missing method", InvalidRequest},
		{"timeout", "request timed out", Timeout},
		{"unrecognized", "something unexpected happened", Transient},
	}
	for _, tc := range testCases {
		if got := Message(tc.msg); got != tc.expect {
			t.Errorf("%s: expected %v, got %v", tc.description, tc.expect, got)
		}
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	testCases := []struct {
		status int
		expect Kind
	}{
		{http.StatusNotFound, SessionLost},
		{http.StatusInternalServerError, ConnectionLost},
		{http.StatusBadGateway, ConnectionLost},
		{http.StatusBadRequest, InvalidRequest},
		{http.StatusOK, Transient},
	}
	for _, tc := range testCases {
		if got := HTTPStatus(tc.status); got != tc.expect {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.expect, got)
		}
	}
}

func TestReconnectsPolicy(t *testing.T) {
	reconnecting := []Kind{SessionLost, ConnectionLost, Transient}
	for _, k := range reconnecting {
		if !k.Reconnects() {
			t.Errorf("expected %v to reconnect", k)
		}
	}
	terminal := []Kind{Timeout, Parse, InvalidRequest, Internal}
	for _, k := range terminal {
		if k.Reconnects() {
			t.Errorf("expected %v to not trigger a reconnect", k)
		}
	}
}
