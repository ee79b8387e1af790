package frame

import "testing"

func TestParseKind(t *testing.T) {
	testCases := []struct {
		description string
		line        string
		expectKind  Kind
		expectHasId bool
		expectId    interface{}
		expectErr   bool
	}{
		{
			description: "request",
			line:        `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`,
			expectKind:  KindRequest,
			expectHasId: true,
			expectId:    float64(1),
		},
		{
			description: "notification",
			line:        `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{}}`,
			expectKind:  KindNotification,
			expectHasId: false,
		},
		{
			description: "response",
			line:        `{"jsonrpc":"2.0","id":1,"result":{}}`,
			expectKind:  KindResponse,
			expectHasId: true,
			expectId:    float64(1),
		},
		{
			description: "malformed",
			line:        `not json`,
			expectErr:   true,
		},
	}

	for _, tc := range testCases {
		f, err := Parse([]byte(tc.line))
		if tc.expectErr {
			if err == nil {
				t.Errorf("%s: expected error, got none", tc.description)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.description, err)
		}
		if f.Kind != tc.expectKind {
			t.Errorf("%s: expected kind %v, got %v", tc.description, tc.expectKind, f.Kind)
		}
		if f.HasId != tc.expectHasId {
			t.Errorf("%s: expected hasId %v, got %v", tc.description, tc.expectHasId, f.HasId)
		}
		if tc.expectHasId && f.Id != tc.expectId {
			t.Errorf("%s: expected id %v, got %v", tc.description, tc.expectId, f.Id)
		}
	}
}

func TestIsInitialize(t *testing.T) {
	h := NewHandshake()
	if !h.IsInitialize() {
		t.Error("expected canonical handshake to report IsInitialize")
	}

	other, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if other.IsInitialize() {
		t.Error("expected id!=0 initialize to not match IsInitialize")
	}

	notInit, err := Parse([]byte(`{"jsonrpc":"2.0","id":0,"method":"tools/call","params":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if notInit.IsInitialize() {
		t.Error("expected id-0 non-initialize method to not match IsInitialize")
	}
}

func TestIdsEqualAcrossRepresentations(t *testing.T) {
	testCases := []struct {
		description string
		a, b        interface{}
		expect      bool
	}{
		{"matching floats", float64(1), float64(1), true},
		{"int vs float64", 1, float64(1), true},
		{"matching strings", "abc", "abc", true},
		{"mismatched strings", "abc", "def", false},
		{"string vs number", "1", float64(1), false},
		{"both nil", nil, nil, true},
		{"one nil", nil, float64(1), false},
	}
	for _, tc := range testCases {
		if got := IdsEqual(tc.a, tc.b); got != tc.expect {
			t.Errorf("%s: expected %v, got %v", tc.description, tc.expect, got)
		}
	}
}

func TestCancelledRequestIdPrefersRequestId(t *testing.T) {
	f, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":5,"reason":"Request timed out"}}`))
	if err != nil {
		t.Fatal(err)
	}
	id, ok := CancelledRequestId(f)
	if !ok || id != float64(5) {
		t.Fatalf("expected requestId 5, got %v, %v", id, ok)
	}
	if !IsTimeoutCancellation(f) {
		t.Error("expected timeout cancellation to be detected")
	}
}

func TestCancelledRequestIdFallsBackToId(t *testing.T) {
	f, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"id":7,"reason":"client closed"}}`))
	if err != nil {
		t.Fatal(err)
	}
	id, ok := CancelledRequestId(f)
	if !ok || id != float64(7) {
		t.Fatalf("expected fallback id 7, got %v, %v", id, ok)
	}
	if IsTimeoutCancellation(f) {
		t.Error("expected non-timeout reason to not match IsTimeoutCancellation")
	}
}
