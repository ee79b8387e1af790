package frame

import (
	"encoding/json"
	"testing"

	"github.com/viant/jsonrpc"
)

func TestBuildErrorWithId(t *testing.T) {
	raw, err := BuildError(float64(3), true, jsonrpc.InternalError, "boom")
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Id    interface{}       `json:"id"`
		Error jsonrpc.InnerError `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Id != float64(3) {
		t.Errorf("expected id 3, got %v", decoded.Id)
	}
	if decoded.Error.Code != jsonrpc.InternalError || decoded.Error.Message != "boom" {
		t.Errorf("unexpected error body: %+v", decoded.Error)
	}
}

// TestBuildErrorAlwaysEmitsDataMember guards against the error object's
// "data" member being dropped by encoding/json's omitempty handling of an
// empty map, which would contradict §7's mandated "data":<object|{}>.
func TestBuildErrorAlwaysEmitsDataMember(t *testing.T) {
	raw, err := BuildError(float64(1), true, jsonrpc.InternalError, "boom")
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	var errObj map[string]json.RawMessage
	if err := json.Unmarshal(decoded["error"], &errObj); err != nil {
		t.Fatal(err)
	}
	dataRaw, ok := errObj["data"]
	if !ok {
		t.Fatal("expected \"data\" member to be present in the error object")
	}
	if string(dataRaw) != "{}" {
		t.Errorf("expected data to be {}, got %s", dataRaw)
	}
}

func TestBuildErrorWithoutIdSynthesizesOne(t *testing.T) {
	raw, err := BuildError(nil, false, jsonrpc.InternalError, "advisory")
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Id interface{} `json:"id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	s, ok := decoded.Id.(string)
	if !ok || len(s) == 0 {
		t.Errorf("expected a synthesized string id, got %v", decoded.Id)
	}
}

func TestBuildCancelledCarriesRequestId(t *testing.T) {
	raw := BuildCancelled(float64(9), "Request timed out")
	var decoded struct {
		Method string `json:"method"`
		Params struct {
			RequestId interface{} `json:"requestId"`
			Reason    string      `json:"reason"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Method != "notifications/cancelled" {
		t.Errorf("expected notifications/cancelled, got %s", decoded.Method)
	}
	if decoded.Params.RequestId != float64(9) {
		t.Errorf("expected requestId 9, got %v", decoded.Params.RequestId)
	}
	if decoded.Params.Reason != "Request timed out" {
		t.Errorf("expected reason to roundtrip, got %s", decoded.Params.Reason)
	}
}
