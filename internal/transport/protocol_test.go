package transport

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestOutFrame_MarshalJSON_EncodesDataAsNumberArray guards the spec's
// outbound/inbound wire asymmetry: OutFrame.Data must serialize as a plain
// JSON array of byte values, never the base64 string encoding/json produces
// for a bare []byte field.
func TestOutFrame_MarshalJSON_EncodesDataAsNumberArray(t *testing.T) {
	frame := OutFrame{
		ReqIdentifier: ReqSend,
		Token:         "tok",
		SendID:        "me",
		OperationID:   "op-1",
		MsgIncr:       "incr-1",
		Data:          []byte{104, 101, 108, 108, 111}, // "hello"
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(raw), `"aGVsbG8="`) {
		t.Fatalf("expected a number array, got base64-encoded data: %s", raw)
	}
	if !strings.Contains(string(raw), `"data":[104,101,108,108,111]`) {
		t.Fatalf("expected data to be a JSON number array, got: %s", raw)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["data"].([]any); !ok {
		t.Fatalf("expected data field to decode as a JSON array, got %T", decoded["data"])
	}
}

// TestInFrame_UnmarshalJSON_DecodesBase64Data confirms the intentional
// asymmetry: InFrame.Data is still a plain []byte field that decodes a
// base64 string, since this struct has no custom (Un)MarshalJSON.
func TestInFrame_UnmarshalJSON_DecodesBase64Data(t *testing.T) {
	// base64("hello") == "aGVsbG8="
	raw := []byte(`{"reqIdentifier":2001,"msgIncr":"","operationID":"","errCode":0,"errMsg":"","data":"aGVsbG8="}`)

	var frame InFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(frame.Data) != "hello" {
		t.Fatalf("expected decoded data %q, got %q", "hello", frame.Data)
	}
}
