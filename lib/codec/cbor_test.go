// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type emitRequest struct {
	Action  string `cbor:"action"`
	Type    string `cbor:"type"`
	Percent *int   `cbor:"percent,omitempty"`
}

type jsonTagged struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"type": "progress", "action": "emit", "message": "half"})
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		again, err := Marshal(map[string]any{"message": "half", "action": "emit", "type": "progress"})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("same map encoded to different bytes")
		}
	}
}

func TestOptionalFieldOmitted(t *testing.T) {
	data, err := Marshal(emitRequest{Action: "emit", Type: "status"})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(diagnostic, "percent") {
		t.Errorf("nil percent encoded: %s", diagnostic)
	}

	fifty := 50
	data, err = Marshal(emitRequest{Action: "emit", Type: "progress", Percent: &fifty})
	if err != nil {
		t.Fatal(err)
	}
	var decoded emitRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Percent == nil || *decoded.Percent != 50 {
		t.Errorf("percent = %v, want 50", decoded.Percent)
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(jsonTagged{SessionID: "s1", Seq: 7})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diagnostic, `"session_id"`) {
		t.Errorf("json tag not used as CBOR key: %s", diagnostic)
	}
}

func TestDecodeIntoAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "emit", "type": "done"})
	if err != nil {
		t.Fatal(err)
	}
	var value any
	if err := Unmarshal(data, &value); err != nil {
		t.Fatal(err)
	}
	decoded, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", value)
	}
	if decoded["type"] != "done" {
		t.Errorf("type = %v", decoded["type"])
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, kind := range []string{"ack", "status", "done"} {
		if err := encoder.Encode(emitRequest{Action: "emit", Type: kind}); err != nil {
			t.Fatal(err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"ack", "status", "done"} {
		var request emitRequest
		if err := decoder.Decode(&request); err != nil {
			t.Fatal(err)
		}
		if request.Type != want {
			t.Errorf("type = %q, want %q", request.Type, want)
		}
	}
}
