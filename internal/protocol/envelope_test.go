package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	appErr "poker-service/pkg/errors"
)

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":       `{nope`,
		"array":          `[1,2]`,
		"empty":          ``,
		"missing type":   `{"version":"1.0","payload":{}}`,
		"scalar payload": `{"type":"hello","payload":3}`,
		"string type":    `{"type":7}`,
	}
	for name, frame := range cases {
		if _, err := Decode([]byte(frame)); !errors.Is(err, appErr.ErrInvalidEnvelope) {
			t.Fatalf("%s: expected INVALID_ENVELOPE, got %v", name, err)
		}
	}
}

func TestDecodeAndBind(t *testing.T) {
	env, err := Decode([]byte(`{"version":"1.0","type":"table_join","requestId":"r1","payload":{"tableId":"T"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeTableJoin || env.RequestID != "r1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var ref TableRef
	if err := env.Bind(&ref); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if ref.TableID != "T" {
		t.Fatalf("expected tableId T, got %q", ref.TableID)
	}

	bare, err := Decode([]byte(`{"type":"resync","payload":null}`))
	if err != nil {
		t.Fatalf("decode null payload: %v", err)
	}
	ref = TableRef{}
	if err := bare.Bind(&ref); err != nil || ref.TableID != "" {
		t.Fatalf("null payload should bind to zero value, got %+v, %v", ref, err)
	}
}

func TestEncodeStampsTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := Encode("1.0", TypeError, "r9", Error{Code: "X", Message: "y"}, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.TS != "2024-05-01T12:00:00Z" || env.RequestID != "r9" || env.Version != "1.0" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestNegotiate(t *testing.T) {
	if v, ok := Negotiate([]string{"0.9", "1.0"}, []string{"1.1", "1.0"}); !ok || v != "1.0" {
		t.Fatalf("expected 1.0, got %q %v", v, ok)
	}
	if _, ok := Negotiate([]string{"2.0"}, []string{"1.0"}); ok {
		t.Fatal("expected no common version")
	}
	if _, ok := Negotiate(nil, []string{"1.0"}); ok {
		t.Fatal("expected no common version for empty offer")
	}
}
