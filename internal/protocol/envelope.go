package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	appErr "poker-service/pkg/errors"
)

// Message types on the wire.
const (
	TypeHello         = "hello"
	TypeHelloAck      = "helloAck"
	TypeAuth          = "auth"
	TypeAuthOk        = "authOk"
	TypeAuthError     = "authError"
	TypeTableJoin     = "table_join"
	TypeTableLeave    = "table_leave"
	TypeTableStateSub = "table_state_sub"
	TypeTableState    = "table_state"
	TypeResync        = "resync"
	TypeError         = "error"
	TypeProtectedEcho = "protected_echo"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Version   string          `json:"version"`
	Type      string          `json:"type"`
	TS        string          `json:"ts"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode parses one inbound frame. Anything that is not a JSON object with a
// string type, or whose payload is not an object, is INVALID_ENVELOPE.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, appErr.ErrInvalidEnvelope.WithMessage("frame is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, appErr.ErrInvalidEnvelope.WithMessage("%s", err.Error())
	}
	if env.Type == "" {
		return env, appErr.ErrInvalidEnvelope.WithMessage("type is required")
	}
	if p := bytes.TrimSpace(env.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) && p[0] != '{' {
		return env, appErr.ErrInvalidEnvelope.WithMessage("payload must be an object")
	}
	return env, nil
}

// Bind unmarshals the payload into dst. An absent payload leaves dst zero.
func (e Envelope) Bind(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return appErr.ErrInvalidEnvelope.WithMessage("payload: %s", err.Error())
	}
	return nil
}

// Encode builds an outbound frame.
func Encode(version, typ, requestID string, payload any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Version:   version,
		Type:      typ,
		TS:        now.UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
		Payload:   raw,
	})
}

// Negotiate picks the first server version the client also supports.
func Negotiate(client, server []string) (string, bool) {
	offered := make(map[string]struct{}, len(client))
	for _, v := range client {
		offered[v] = struct{}{}
	}
	for _, v := range server {
		if _, ok := offered[v]; ok {
			return v, true
		}
	}
	return "", false
}
