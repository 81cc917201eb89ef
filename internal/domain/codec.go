package domain

import (
	"encoding/json"
	"fmt"
)

// envelopeVersion gates the wire format. Decode rejects anything else;
// a mismatched message came from an incompatible producer and must not
// be retried.
const envelopeVersion = 1

type wireEnvelope struct {
	Version int `json:"v"`
	Envelope
}

// DecodeError marks bytes that can never become a valid envelope.
// Callers route the message to the dead-letter stream instead of
// retrying the decode.
type DecodeError struct {
	Reason string
	err    error
}

func (e *DecodeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.err }

func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(wireEnvelope{Version: envelopeVersion, Envelope: e})
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.ID, err)
	}
	return b, nil
}

func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed payload", err: err}
	}
	if w.Version != envelopeVersion {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("unsupported version %d", w.Version)}
	}
	if w.ID == "" {
		return Envelope{}, &DecodeError{Reason: "missing id"}
	}
	if _, err := ParseKind(string(w.Kind)); err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid kind", err: err}
	}
	return w.Envelope, nil
}
