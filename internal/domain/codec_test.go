package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleEnvelope() Envelope {
	return Envelope{
		ID:   "b3b4f8a0-8f4e-4a5c-9d9a-1c2d3e4f5a6b",
		Kind: KindImageResize,
		Inputs: []PayloadRef{
			{Inline: []byte{0x89, 0x50, 0x4e, 0x47}},
			{Key: "originals/abc"},
		},
		Params: Params{
			Quality:    80,
			Width:      640,
			Height:     480,
			KeepAspect: true,
		},
		AttemptCount: 2,
		MaxAttempts:  5,
		CreatedAt:    time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		Status:       StatusQueued,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleEnvelope()
	b, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != want.ID || got.Kind != want.Kind || got.Status != want.Status {
		t.Errorf("identity fields differ: got %+v", got)
	}
	if got.AttemptCount != want.AttemptCount || got.MaxAttempts != want.MaxAttempts {
		t.Errorf("attempt fields differ: got %d/%d", got.AttemptCount, got.MaxAttempts)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at differs: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.Params != want.Params {
		t.Errorf("params differ: got %+v want %+v", got.Params, want.Params)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(got.Inputs))
	}
	if string(got.Inputs[0].Inline) != string(want.Inputs[0].Inline) {
		t.Errorf("inline input differs")
	}
	if got.Inputs[1].Key != "originals/abc" {
		t.Errorf("keyed input differs: %q", got.Inputs[1].Key)
	}
}

func TestDecodeTruncated(t *testing.T) {
	b, err := Encode(sampleEnvelope())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Decode(b[:len(b)/2])
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	e := sampleEnvelope()
	b, _ := json.Marshal(wireEnvelope{Version: 99, Envelope: e})
	_, err := Decode(b)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeMissingID(t *testing.T) {
	e := sampleEnvelope()
	e.ID = ""
	b, _ := json.Marshal(wireEnvelope{Version: envelopeVersion, Envelope: e})
	if _, err := Decode(b); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDecodeInvalidKind(t *testing.T) {
	e := sampleEnvelope()
	e.Kind = "video-transcode"
	b, _ := json.Marshal(wireEnvelope{Version: envelopeVersion, Envelope: e})
	_, err := Decode(b)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
