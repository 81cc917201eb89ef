package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

type Kind string

const (
	KindImageCompress Kind = "image-compress"
	KindImageResize   Kind = "image-resize"
	KindImageConvert  Kind = "image-convert"
	KindPDFCompress   Kind = "pdf-compress"
	KindPDFMerge      Kind = "pdf-merge"
	KindPDFExtract    Kind = "pdf-extract"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindImageCompress, KindImageResize, KindImageConvert,
		KindPDFCompress, KindPDFMerge, KindPDFExtract:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// IsPDF reports whether the kind operates on PDF input.
func (k Kind) IsPDF() bool {
	switch k {
	case KindPDFCompress, KindPDFMerge, KindPDFExtract:
		return true
	}
	return false
}

// PayloadRef points at one input. Small payloads ride inline in the
// envelope; anything larger is staged to the sink and referenced by key
// so queue messages stay small.
type PayloadRef struct {
	Inline []byte `json:"inline,omitempty"`
	Key    string `json:"key,omitempty"`
}

func (p PayloadRef) IsInline() bool { return p.Key == "" }

// Params carries the per-kind transform options. Unused fields are
// zero and omitted on the wire.
type Params struct {
	Quality          int    `json:"quality,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	KeepAspect       bool   `json:"keep_aspect,omitempty"`
	TargetFormat     string `json:"target_format,omitempty"`
	CompressionLevel string `json:"compression_level,omitempty"`
	StartPage        int    `json:"start_page,omitempty"`
	EndPage          int    `json:"end_page,omitempty"`
}

// Envelope is the durable unit of work pushed through the broker.
type Envelope struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	Inputs       []PayloadRef `json:"inputs"`
	Params       Params       `json:"params"`
	AttemptCount int          `json:"attempt_count"`
	MaxAttempts  int          `json:"max_attempts"`
	CreatedAt    time.Time    `json:"created_at"`
	Status       Status       `json:"status"`
}

// LiveStatus is the coarse in-flight view kept next to the broker,
// consulted by the status API until a terminal Result exists.
type LiveStatus struct {
	TaskID   string `json:"task_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
}
