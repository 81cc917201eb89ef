package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/health"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

type stubBroker struct {
	mu       sync.Mutex
	enqueued []domain.Envelope
	fail     bool
}

func (b *stubBroker) Enqueue(_ context.Context, e domain.Envelope) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return "", errors.New("broker down")
	}
	b.enqueued = append(b.enqueued, e)
	return "1-0", nil
}

func (b *stubBroker) Receive(context.Context, string, time.Duration) (*ports.Lease, error) {
	return nil, nil
}
func (b *stubBroker) Ack(context.Context, *ports.Lease) error { return nil }

func (b *stubBroker) Nack(context.Context, *ports.Lease, error) error { return nil }

func (b *stubBroker) Ping(context.Context) error { return nil }

type stubStatus struct {
	live map[string]*domain.LiveStatus
}

func (s *stubStatus) SetStatus(context.Context, string, domain.Status) error { return nil }
func (s *stubStatus) SetProgress(context.Context, string, int) error         { return nil }

func (s *stubStatus) Get(_ context.Context, id string) (*domain.LiveStatus, error) {
	return s.live[id], nil
}

func (s *stubStatus) Recent(context.Context, int, int) ([]domain.LiveStatus, int, error) {
	out := make([]domain.LiveStatus, 0, len(s.live))
	for _, v := range s.live {
		out = append(out, *v)
	}
	return out, len(out), nil
}

type stubResults struct {
	records map[string]*domain.Result
}

func (r *stubResults) Save(context.Context, domain.Result) (bool, error) { return true, nil }

func (r *stubResults) Get(_ context.Context, id string) (*domain.Result, error) {
	return r.records[id], nil
}

func (r *stubResults) Ping(context.Context) error { return nil }

type stubSink struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (s *stubSink) Upload(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	s.uploads[key] = data
	return nil
}

func (s *stubSink) Download(context.Context, string) ([]byte, string, error) {
	return nil, "", errors.New("not used")
}

func (s *stubSink) Ping(context.Context) error { return nil }

type testEnv struct {
	broker  *stubBroker
	status  *stubStatus
	results *stubResults
	sink    *stubSink
	srv     *Server
}

func newTestEnv(probeErr error) *testEnv {
	e := &testEnv{
		broker:  &stubBroker{},
		status:  &stubStatus{live: map[string]*domain.LiveStatus{}},
		results: &stubResults{records: map[string]*domain.Result{}},
		sink:    &stubSink{},
	}
	cfg := &config.Config{}
	cfg.Worker.MaxAttempts = 5
	cfg.Worker.InlineMaxBytes = 1 << 18

	monitor := health.NewMonitor(time.Minute, health.Probe{
		Name:  "broker",
		Check: func(context.Context) error { return probeErr },
	})
	e.srv = NewServer(cfg, e.broker, e.status, e.results, e.sink, monitor)
	return e
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func tinyPDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func TestSubmitImageCompress(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-compress",
		"payload": tinyPNG(t),
		"params":  map[string]any{"quality": 60},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["task_id"] == "" {
		t.Error("missing task_id")
	}
	if len(e.broker.enqueued) != 1 {
		t.Fatalf("enqueued %d envelopes", len(e.broker.enqueued))
	}
	env := e.broker.enqueued[0]
	if env.Kind != domain.KindImageCompress || env.MaxAttempts != 5 {
		t.Errorf("envelope = %+v", env)
	}
	if !env.Inputs[0].IsInline() {
		t.Error("small payload should stay inline")
	}
}

func TestSubmitUnknownKindNeverReachesBroker(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-sharpen",
		"payload": tinyPNG(t),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if len(e.broker.enqueued) != 0 {
		t.Errorf("invalid request enqueued an envelope")
	}
}

func TestSubmitMissingPayload(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{"kind": "image-compress"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSubmitWrongContentType(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "pdf-compress",
		"payload": tinyPNG(t),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PDF") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(e.broker.enqueued) != 0 {
		t.Errorf("invalid request enqueued an envelope")
	}
}

func TestSubmitMergeRequiresTwoPayloads(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":     "pdf-merge",
		"payloads": [][]byte{tinyPDF()},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":     "pdf-merge",
		"payloads": [][]byte{tinyPDF(), tinyPDF()},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := len(e.broker.enqueued[0].Inputs); got != 2 {
		t.Errorf("merge envelope has %d inputs", got)
	}
}

func TestSubmitResizeRequiresDimensions(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-resize",
		"payload": tinyPNG(t),
		"params":  map[string]any{"width": 100},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSubmitInvalidQualityRejectedByValidator(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-compress",
		"payload": tinyPNG(t),
		"params":  map[string]any{"quality": 150},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSubmitLargePayloadStagedToSink(t *testing.T) {
	e := newTestEnv(nil)

	// Pad the PNG past the inline threshold. Detection only reads the
	// header, so trailing bytes don't change the type.
	payload := append(tinyPNG(t), bytes.Repeat([]byte{0}, (1<<18)+1)...)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-compress",
		"payload": payload,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := e.broker.enqueued[0]
	if env.Inputs[0].IsInline() {
		t.Fatal("oversized payload should be staged, not inline")
	}
	if !strings.HasPrefix(env.Inputs[0].Key, "originals/") {
		t.Errorf("staging key = %q", env.Inputs[0].Key)
	}
	if _, ok := e.sink.uploads[env.Inputs[0].Key]; !ok {
		t.Error("staged object missing from sink")
	}
}

func TestSubmitBrokerDown(t *testing.T) {
	e := newTestEnv(nil)
	e.broker.fail = true
	rec := e.do(t, http.MethodPost, "/tasks", map[string]any{
		"kind":    "image-compress",
		"payload": tinyPNG(t),
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetTaskTerminalResult(t *testing.T) {
	e := newTestEnv(nil)
	e.results.records["abc"] = &domain.Result{
		TaskID: "abc", Outcome: domain.OutcomeSuccess, OutputRef: "results/abc.png",
	}

	rec := e.do(t, http.MethodGet, "/tasks/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "succeeded" || resp.OutputRef != "results/abc.png" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetTaskLiveStatusMasksAbandoned(t *testing.T) {
	e := newTestEnv(nil)
	e.status.live["xyz"] = &domain.LiveStatus{
		TaskID: "xyz", Status: domain.StatusAbandoned, Progress: 40,
	}

	rec := e.do(t, http.MethodGet, "/tasks/xyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "queued" {
		t.Errorf("abandoned must surface as queued, got %q", resp.Status)
	}
	if resp.Progress == nil || *resp.Progress != 40 {
		t.Errorf("progress = %v", resp.Progress)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodGet, "/tasks/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	e := newTestEnv(nil)
	e.status.live["a"] = &domain.LiveStatus{TaskID: "a", Status: domain.StatusQueued}

	rec := e.do(t, http.MethodGet, "/tasks?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Limit != 5 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	e := newTestEnv(nil)
	rec := e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthNotReady(t *testing.T) {
	e := newTestEnv(errors.New("redis unreachable"))
	rec := e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis unreachable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
