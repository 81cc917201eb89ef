package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/health"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

type handlers struct {
	cfg      *config.Config
	broker   ports.Broker
	status   ports.StatusStore
	results  ports.ResultStore
	sink     ports.Sink
	monitor  *health.Monitor
	validate *validator.Validate
}

type submitRequest struct {
	Kind     string       `json:"kind" validate:"required"`
	Payload  []byte       `json:"payload,omitempty"`
	Payloads [][]byte     `json:"payloads,omitempty"`
	Params   submitParams `json:"params"`
}

type submitParams struct {
	Quality          int    `json:"quality" validate:"omitempty,min=1,max=100"`
	Width            int    `json:"width" validate:"omitempty,min=1"`
	Height           int    `json:"height" validate:"omitempty,min=1"`
	KeepAspect       *bool  `json:"keep_aspect"`
	TargetFormat     string `json:"target_format" validate:"omitempty,oneof=jpg jpeg png webp bmp tiff gif"`
	CompressionLevel string `json:"compression_level" validate:"omitempty,oneof=low medium high"`
	StartPage        int    `json:"start_page" validate:"omitempty,min=1"`
	EndPage          int    `json:"end_page" validate:"omitempty,min=1"`
}

type statusResponse struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Progress    *int   `json:"progress,omitempty"`
	OutputRef   string `json:"output_ref,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// submit validates the request, stages oversized payloads to the sink
// and enqueues the envelope. Validation failures never reach the
// broker.
func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	payloads := req.Payloads
	if kind == domain.KindPDFMerge {
		if len(payloads) < 2 {
			writeError(w, "pdf-merge requires at least 2 payloads", http.StatusBadRequest)
			return
		}
	} else {
		if len(req.Payload) == 0 {
			writeError(w, "missing payload", http.StatusBadRequest)
			return
		}
		payloads = [][]byte{req.Payload}
	}

	contentTypes := make([]string, len(payloads))
	for i, data := range payloads {
		mt := mimetype.Detect(data)
		if err := checkContentType(kind, mt.String()); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		contentTypes[i] = mt.String()
	}
	if err := checkParams(kind, req.Params); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	inputs := make([]domain.PayloadRef, len(payloads))
	for i, data := range payloads {
		if len(data) <= h.cfg.Worker.InlineMaxBytes {
			inputs[i] = domain.PayloadRef{Inline: data}
			continue
		}
		key := "originals/" + uuid.NewString()
		if err := h.sink.Upload(r.Context(), key, contentTypes[i], data); err != nil {
			log.Ctx(r.Context()).Err(err).Msg("staging payload to sink failed")
			writeError(w, "submission failed", http.StatusServiceUnavailable)
			return
		}
		inputs[i] = domain.PayloadRef{Key: key}
	}

	keepAspect := true
	if req.Params.KeepAspect != nil {
		keepAspect = *req.Params.KeepAspect
	}

	env := domain.Envelope{
		ID:     uuid.NewString(),
		Kind:   kind,
		Inputs: inputs,
		Params: domain.Params{
			Quality:          req.Params.Quality,
			Width:            req.Params.Width,
			Height:           req.Params.Height,
			KeepAspect:       keepAspect,
			TargetFormat:     strings.ToLower(req.Params.TargetFormat),
			CompressionLevel: req.Params.CompressionLevel,
			StartPage:        req.Params.StartPage,
			EndPage:          req.Params.EndPage,
		},
		MaxAttempts: h.cfg.Worker.MaxAttempts,
		CreatedAt:   time.Now().UTC(),
		Status:      domain.StatusQueued,
	}

	if _, err := h.broker.Enqueue(r.Context(), env); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("enqueue failed")
		writeError(w, "submission failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"task_id": env.ID})
}

// getTask reports the task's current view: the terminal result when one
// exists, otherwise the live queued/in-progress state. Retry counts and
// lease mechanics stay internal.
func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.results.Get(r.Context(), id)
	if err != nil {
		writeError(w, "status lookup failed", http.StatusInternalServerError)
		return
	}
	if res != nil {
		resp := statusResponse{TaskID: id}
		if res.Outcome == domain.OutcomeSuccess {
			resp.Status = string(domain.StatusSucceeded)
			resp.OutputRef = res.OutputRef
		} else {
			resp.Status = string(domain.StatusFailed)
			resp.ErrorDetail = res.ErrorDetail
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	live, err := h.status.Get(r.Context(), id)
	if err != nil {
		writeError(w, "status lookup failed", http.StatusInternalServerError)
		return
	}
	if live == nil {
		writeError(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:   id,
		Status:   string(publicStatus(live.Status)),
		Progress: &live.Progress,
	})
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)

	tasks, total, err := h.status.Recent(r.Context(), offset, limit)
	if err != nil {
		writeError(w, "task listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	s := h.monitor.Current(r.Context())
	code := http.StatusOK
	if !s.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}

// publicStatus collapses internal states the API never exposes.
func publicStatus(s domain.Status) domain.Status {
	if s == domain.StatusAbandoned {
		return domain.StatusQueued
	}
	return s
}

func checkContentType(kind domain.Kind, contentType string) error {
	if kind.IsPDF() {
		if contentType != "application/pdf" {
			return fmt.Errorf("%s requires a PDF payload, got %s", kind, contentType)
		}
		return nil
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%s requires an image payload, got %s", kind, contentType)
	}
	return nil
}

func checkParams(kind domain.Kind, p submitParams) error {
	switch kind {
	case domain.KindImageResize:
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("image-resize requires positive width and height")
		}
	case domain.KindImageConvert:
		if p.TargetFormat == "" {
			return fmt.Errorf("image-convert requires target_format")
		}
	case domain.KindPDFExtract:
		if p.StartPage <= 0 || p.EndPage < p.StartPage {
			return fmt.Errorf("pdf-extract requires a valid page range")
		}
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
