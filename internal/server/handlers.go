package server

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/webhook"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// Processor handles a verified webhook batch
type Processor interface {
	Process(ctx context.Context, batch webhook.Batch) webhook.Summary
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

type handler struct {
	logger         *zap.SugaredLogger
	processor      Processor
	pinger         Pinger
	channelSecret  string
	processTimeout time.Duration
	parsers        fastjson.ParserPool
}

type webhookResponse struct {
	Status string `json:"status"`
	webhook.Summary
}

// callback handles LINE webhook deliveries. Only signature and parse failures
// produce a non-200 status; per-event failures are reported in the summary.
func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	if !webhook.Verify(body, r.Header.Get(webhook.SignatureHeader), h.channelSecret) {
		h.logger.Warnw("Rejected webhook with invalid signature", "ip", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	parser := h.parsers.Get()
	batch, err := webhook.ParseBatch(parser, body)
	h.parsers.Put(parser)
	if err != nil {
		h.logger.Warnw("Rejected malformed webhook", "error", err)
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.processTimeout)
	summary := h.processor.Process(ctx, batch)
	cancel()

	payload, err := json.Marshal(webhookResponse{Status: "ok", Summary: summary})
	if err != nil {
		h.logger.Error(err)
		payload = []byte(`{"status":"ok"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// healthz handles HTTP requests on "/healthz" endpoint
func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Errorf("Health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
