package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
)

// Waker is the worker loop surface the webhook intake needs.
type Waker interface {
	Kick()
}

// WebhookHandler is the worker-side push intake. A dispatcher (or anything
// else) posts here after enqueueing; the handler just wakes the claim loop.
type WebhookHandler struct {
	Log   infra.Logger
	Waker Waker
}

type webhookPayload struct {
	BatchID string `json:"batch_id"`
}

func (h *WebhookHandler) PhotoGeneration(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respond(w, http.StatusInternalServerError, false, "failed to read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.respond(w, http.StatusBadRequest, false, "invalid payload")
			return
		}
	}
	h.Log.Info().Str("batch_id", payload.BatchID).Msg("worker: webhook received")
	h.Waker.Kick()
	h.respond(w, http.StatusOK, true, "")
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *WebhookHandler) respond(w http.ResponseWriter, status int, success bool, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": success}
	if errMsg != "" {
		body["error"] = errMsg
	}
	_ = json.NewEncoder(w).Encode(body)
}
