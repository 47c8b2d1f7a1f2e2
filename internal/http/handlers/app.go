package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/notify"
)

// App carries the dispatcher's dependencies into its handlers.
type App struct {
	Log     infra.Logger
	Jobs    domain.JobStore
	Batches domain.BatchStore
	Photos  domain.PhotoStore
	Bus     notify.Bus

	// WebhookURLs receive a best-effort nudge after each enqueue so remote
	// workers can pick the work up before their next poll.
	WebhookURLs []string
	HTTPClient  *http.Client
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
