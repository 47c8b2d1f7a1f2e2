package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
)

type enqueueResponse struct {
	BatchID string   `json:"batch_id"`
	JobIDs  []string `json:"job_ids"`
	Status  string   `json:"status"`
}

type jobView struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batch_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	RetryAt      *time.Time `json:"retry_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type photoView struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspect_ratio"`
	CreditsUsed int       `json:"credits_used"`
	CreatedAt   time.Time `json:"created_at"`
}

type batchView struct {
	ID                   string      `json:"id"`
	UserID               string      `json:"user_id"`
	ModelID              string      `json:"model_id"`
	Status               string      `json:"status"`
	TotalImagesGenerated int         `json:"total_images_generated"`
	CreditsUsed          int         `json:"credits_used"`
	CreatedAt            time.Time   `json:"created_at"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
	Photos               []photoView `json:"photos"`
}

// GenerationsCreate accepts a submission, persists the batch and its jobs,
// and returns 202. Everything after this point is asynchronous.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	batch := &domain.Batch{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ModelID:     req.ModelID,
		AspectRatio: req.AspectRatio,
		Glasses:     req.Glasses,
		HairColor:   req.HairColor,
		HairStyle:   req.HairStyle,
		Backgrounds: req.Backgrounds,
		Styles:      req.Styles,
		Status:      domain.BatchStatusGenerating,
	}
	jobs := make([]*domain.Job, 0, len(req.ReferenceImages))
	for _, ref := range req.ReferenceImages {
		jobs = append(jobs, &domain.Job{
			ID:                   uuid.NewString(),
			BatchID:              batch.ID,
			UserID:               req.UserID,
			ModelID:              req.ModelID,
			ReferenceImageURL:    ref.URL,
			ReferenceImagePrompt: ref.Prompt,
			TrainingImageURLs:    req.TrainingImageURLs,
			BasePrompt:           req.BasePrompt,
			AspectRatio:          req.AspectRatio,
			NumImagesPerExample:  req.NumImagesPerExample,
			Glasses:              req.Glasses,
			HairColor:            req.HairColor,
			HairStyle:            req.HairStyle,
			Backgrounds:          req.Backgrounds,
			Styles:               req.Styles,
			Status:               domain.JobStatusPending,
			MaxAttempts:          domain.DefaultMaxAttempts,
		})
	}

	if err := a.Jobs.EnqueueBatch(r.Context(), batch, jobs); err != nil {
		a.Log.Error().Err(err).Str("batch_id", batch.ID).Msg("api: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue generation")
		return
	}

	a.notifyWorkers(r.Context(), batch.ID)

	jobIDs := make([]string, len(jobs))
	for i, job := range jobs {
		jobIDs[i] = job.ID
	}
	a.Log.Info().
		Str("batch_id", batch.ID).
		Int("jobs", len(jobs)).
		Int("images_per_job", req.NumImagesPerExample).
		Msg("api: batch queued")
	a.json(w, http.StatusAccepted, enqueueResponse{
		BatchID: batch.ID,
		JobIDs:  jobIDs,
		Status:  string(domain.BatchStatusGenerating),
	})
}

// GenerationStatus reports a batch with its photos.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if batchID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "batch_id required")
		return
	}
	batch, err := a.Batches.GetBatch(r.Context(), batchID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	if err != nil {
		a.Log.Error().Err(err).Str("batch_id", batchID).Msg("api: batch lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
		return
	}
	photos, err := a.Photos.ListByBatch(r.Context(), batchID)
	if err != nil {
		a.Log.Error().Err(err).Str("batch_id", batchID).Msg("api: photo list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load photos")
		return
	}

	view := batchView{
		ID:                   batch.ID,
		UserID:               batch.UserID,
		ModelID:              batch.ModelID,
		Status:               string(batch.Status),
		TotalImagesGenerated: batch.TotalImagesGenerated,
		CreditsUsed:          batch.CreditsUsed,
		CreatedAt:            batch.CreatedAt,
		CompletedAt:          batch.CompletedAt,
		Photos:               make([]photoView, 0, len(photos)),
	}
	for _, p := range photos {
		view.Photos = append(view.Photos, photoView{
			ID:          p.ID,
			URL:         p.URL,
			Status:      string(p.Status),
			Prompt:      p.Prompt,
			AspectRatio: p.AspectRatio,
			CreditsUsed: p.CreditsUsed,
			CreatedAt:   p.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, view)
}

// JobStatus reports a single job's bookkeeping fields.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("api: job lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, jobView{
		ID:           job.ID,
		BatchID:      job.BatchID,
		Status:       string(job.Status),
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		RetryAt:      job.RetryAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
		CompletedAt:  job.CompletedAt,
	})
}

// notifyWorkers publishes the bus event and pings configured webhooks. All of
// it is best-effort; workers poll regardless.
func (a *App) notifyWorkers(ctx context.Context, batchID string) {
	if a.Bus != nil {
		if err := a.Bus.Publish(ctx); err != nil {
			a.Log.Warn().Err(err).Msg("api: bus publish failed")
		}
	}
	if len(a.WebhookURLs) == 0 {
		return
	}
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	payload, _ := json.Marshal(map[string]string{"batch_id": batchID})
	for _, target := range a.WebhookURLs {
		go func(target string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
			if err != nil {
				a.Log.Warn().Err(err).Str("url", target).Msg("api: webhook request build failed")
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				a.Log.Warn().Err(err).Str("url", target).Msg("api: webhook ping failed")
				return
			}
			resp.Body.Close()
			if resp.StatusCode >= 300 {
				a.Log.Warn().Int("status", resp.StatusCode).Str("url", target).Msg("api: webhook ping rejected")
			}
		}(target)
	}
}
