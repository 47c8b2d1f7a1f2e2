package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/blob"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/genai"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/notify"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/prompt"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/retry"
)

const maxReferenceBytes = 20 << 20

// Generator produces one image per call from reference inputs and a prompt.
type Generator interface {
	GenerateImage(ctx context.Context, req genai.GenerateRequest) (*genai.Image, error)
}

// Config tunes one worker instance.
type Config struct {
	WorkerID     string
	PollInterval time.Duration
	LockTimeout  time.Duration
	// ImageDelay is the pause between sequential generation calls of the
	// same job. Deliberately a tunable; production values have ranged from
	// seconds to minutes.
	ImageDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Runner drains the job store. Each instance runs a single-threaded
// claim/process loop; horizontal scale comes from running more instances,
// which the store's atomic claim makes safe.
type Runner struct {
	jobs    domain.JobStore
	batches domain.BatchStore
	photos  domain.PhotoStore
	gen     Generator
	store   blob.Store
	bus     notify.Bus
	policy  retry.Policy
	cfg     Config
	log     infra.Logger

	httpClient *http.Client
	kick       chan struct{}
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
}

func NewRunner(
	jobs domain.JobStore,
	batches domain.BatchStore,
	photos domain.PhotoStore,
	gen Generator,
	store blob.Store,
	bus notify.Bus,
	policy retry.Policy,
	cfg Config,
	log infra.Logger,
) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Minute
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + uuid.NewString()
	}
	return &Runner{
		jobs:       jobs,
		batches:    batches,
		photos:     photos,
		gen:        gen,
		store:      store,
		bus:        bus,
		policy:     policy,
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		kick:       make(chan struct{}, 1),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Kick wakes the loop ahead of its poll timer. Used by the webhook intake.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run executes the claim loop until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Str("worker_id", r.cfg.WorkerID).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error().Err(err).Msg("worker: claim cycle failed")
		}
		if processed {
			continue
		}
		r.wait(ctx)
	}
}

// RunOnce performs one claim cycle: reclaim stale locks, claim, process.
// It reports whether a job was processed.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	reclaimed, err := r.jobs.ReclaimStaleLocks(ctx, r.cfg.LockTimeout)
	if err != nil {
		return false, fmt.Errorf("reclaim stale locks: %w", err)
	}
	if reclaimed > 0 {
		r.log.Warn().Int("count", reclaimed).Msg("worker: reclaimed stale locks")
	}

	job, err := r.jobs.ClaimNext(ctx, r.cfg.WorkerID)
	if errors.Is(err, domain.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.processJob(ctx, job)
	return true, nil
}

func (r *Runner) wait(ctx context.Context) {
	timer := time.NewTimer(r.cfg.PollInterval)
	defer timer.Stop()
	var wake <-chan struct{}
	if r.bus != nil {
		wake = r.bus.Wake()
	}
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	case <-r.kick:
	}
}

// processJob runs one claimed job to a state transition. Every failure mode
// ends up as persisted job/batch state; nothing is returned to a caller.
func (r *Runner) processJob(ctx context.Context, job *domain.Job) {
	log := r.log.With().
		Str("job_id", job.ID).
		Str("batch_id", job.BatchID).
		Int("attempt", job.Attempts+1).
		Logger()
	log.Info().Msg("worker: picked job")

	// A crash between IncrementAttempt and the terminal update can hand a
	// reclaimed job back at the ceiling. Fail it instead of burning a new
	// attempt past maxAttempts.
	if job.Attempts >= job.MaxAttempts {
		r.markFailed(ctx, job, "attempt limit reached", log)
		return
	}

	inputs := r.resolveReferences(ctx, job, log)
	if len(inputs) == 0 {
		// No attempt consumed: the remote API was never reached.
		r.markFailed(ctx, job, "no reference inputs could be resolved", log)
		return
	}

	attempts, err := r.jobs.IncrementAttempt(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Msg("worker: increment attempt failed")
		return
	}

	resolvedPrompt := prompt.Resolve(job)
	photoCount := 0
	var rateErr *genai.RateLimitError
	var lastErr error

	for i := 0; i < job.NumImagesPerExample; i++ {
		if i > 0 && r.cfg.ImageDelay > 0 {
			r.sleep(ctx, r.cfg.ImageDelay)
		}
		if ctx.Err() != nil {
			break
		}

		var img *genai.Image
		err := r.policy.Do(ctx, func(ctx context.Context) error {
			var genErr error
			img, genErr = r.gen.GenerateImage(ctx, genai.GenerateRequest{
				Prompt:          resolvedPrompt,
				ReferenceImages: inputs,
				AspectRatio:     job.AspectRatio,
			})
			return genErr
		})
		if err != nil {
			if errors.As(err, &rateErr) {
				// Remaining images are pointless until the limit
				// resets; hand the whole job to the retry path.
				break
			}
			lastErr = err
			log.Warn().Err(err).Int("image_index", i).Msg("worker: image generation failed")
			continue
		}

		key := blob.ObjectKey(job.UserID, r.now(), i)
		url, err := r.store.Put(ctx, key, img.Data, img.MIMEType)
		if err != nil {
			lastErr = err
			log.Error().Err(err).Int("image_index", i).Msg("worker: upload failed")
			continue
		}

		photo := &domain.Photo{
			ID:          uuid.NewString(),
			UserID:      job.UserID,
			ModelID:     job.ModelID,
			BatchID:     job.BatchID,
			URL:         url,
			Status:      domain.PhotoStatusCompleted,
			CreditsUsed: 1,
			Prompt:      resolvedPrompt,
			AspectRatio: job.AspectRatio,
			Glasses:     job.Glasses,
			HairColor:   job.HairColor,
			HairStyle:   job.HairStyle,
			Backgrounds: job.Backgrounds,
			Styles:      job.Styles,
		}
		if err := r.photos.Insert(ctx, photo); err != nil {
			lastErr = err
			log.Error().Err(err).Int("image_index", i).Msg("worker: insert photo failed")
			continue
		}
		photoCount++
	}

	switch {
	case rateErr != nil && rateErr.QuotaExhausted:
		// Waiting out a zero quota burns attempts for nothing.
		r.markFailed(ctx, job, rateErr.Error(), log)
	case rateErr != nil && attempts < job.MaxAttempts:
		retryAt := r.now().Add(genai.ClampDelay(rateErr.RetryAfter, r.cfg.RetryMaxDelay) + r.policy.Jitter())
		if err := r.jobs.MarkRateLimited(ctx, job.ID, retryAt, rateErr.Error()); err != nil {
			log.Error().Err(err).Msg("worker: mark rate limited failed")
			return
		}
		log.Info().Time("retry_at", retryAt).Msg("worker: job parked for rate limit")
	case rateErr != nil && photoCount > 0:
		r.markCompleted(ctx, job, photoCount, log)
	case rateErr != nil:
		r.markFailed(ctx, job, rateErr.Error(), log)
	case photoCount > 0:
		r.markCompleted(ctx, job, photoCount, log)
	default:
		msg := "all image generations failed"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		r.markFailed(ctx, job, msg, log)
	}
}

func (r *Runner) markCompleted(ctx context.Context, job *domain.Job, photoCount int, log infra.Logger) {
	if err := r.jobs.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("worker: mark completed failed")
		return
	}
	log.Info().Int("photos", photoCount).Msg("worker: job completed")
	r.finalizeBatch(ctx, job.BatchID, log)
}

func (r *Runner) markFailed(ctx context.Context, job *domain.Job, reason string, log infra.Logger) {
	if err := r.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		log.Error().Err(err).Msg("worker: mark failed failed")
		return
	}
	log.Warn().Str("reason", reason).Msg("worker: job failed")
	r.finalizeBatch(ctx, job.BatchID, log)
}

func (r *Runner) finalizeBatch(ctx context.Context, batchID string, log infra.Logger) {
	batch, err := r.batches.FinalizeBatch(ctx, batchID)
	if err != nil {
		log.Error().Err(err).Msg("worker: batch finalize failed")
		return
	}
	if batch.Status != domain.BatchStatusGenerating {
		log.Info().
			Str("batch_status", string(batch.Status)).
			Int("total_images", batch.TotalImagesGenerated).
			Msg("worker: batch finalized")
	}
}

// resolveReferences downloads the job's conditioning inputs. Individual
// failures are tolerated; the caller fails the job only when nothing at all
// resolves.
func (r *Runner) resolveReferences(ctx context.Context, job *domain.Job, log infra.Logger) []genai.ReferenceImage {
	urls := append([]string{job.ReferenceImageURL}, job.TrainingImageURLs...)
	var inputs []genai.ReferenceImage
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		img, err := r.fetchImage(ctx, raw)
		if err != nil {
			log.Warn().Err(err).Str("url", raw).Msg("worker: reference fetch failed")
			continue
		}
		inputs = append(inputs, img)
	}
	return inputs
}

// fetchImage downloads one reference input. URL policy (scheme, local-only
// hosts) is enforced at submission; here a bad URL is just a failed fetch.
func (r *Runner) fetchImage(ctx context.Context, raw string) (genai.ReferenceImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return genai.ReferenceImage{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return genai.ReferenceImage{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return genai.ReferenceImage{}, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return genai.ReferenceImage{}, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return genai.ReferenceImage{}, fmt.Errorf("fetch: empty body")
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return genai.ReferenceImage{MIMEType: mime, Data: data}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
