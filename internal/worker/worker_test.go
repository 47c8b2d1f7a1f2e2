package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/domain"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/genai"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/retry"
)

type fakeJobStore struct {
	mu       sync.Mutex
	claimed  []*domain.Job
	attempts map[string]int

	completed   []string
	failed      map[string]string
	rateLimited map[string]time.Time
	reclaimed   int
}

func newFakeJobStore(jobs ...*domain.Job) *fakeJobStore {
	return &fakeJobStore{
		claimed:     jobs,
		attempts:    map[string]int{},
		failed:      map[string]string{},
		rateLimited: map[string]time.Time{},
	}
}

func (f *fakeJobStore) EnqueueBatch(context.Context, *domain.Batch, []*domain.Job) error {
	return nil
}

func (f *fakeJobStore) ClaimNext(_ context.Context, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.claimed) == 0 {
		return nil, domain.ErrNoJob
	}
	job := f.claimed[0]
	f.claimed = f.claimed[1:]
	job.Status = domain.JobStatusProcessing
	job.LockedBy = &workerID
	return job, nil
}

func (f *fakeJobStore) ReclaimStaleLocks(context.Context, time.Duration) (int, error) {
	return f.reclaimed, nil
}

func (f *fakeJobStore) IncrementAttempt(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[id]++
	return f.attempts[id], nil
}

func (f *fakeJobStore) MarkCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobStore) MarkFailed(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = msg
	return nil
}

func (f *fakeJobStore) MarkRateLimited(_ context.Context, id string, retryAt time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimited[id] = retryAt
	return nil
}

func (f *fakeJobStore) GetJob(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

type fakeBatchStore struct {
	mu        sync.Mutex
	finalized []string
	status    domain.BatchStatus
}

func (f *fakeBatchStore) GetBatch(_ context.Context, id string) (*domain.Batch, error) {
	return &domain.Batch{ID: id, Status: f.status}, nil
}

func (f *fakeBatchStore) FinalizeBatch(_ context.Context, id string) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, id)
	if f.status == "" {
		f.status = domain.BatchStatusGenerating
	}
	return &domain.Batch{ID: id, Status: f.status}, nil
}

type fakePhotoStore struct {
	mu     sync.Mutex
	photos []*domain.Photo
	err    error
}

func (f *fakePhotoStore) Insert(_ context.Context, p *domain.Photo) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, p)
	return nil
}

func (f *fakePhotoStore) ListByBatch(context.Context, string) ([]domain.Photo, error) {
	return nil, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req genai.GenerateRequest) (*genai.Image, error)
}

func (f *fakeGenerator) GenerateImage(_ context.Context, req genai.GenerateRequest) (*genai.Image, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, req)
}

type fakeBlobStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeBlobStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func okGenerator() *fakeGenerator {
	return &fakeGenerator{fn: func(int, genai.GenerateRequest) (*genai.Image, error) {
		return &genai.Image{Data: []byte("png-bytes"), MIMEType: "image/png"}, nil
	}}
}

func refServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testJob(refURL string) *domain.Job {
	return &domain.Job{
		ID:                  "job-1",
		BatchID:             "batch-1",
		UserID:              "user-1",
		ModelID:             "model-1",
		ReferenceImageURL:   refURL,
		BasePrompt:          "studio portrait",
		AspectRatio:         domain.AspectSquare,
		NumImagesPerExample: 4,
		MaxAttempts:         5,
		Status:              domain.JobStatusPending,
	}
}

func testRunner(jobs *fakeJobStore, batches *fakeBatchStore, photos *fakePhotoStore, gen Generator, store *fakeBlobStore) *Runner {
	r := NewRunner(jobs, batches, photos, gen, store, nil, retry.Policy{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   genai.IsRetryable,
	}, Config{
		WorkerID:     "test-worker",
		PollInterval: time.Millisecond,
		LockTimeout:  time.Minute,
	}, zerolog.Nop())
	r.sleep = func(context.Context, time.Duration) {}
	return r
}

func TestRunOnceCompletesJob(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore(testJob(srv.URL + "/ref.jpg"))
	batches := &fakeBatchStore{}
	photos := &fakePhotoStore{}
	gen := okGenerator()
	store := &fakeBlobStore{}

	r := testRunner(jobs, batches, photos, gen, store)
	processed, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}
	if gen.calls != 4 {
		t.Fatalf("generator calls = %d, want 4", gen.calls)
	}
	if len(photos.photos) != 4 {
		t.Fatalf("photos = %d, want 4", len(photos.photos))
	}
	if len(jobs.completed) != 1 || jobs.completed[0] != "job-1" {
		t.Fatalf("completed = %v, want [job-1]", jobs.completed)
	}
	if jobs.attempts["job-1"] != 1 {
		t.Fatalf("attempts = %d, want 1", jobs.attempts["job-1"])
	}
	if len(batches.finalized) != 1 || batches.finalized[0] != "batch-1" {
		t.Fatalf("finalized = %v, want [batch-1]", batches.finalized)
	}
	for _, p := range photos.photos {
		if p.BatchID != "batch-1" || p.Status != domain.PhotoStatusCompleted {
			t.Fatalf("unexpected photo: %+v", p)
		}
		if p.Prompt == "" {
			t.Fatal("photo prompt not recorded")
		}
	}
}

func TestRunOnceDrainsWholeBatch(t *testing.T) {
	srv := refServer(t)
	jobA := testJob(srv.URL + "/ref-a.jpg")
	jobB := testJob(srv.URL + "/ref-b.jpg")
	jobB.ID = "job-2"
	jobs := newFakeJobStore(jobA, jobB)
	batches := &fakeBatchStore{}
	photos := &fakePhotoStore{}

	r := testRunner(jobs, batches, photos, okGenerator(), &fakeBlobStore{})
	for i := 0; i < 2; i++ {
		processed, err := r.RunOnce(context.Background())
		if err != nil || !processed {
			t.Fatalf("RunOnce #%d = %v, %v", i+1, processed, err)
		}
	}
	if len(photos.photos) != 8 {
		t.Fatalf("photos = %d, want 8 (2 jobs x 4 images)", len(photos.photos))
	}
	if len(jobs.completed) != 2 {
		t.Fatalf("completed = %v, want both jobs", jobs.completed)
	}
	if len(batches.finalized) != 2 {
		t.Fatalf("finalize attempts = %d, want one per terminal job", len(batches.finalized))
	}
	if processed, _ := r.RunOnce(context.Background()); processed {
		t.Fatal("queue should be empty after both jobs")
	}
}

func TestRunOnceNoJob(t *testing.T) {
	jobs := newFakeJobStore()
	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, okGenerator(), &fakeBlobStore{})
	processed, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed {
		t.Fatal("expected no job")
	}
}

func TestProcessJobPartialFailureStillCompletes(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore(testJob(srv.URL + "/ref.jpg"))
	batches := &fakeBatchStore{}
	photos := &fakePhotoStore{}
	gen := &fakeGenerator{fn: func(call int, _ genai.GenerateRequest) (*genai.Image, error) {
		if call == 1 {
			return &genai.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
		}
		return nil, &genai.APIError{StatusCode: 400, Message: "bad input"}
	}}

	r := testRunner(jobs, batches, photos, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(photos.photos) != 1 {
		t.Fatalf("photos = %d, want 1", len(photos.photos))
	}
	if len(jobs.completed) != 1 {
		t.Fatalf("completed = %v, want one job", jobs.completed)
	}
	if len(jobs.failed) != 0 {
		t.Fatalf("failed = %v, want none", jobs.failed)
	}
}

func TestProcessJobAllFailuresFailsJob(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore(testJob(srv.URL + "/ref.jpg"))
	batches := &fakeBatchStore{}
	gen := &fakeGenerator{fn: func(int, genai.GenerateRequest) (*genai.Image, error) {
		return nil, &genai.APIError{StatusCode: 400, Message: "bad input"}
	}}

	r := testRunner(jobs, batches, &fakePhotoStore{}, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if msg, ok := jobs.failed["job-1"]; !ok || msg == "" {
		t.Fatalf("failed = %v, want job-1 with message", jobs.failed)
	}
	if len(batches.finalized) != 1 {
		t.Fatalf("finalized = %v, want [batch-1]", batches.finalized)
	}
}

func TestProcessJobRateLimitParksJob(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore(testJob(srv.URL + "/ref.jpg"))
	gen := &fakeGenerator{fn: func(int, genai.GenerateRequest) (*genai.Image, error) {
		return nil, &genai.RateLimitError{RetryAfter: 45 * time.Second, Message: "resource exhausted"}
	}}

	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, gen, &fakeBlobStore{})
	r.cfg.RetryMaxDelay = 5 * time.Minute
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1 (remaining images skipped)", gen.calls)
	}
	retryAt, ok := jobs.rateLimited["job-1"]
	if !ok {
		t.Fatalf("job not rate limited: failed=%v completed=%v", jobs.failed, jobs.completed)
	}
	if retryAt.Before(now.Add(45 * time.Second)) {
		t.Fatalf("retryAt = %v, want at least %v", retryAt, now.Add(45*time.Second))
	}
	if len(jobs.completed) != 0 || len(jobs.failed) != 0 {
		t.Fatal("rate limited job must stay non-terminal")
	}
}

func TestProcessJobRateLimitAtAttemptCeiling(t *testing.T) {
	srv := refServer(t)
	job := testJob(srv.URL + "/ref.jpg")
	job.MaxAttempts = 1
	jobs := newFakeJobStore(job)
	gen := &fakeGenerator{fn: func(int, genai.GenerateRequest) (*genai.Image, error) {
		return nil, &genai.RateLimitError{RetryAfter: 10 * time.Second, Message: "resource exhausted"}
	}}

	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expected failure at attempt ceiling, got rateLimited=%v", jobs.rateLimited)
	}
}

func TestProcessJobRateLimitKeepsEarlierPhotos(t *testing.T) {
	srv := refServer(t)
	job := testJob(srv.URL + "/ref.jpg")
	job.MaxAttempts = 1
	jobs := newFakeJobStore(job)
	photos := &fakePhotoStore{}
	gen := &fakeGenerator{fn: func(call int, _ genai.GenerateRequest) (*genai.Image, error) {
		if call <= 2 {
			return &genai.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
		}
		return nil, &genai.RateLimitError{RetryAfter: 10 * time.Second, Message: "resource exhausted"}
	}}

	r := testRunner(jobs, &fakeBatchStore{}, photos, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(photos.photos) != 2 {
		t.Fatalf("photos = %d, want 2", len(photos.photos))
	}
	if len(jobs.completed) != 1 {
		t.Fatalf("completed = %v, want one job (partial success retained)", jobs.completed)
	}
}

func TestProcessJobReclaimedAtAttemptCeilingFails(t *testing.T) {
	srv := refServer(t)
	job := testJob(srv.URL + "/ref.jpg")
	job.Attempts = job.MaxAttempts
	jobs := newFakeJobStore(job)
	gen := okGenerator()
	batches := &fakeBatchStore{}

	r := testRunner(jobs, batches, &fakePhotoStore{}, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
	if jobs.attempts["job-1"] != 0 {
		t.Fatalf("attempts incremented %d times, want 0 (ceiling already reached)", jobs.attempts["job-1"])
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expected terminal failure, failed=%v", jobs.failed)
	}
	if len(batches.finalized) != 1 {
		t.Fatalf("finalized = %v, want [batch-1]", batches.finalized)
	}
}

func TestProcessJobQuotaExhaustionFailsFast(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore(testJob(srv.URL + "/ref.jpg"))
	gen := &fakeGenerator{fn: func(int, genai.GenerateRequest) (*genai.Image, error) {
		return nil, &genai.RateLimitError{RetryAfter: time.Minute, QuotaExhausted: true, Message: "quota limit is 0"}
	}}

	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expected fast failure, got rateLimited=%v", jobs.rateLimited)
	}
	if jobs.attempts["job-1"] != 1 {
		t.Fatalf("attempts = %d, want 1", jobs.attempts["job-1"])
	}
}

func TestProcessJobNoResolvableReferencesFailsWithoutAttempt(t *testing.T) {
	// A server that is already gone: every fetch gets connection refused.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	job := testJob(deadURL + "/ref.jpg")
	jobs := newFakeJobStore(job)
	gen := okGenerator()

	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, gen, &fakeBlobStore{})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expected failure, failed=%v", jobs.failed)
	}
	if jobs.attempts["job-1"] != 0 {
		t.Fatalf("attempts = %d, want 0 (API never reached)", jobs.attempts["job-1"])
	}
}

func TestProcessJobTransientErrorRetriedInProcess(t *testing.T) {
	srv := refServer(t)
	job := testJob(srv.URL + "/ref.jpg")
	job.NumImagesPerExample = 1
	jobs := newFakeJobStore(job)
	photos := &fakePhotoStore{}
	gen := &fakeGenerator{fn: func(call int, _ genai.GenerateRequest) (*genai.Image, error) {
		if call == 1 {
			return nil, &genai.APIError{StatusCode: 503, Message: "unavailable"}
		}
		return &genai.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
	}}

	r := testRunner(jobs, &fakeBatchStore{}, photos, gen, &fakeBlobStore{})
	r.policy.MaxAttempts = 3
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
	if len(photos.photos) != 1 || len(jobs.completed) != 1 {
		t.Fatalf("photos=%d completed=%v, want 1 and [job-1]", len(photos.photos), jobs.completed)
	}
}

func TestKickWakesRunLoop(t *testing.T) {
	srv := refServer(t)
	jobs := newFakeJobStore()
	r := testRunner(jobs, &fakeBatchStore{}, &fakePhotoStore{}, okGenerator(), &fakeBlobStore{})
	r.cfg.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	jobs.mu.Lock()
	jobs.claimed = append(jobs.claimed, testJob(srv.URL+"/ref.jpg"))
	jobs.mu.Unlock()
	r.Kick()

	deadline := time.After(5 * time.Second)
	for {
		jobs.mu.Lock()
		n := len(jobs.completed)
		jobs.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("kicked job never processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestReferenceFetchErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := testRunner(newFakeJobStore(), &fakeBatchStore{}, &fakePhotoStore{}, okGenerator(), &fakeBlobStore{})
	_, err := r.fetchImage(context.Background(), srv.URL+"/missing.jpg")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	want := fmt.Sprintf("fetch: status %d", http.StatusNotFound)
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err, want)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := testRunner(newFakeJobStore(), &fakeBatchStore{}, &fakePhotoStore{}, okGenerator(), &fakeBlobStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
