package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusRateLimited JobStatus = "rate_limited"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal rows are never
// mutated again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one unit of work: generate NumImagesPerExample variations from one
// reference image for one batch. Input fields are immutable once the row is
// created; only the bookkeeping fields change afterwards.
type Job struct {
	ID      string
	BatchID string
	UserID  string
	ModelID string

	ReferenceImageURL    string
	ReferenceImagePrompt string
	TrainingImageURLs    []string
	BasePrompt           string
	AspectRatio          string
	NumImagesPerExample  int
	Glasses              string
	HairColor            string
	HairStyle            string
	Backgrounds          []string
	Styles               []string

	Status       JobStatus
	Attempts     int
	MaxAttempts  int
	RetryAt      *time.Time
	LockedBy     *string
	LockedAt     *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	CompletedAt  *time.Time
}
