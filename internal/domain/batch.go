package domain

import "time"

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusGenerating BatchStatus = "generating"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Batch aggregates all jobs spawned by one user generation request. Its
// status is derived from the jobs; it is never flipped independently except
// at creation.
type Batch struct {
	ID          string
	UserID      string
	ModelID     string
	AspectRatio string
	Glasses     string
	HairColor   string
	HairStyle   string
	Backgrounds []string
	Styles      []string

	TotalImagesGenerated int
	CreditsUsed          int
	Status               BatchStatus
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

// DeriveBatchStatus computes the batch status from its job statuses. The
// second return value reports whether every job is terminal; the batch must
// only be finalized when it is true.
func DeriveBatchStatus(jobs []JobStatus) (BatchStatus, bool) {
	completed := 0
	for _, s := range jobs {
		if !s.Terminal() {
			return BatchStatusGenerating, false
		}
		if s == JobStatusCompleted {
			completed++
		}
	}
	if len(jobs) == 0 {
		return BatchStatusGenerating, false
	}
	if completed > 0 {
		return BatchStatusCompleted, true
	}
	return BatchStatusFailed, true
}
