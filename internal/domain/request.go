package domain

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Aspect ratios accepted by the generation pipeline.
const (
	AspectSquare   = "1:1"
	AspectPortrait = "9:16"
	AspectWide     = "16:9"
)

const (
	DefaultNumImagesPerExample = 4
	MaxNumImagesPerExample     = 8
	DefaultMaxAttempts         = 5
)

// ReferenceImage is one style-conditioning input; every reference image
// expands into its own job.
type ReferenceImage struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// GenerationRequest is the submission payload accepted by the dispatcher.
type GenerationRequest struct {
	UserID              string           `json:"user_id"`
	ModelID             string           `json:"model_id"`
	ReferenceImages     []ReferenceImage `json:"reference_images"`
	TrainingImageURLs   []string         `json:"training_image_urls"`
	BasePrompt          string           `json:"base_prompt"`
	AspectRatio         string           `json:"aspect_ratio"`
	NumImagesPerExample int              `json:"num_images_per_example"`
	Glasses             string           `json:"glasses"`
	HairColor           string           `json:"hair_color"`
	HairStyle           string           `json:"hair_style"`
	Backgrounds         []string         `json:"backgrounds"`
	Styles              []string         `json:"styles"`
}

// Normalize fills defaults and trims free-form fields in place.
func (r *GenerationRequest) Normalize() {
	r.BasePrompt = strings.TrimSpace(r.BasePrompt)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	if r.AspectRatio == "" {
		r.AspectRatio = AspectSquare
	}
	if r.NumImagesPerExample <= 0 {
		r.NumImagesPerExample = DefaultNumImagesPerExample
	}
	if r.NumImagesPerExample > MaxNumImagesPerExample {
		r.NumImagesPerExample = MaxNumImagesPerExample
	}
	r.Glasses = strings.ToLower(strings.TrimSpace(r.Glasses))
	if r.Glasses == "" {
		r.Glasses = "no"
	}
}

// Validate rejects payloads no worker could ever process. Validation is the
// only synchronous error path of the pipeline; everything after enqueue is
// persisted state.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ModelID) == "" {
		return fmt.Errorf("%w: model_id is required", ErrInvalidRequest)
	}
	switch r.AspectRatio {
	case AspectSquare, AspectPortrait, AspectWide:
	default:
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidRequest, r.AspectRatio)
	}
	if len(r.ReferenceImages) == 0 {
		return fmt.Errorf("%w: at least one reference image is required", ErrInvalidRequest)
	}
	for _, ref := range r.ReferenceImages {
		if err := ValidateRemoteURL(ref.URL); err != nil {
			return err
		}
	}
	for _, raw := range r.TrainingImageURLs {
		if err := ValidateRemoteURL(raw); err != nil {
			return err
		}
	}
	if r.Glasses != "yes" && r.Glasses != "no" {
		return fmt.Errorf("%w: glasses must be yes or no", ErrInvalidRequest)
	}
	return nil
}

// ValidateRemoteURL verifies a URL is something a worker can actually fetch:
// absolute http(s) and not a loopback or link-local address that only
// resolves on the submitting machine.
func ValidateRemoteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: invalid url %q", ErrInvalidRequest, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url %q must be http or https", ErrInvalidRequest, raw)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: url %q has no host", ErrInvalidRequest, raw)
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return fmt.Errorf("%w: url %q is not reachable from workers", ErrInvalidRequest, raw)
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("%w: url %q is not reachable from workers", ErrInvalidRequest, raw)
	}
	return nil
}
