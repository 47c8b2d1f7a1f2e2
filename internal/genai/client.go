package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
)

const (
	defaultBaseURL            = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel              = "gemini-2.5-flash-image"
	defaultFallbackRetryDelay = 30 * time.Second
	defaultMaxRetryDelay      = 5 * time.Minute
)

// Options controls how the generation client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger

	// FallbackRetryDelay is used when a 429 carries no usable hint;
	// MaxRetryDelay caps whatever hint the server supplies.
	FallbackRetryDelay time.Duration
	MaxRetryDelay      time.Duration
}

// Client calls the remote image-generation API. Each invocation requests and
// returns at most one image; callers needing N variations make N calls.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	httpClient    *http.Client
	logger        *infra.Logger
	fallbackDelay time.Duration
	maxDelay      time.Duration
}

// ReferenceImage is one inline conditioning input.
type ReferenceImage struct {
	MIMEType string
	Data     []byte
}

// GenerateRequest carries the prompt and all reference images for one call.
type GenerateRequest struct {
	Prompt          string
	ReferenceImages []ReferenceImage
	AspectRatio     string
}

// Image is the normalized successful result.
type Image struct {
	Data     []byte
	MIMEType string
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type requestContent struct {
	Role  string        `json:"role,omitempty"`
	Parts []requestPart `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateContentRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

// Responses mostly use camelCase, but some API surfaces emit snake_case
// inline_data; both are accepted.
type responsePart struct {
	Text            string      `json:"text,omitempty"`
	InlineData      *inlineData `json:"inlineData,omitempty"`
	InlineDataSnake *inlineData `json:"inline_data,omitempty"`
}

type responseContent struct {
	Parts []responsePart `json:"parts"`
}

type candidate struct {
	Content      responseContent `json:"content"`
	FinishReason string          `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type apiErrorBody struct {
	Error struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Status  string            `json:"status"`
		Details []json.RawMessage `json:"details"`
	} `json:"error"`
}

type retryInfoDetail struct {
	Type       string `json:"@type"`
	RetryDelay string `json:"retryDelay"`
}

type quotaFailureDetail struct {
	Type       string `json:"@type"`
	Violations []struct {
		QuotaValue string `json:"quotaValue"`
		QuotaID    string `json:"quotaId"`
	} `json:"violations"`
}

// NewClient constructs a generation client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout will be created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	fallback := opts.FallbackRetryDelay
	if fallback <= 0 {
		fallback = defaultFallbackRetryDelay
	}
	maxDelay := opts.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}

	return &Client{
		apiKey:        strings.TrimSpace(opts.APIKey),
		baseURL:       baseURL,
		model:         model,
		httpClient:    httpClient,
		logger:        logger,
		fallbackDelay: fallback,
		maxDelay:      maxDelay,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImage performs one generation call and returns exactly one image.
func (c *Client) GenerateImage(ctx context.Context, req GenerateRequest) (*Image, error) {
	parts := make([]requestPart, 0, len(req.ReferenceImages)+1)
	for _, ref := range req.ReferenceImages {
		mime := ref.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, requestPart{InlineData: &inlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	parts = append(parts, requestPart{Text: req.Prompt})

	payload := generateContentRequest{
		Contents: []requestContent{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: req.AspectRatio},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	q := httpReq.URL.Query()
	q.Set("key", c.apiKey)
	httpReq.URL.RawQuery = q.Encode()
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai: invoke model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.classifyRateLimit(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	var decoded generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("genai: decode response: %w", err)
	}
	return extractImage(decoded)
}

func extractImage(decoded generateContentResponse) (*Image, error) {
	var text strings.Builder
	for _, cand := range decoded.Candidates {
		for _, part := range cand.Content.Parts {
			inline := part.InlineData
			if inline == nil {
				inline = part.InlineDataSnake
			}
			if inline != nil && inline.Data != "" {
				data, err := base64.StdEncoding.DecodeString(inline.Data)
				if err != nil {
					return nil, fmt.Errorf("genai: decode inline data: %w", err)
				}
				mime := inline.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return &Image{Data: data, MIMEType: mime}, nil
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	if text.Len() > 0 {
		return nil, &CapabilityError{Text: text.String()}
	}
	return nil, fmt.Errorf("genai: response contained no image payload")
}

// classifyRateLimit turns a 429 into a RateLimitError, pulling the suggested
// delay from (in priority order) the structured RetryInfo detail, the
// Retry-After header, then the configured fallback.
func (c *Client) classifyRateLimit(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)

	delay, hinted := retryDelayFromDetails(body.Error.Details)
	if !hinted {
		delay, hinted = retryDelayFromHeader(resp.Header.Get("Retry-After"))
	}
	if !hinted {
		delay = c.fallbackDelay
	}
	delay = ClampDelay(delay, c.maxDelay)

	message := body.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	err := &RateLimitError{
		RetryAfter:     delay,
		QuotaExhausted: quotaExhausted(body.Error.Details),
		Message:        message,
	}
	c.logger.Warn().
		Dur("retry_after", err.RetryAfter).
		Bool("quota_exhausted", err.QuotaExhausted).
		Str("model", c.model).
		Msg("genai: rate limited")
	return err
}

func retryDelayFromDetails(details []json.RawMessage) (time.Duration, bool) {
	for _, raw := range details {
		var info retryInfoDetail
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		if !strings.HasSuffix(info.Type, "RetryInfo") || info.RetryDelay == "" {
			continue
		}
		if d, err := time.ParseDuration(info.RetryDelay); err == nil && d >= 0 {
			return d, true
		}
	}
	return 0, false
}

func retryDelayFromHeader(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// quotaExhausted reports whether the quota limit itself is zero, meaning the
// caller has no allowance at all and retrying cannot succeed.
func quotaExhausted(details []json.RawMessage) bool {
	for _, raw := range details {
		var failure quotaFailureDetail
		if err := json.Unmarshal(raw, &failure); err != nil {
			continue
		}
		if !strings.HasSuffix(failure.Type, "QuotaFailure") {
			continue
		}
		for _, v := range failure.Violations {
			if v.QuotaValue == "0" {
				return true
			}
		}
	}
	return false
}

// ClampDelay bounds a retry delay to [0, max].
func ClampDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func readErrorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(body)
	var parsed apiErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
