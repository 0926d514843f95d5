package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videoexpress/internal/infra"
)

// Status is the normalized three-way provider status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// PlaceholderVideoURL is the stable output reference reported for simulated
// requests. Finalization recognizes it and materializes a local placeholder
// instead of downloading.
const PlaceholderVideoURL = "placeholder://video-express/preview.mp4"

// StyleConfig holds the fixed prompt template and motion strength used for
// one animation style.
type StyleConfig struct {
	Prompt         string
	MotionStrength float64
}

var styleConfigs = map[string]StyleConfig{
	"zoom": {
		Prompt:         "Slow cinematic zoom into the product, shallow depth of field, studio lighting",
		MotionStrength: 0.3,
	},
	"parallax": {
		Prompt:         "Smooth parallax pan across the product, layered depth, soft ambient light",
		MotionStrength: 0.5,
	},
	"float": {
		Prompt:         "Product gently floating with subtle drift and soft shadows, dreamlike motion",
		MotionStrength: 0.7,
	},
}

// StyleConfigFor returns the provider parameters for a style key.
func StyleConfigFor(style string) (StyleConfig, bool) {
	cfg, ok := styleConfigs[strings.ToLower(strings.TrimSpace(style))]
	return cfg, ok
}

// CreditSource reports whether another real (paid) submission is permitted.
type CreditSource interface {
	CanSubmitReal() bool
}

// Options controls how the fal client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// Simulation forces synthetic request handling regardless of credits.
	Simulation bool
	Credits    CreditSource
}

// Client encapsulates all interaction with the fal queue API. It knows
// nothing about jobs or persistence; callers hand it image URLs and style
// keys and get back request refs and normalized statuses.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	simulate   bool
	credits    CreditSource
}

// SubmitResult is returned from Submit.
type SubmitResult struct {
	Ref            RequestRef
	ProviderStatus string
}

// StatusResult is the normalized outcome of a status check.
type StatusResult struct {
	Status           Status
	OutputURL        string
	ErrorMessage     string
	ErrorCode        Code
	ProgressPercent  int
	ProcessingTimeMS int64
}

// NewClient constructs a fal client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://queue.fal.run"
	}

	model := strings.Trim(opts.Model, "/")
	if model == "" {
		model = "fal-ai/stable-video-diffusion"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		simulate:   opts.Simulation,
		credits:    opts.Credits,
	}
}

type submitPayload struct {
	ImageURL       string  `json:"image_url"`
	Prompt         string  `json:"prompt"`
	MotionStrength float64 `json:"motion_strength"`
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
}

type statusResponse struct {
	Status      string          `json:"status"`
	ResponseURL string          `json:"response_url,omitempty"`
	Progress    int             `json:"progress,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Metrics     struct {
		InferenceTimeMS int64 `json:"inference_time_ms,omitempty"`
	} `json:"metrics,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// Submit issues a generation request for the given public image URL and style
// key. Unknown styles fail before any network call. When simulation is forced
// or the credit source denies real submissions, a synthetic ref is returned
// without touching the network.
func (c *Client) Submit(ctx context.Context, imageURL, style string) (*SubmitResult, error) {
	styleCfg, ok := StyleConfigFor(style)
	if !ok {
		return nil, newError(CodeInvalidInput, "unknown style %q", style)
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, newError(CodeInvalidInput, "image url is required")
	}

	if c.simulate {
		ref := RequestRef{Kind: RefSimulatedExplicit, ID: uuid.NewString()}
		c.logger.Info().Str("request_id", ref.String()).Str("style", style).Msg("fal: simulation mode, skipping submit")
		return &SubmitResult{Ref: ref, ProviderStatus: "COMPLETED"}, nil
	}
	if c.credits != nil && !c.credits.CanSubmitReal() {
		ref := RequestRef{Kind: RefSimulatedLimit, ID: uuid.NewString()}
		c.logger.Warn().Str("request_id", ref.String()).Str("style", style).Msg("fal: credit limit reached, skipping submit")
		return &SubmitResult{Ref: ref, ProviderStatus: "COMPLETED"}, nil
	}

	var resp submitResponse
	payload := submitPayload{ImageURL: imageURL, Prompt: styleCfg.Prompt, MotionStrength: styleCfg.MotionStrength}
	if err := c.invoke(ctx, http.MethodPost, c.baseURL+"/"+c.model, payload, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		return nil, newError(CodeUnknown, "submit response missing request id")
	}
	c.logger.Info().Str("request_id", resp.RequestID).Str("style", style).Msg("fal: submitted")
	return &SubmitResult{
		Ref:            RequestRef{Kind: RefReal, ID: resp.RequestID},
		ProviderStatus: resp.Status,
	}, nil
}

// CheckStatus fetches and normalizes the provider status for a request.
// Synthetic refs resolve completed immediately with the placeholder output.
func (c *Client) CheckStatus(ctx context.Context, requestID string) (*StatusResult, error) {
	ref := ParseRequestID(requestID)
	if ref.Simulated() {
		return &StatusResult{
			Status:          StatusCompleted,
			OutputURL:       PlaceholderVideoURL,
			ProgressPercent: 100,
		}, nil
	}

	var resp statusResponse
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, c.model, ref.ID)
	if err := c.invoke(ctx, http.MethodGet, statusURL, nil, &resp); err != nil {
		return nil, err
	}

	result := &StatusResult{
		Status:           normalizeStatus(resp.Status),
		ProgressPercent:  resp.Progress,
		ProcessingTimeMS: resp.Metrics.InferenceTimeMS,
	}

	switch result.Status {
	case StatusFailed:
		result.ErrorMessage = providerErrorMessage(resp)
		result.ErrorCode = CodeUnknown
	case StatusCompleted:
		result.ProgressPercent = 100
		result.OutputURL = extractOutputURL(resp.Output)
		// A second fetch to the response URL enriches the output, but a
		// failure there must not block completion.
		if resp.ResponseURL != "" {
			if url, err := c.fetchResponseOutput(ctx, resp.ResponseURL); err != nil {
				c.logger.Warn().Err(err).Str("request_id", ref.ID).Msg("fal: response fetch failed, using status output")
			} else if url != "" {
				result.OutputURL = url
			}
		}
		if result.OutputURL == "" {
			result.Status = StatusFailed
			result.ErrorMessage = "completed response missing video output"
			result.ErrorCode = CodeUnknown
		}
	}

	return result, nil
}

// Cancel makes a best-effort attempt to cancel an in-flight request. It never
// returns an error; network failure simply yields false.
func (c *Client) Cancel(ctx context.Context, requestID string) bool {
	ref := ParseRequestID(requestID)
	if ref.Simulated() {
		return true
	}
	cancelURL := fmt.Sprintf("%s/%s/requests/%s/cancel", c.baseURL, c.model, ref.ID)
	if err := c.invoke(ctx, http.MethodPut, cancelURL, nil, &struct{}{}); err != nil {
		c.logger.Warn().Err(err).Str("request_id", ref.ID).Msg("fal: cancel failed")
		return false
	}
	return true
}

func (c *Client) fetchResponseOutput(ctx context.Context, responseURL string) (string, error) {
	var payload map[string]any
	if err := c.invoke(ctx, http.MethodGet, responseURL, nil, &payload); err != nil {
		return "", err
	}
	return extractOutputURL(payload), nil
}

func (c *Client) invoke(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if code := CodeOf(err); code == CodeTimeout {
			return &Error{Code: CodeTimeout, Message: err.Error()}
		}
		return fmt.Errorf("invoke fal: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode fal response: %w", err)
		}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var apiErr struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		if apiErr.Error.Message != "" {
			return apiErr.Error.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func providerErrorMessage(resp statusResponse) string {
	if len(resp.Error) > 0 {
		var msg string
		if err := json.Unmarshal(resp.Error, &msg); err == nil && msg != "" {
			return msg
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		return string(resp.Error)
	}
	if resp.Detail != "" {
		return resp.Detail
	}
	return "generation failed"
}

func normalizeStatus(provider string) Status {
	switch strings.ToUpper(strings.TrimSpace(provider)) {
	case "COMPLETED", "OK", "SUCCESS", "SUCCEEDED":
		return StatusCompleted
	case "FAILED", "ERROR", "CANCELLED", "CANCELED":
		return StatusFailed
	case "IN_QUEUE", "IN_PROGRESS", "QUEUED", "PROCESSING", "PENDING", "":
		return StatusProcessing
	default:
		return StatusProcessing
	}
}

// outputURLPaths lists, in priority order, where the video URL may live in a
// provider payload. The provider has used several shapes across versions.
var outputURLPaths = [][]string{
	{"video", "url"},
	{"video_url"},
	{"output", "video", "url"},
	{"output", "video_url"},
	{"output", "url"},
	{"result", "url"},
	{"url"},
}

func extractOutputURL(payload map[string]any) string {
	for _, path := range outputURLPaths {
		if url, ok := lookupString(payload, path); ok && url != "" {
			return url
		}
	}
	return ""
}

func lookupString(payload map[string]any, path []string) (string, bool) {
	current := payload
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			s, ok := value.(string)
			return s, ok
		}
		current, ok = value.(map[string]any)
		if !ok {
			return "", false
		}
	}
	return "", false
}
