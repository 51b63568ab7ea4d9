package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultModel       = "mistral-medium"
	defaultMaxTokens   = 512
	defaultTemperature = 0.3
	defaultConcurrency = 3
	defaultMaxRetries  = 2
	defaultBackoffBase = time.Second
	defaultThreshold   = 4
	defaultRecovery    = 60 * time.Second
	requestTimeout     = 60 * time.Second
	maxBackoff         = 60 * time.Second
	maxResponseBytes   = 1 << 20
)

// Turn is a single message in a chat exchange.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	APIURL           string
	APIKey           string
	DefaultModel     string
	FallbackModels   []string
	MaxConcurrency   int64
	MaxRetries       int
	BackoffBase      time.Duration
	FailureThreshold int
	RecoveryWindow   time.Duration
	HTTPClient       *http.Client
}

// Client calls the upstream chat-completion API with bounded concurrency,
// retries on transient failures, and falls back to smaller models when the
// requested one is refused.
type Client struct {
	apiURL         string
	apiKey         string
	defaultModel   string
	fallbackModels []string
	maxRetries     int
	backoffBase    time.Duration
	sem            *semaphore.Weighted
	breaker        *CircuitBreaker
	httpClient     *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key required")
	}

	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		model = defaultModel
	}
	fallbacks := cfg.FallbackModels
	if fallbacks == nil {
		// smaller models first to dodge capacity limits
		fallbacks = []string{"mistral-small", "mistral-tiny"}
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	recovery := cfg.RecoveryWindow
	if recovery <= 0 {
		recovery = defaultRecovery
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		apiURL:         strings.TrimRight(cfg.APIURL, "/"),
		apiKey:         cfg.APIKey,
		defaultModel:   model,
		fallbackModels: fallbacks,
		maxRetries:     retries,
		backoffBase:    backoffBase,
		sem:            semaphore.NewWeighted(concurrency),
		breaker:        NewCircuitBreaker(threshold, recovery),
		httpClient:     httpClient,
	}, nil
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

type ChatOptions struct {
	Model     string
	MaxTokens int
	// Temperature of nil means the client default. A pointer so that an
	// explicit 0 survives to the wire.
	Temperature *float64
}

// Temperature is a convenience for building ChatOptions literals.
func Temperature(v float64) *float64 {
	return &v
}

type chatRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Chat performs a completion call and returns the extracted assistant text.
// Errors wrap one of the package sentinels.
func (c *Client) Chat(ctx context.Context, turns []Turn, opts ChatOptions) (string, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	payload := chatRequest{
		Model:       model,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	body, err := c.requestWithRetry(ctx, payload)
	if err == nil {
		return extractText(body), nil
	}

	if !errors.Is(err, ErrInvalidModel) || len(c.fallbackModels) == 0 {
		return "", err
	}

	log.Printf("model %s refused, attempting fallbacks %v", model, c.fallbackModels)
	lastErr := err
	for _, fallback := range c.fallbackModels {
		if fallback == model {
			continue
		}
		payload.Model = fallback
		body, err := c.requestWithRetry(ctx, payload)
		if err == nil {
			return extractText(body), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) requestWithRetry(ctx context.Context, payload chatRequest) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	// maxRetries counts retries after the initial attempt
	attempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !c.breaker.AllowsRequest() {
			return nil, ErrServiceUnavailable
		}

		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			c.apiURL+"/v1/chat/completions",
			bytes.NewReader(encoded),
		)
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("Accept", "application/json")
		request.Header.Set("Authorization", "Bearer "+c.apiKey)

		response, err := c.httpClient.Do(request)
		if err != nil {
			c.breaker.RecordFailure()
			lastErr = fmt.Errorf("%w: %v", ErrUpstreamTransient, err)
			log.Printf("completion request error attempt=%d err=%v", attempt, err)
			if attempt == attempts {
				break
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
		_ = response.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			lastErr = fmt.Errorf("%w: %v", ErrUpstreamTransient, readErr)
			if attempt == attempts {
				break
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		status := response.StatusCode
		if status == http.StatusOK {
			c.breaker.RecordSuccess()
			return body, nil
		}

		if status == http.StatusTooManyRequests ||
			status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable {
			c.breaker.RecordFailure()
			lastErr = fmt.Errorf("%w: status %d", ErrUpstreamTransient, status)
			log.Printf("completion transient status=%d attempt=%d model=%s", status, attempt, payload.Model)
			if attempt == attempts {
				break
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if status == http.StatusBadRequest && isInvalidModelBody(body) {
			// caller configuration issue, not upstream degradation; the
			// breaker stays untouched so fallbacks start from a clean slate
			return nil, fmt.Errorf("%w: %s", ErrInvalidModel, payload.Model)
		}

		c.breaker.RecordFailure()
		log.Printf("completion non-retriable status=%d model=%s", status, payload.Model)
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamRejected, status)
	}

	log.Printf("completion failed after retries model=%s err=%v", payload.Model, lastErr)
	return nil, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.backoffBase * (1 << (attempt - 1))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	delay = time.Duration(float64(delay) * rand.Float64())

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type upstreamErrorBody struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// isInvalidModelBody sniffs the known "model not found" signals. The
// upstream schema here is not a stable contract, so both the message text
// and the structured code are accepted.
func isInvalidModelBody(body []byte) bool {
	payload := upstreamErrorBody{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}

	if strings.EqualFold(payload.Error.Code, "model_not_found") {
		return true
	}

	message := payload.Message
	if message == "" {
		message = payload.Error.Message
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "invalid model") || strings.Contains(lower, "model not found")
}
