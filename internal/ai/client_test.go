package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, upstreamURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		APIURL:         upstreamURL,
		APIKey:         "test-key",
		DefaultModel:   "big-model",
		FallbackModels: []string{"small-model"},
		MaxRetries:     2,
		BackoffBase:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func completionJSON(text string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, text)
}

func TestChatRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionJSON("bonjour")))
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	text, err := client.Chat(context.Background(), []Turn{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if text != "bonjour" {
		t.Fatalf("unexpected completion text %q", text)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 underlying attempts, got %d", got)
	}
	if got := client.Breaker().FailureCount(); got != 0 {
		t.Fatalf("expected breaker failure count reset to 0, got %d", got)
	}
}

func TestChatTemperatureZeroReachesTheWire(t *testing.T) {
	var captured chatRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionJSON("ok")))
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	turns := []Turn{{Role: "user", Content: "hi"}}

	if _, err := client.Chat(context.Background(), turns, ChatOptions{Temperature: Temperature(0)}); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if captured.Temperature != 0 {
		t.Fatalf("expected requested temperature 0, got %v", captured.Temperature)
	}

	if _, err := client.Chat(context.Background(), turns, ChatOptions{}); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if captured.Temperature != defaultTemperature {
		t.Fatalf("expected default temperature %v, got %v", defaultTemperature, captured.Temperature)
	}
}

func TestChatExhaustsRetries(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	_, err := client.Chat(context.Background(), []Turn{{Role: "user", Content: "hi"}}, ChatOptions{})
	if !errors.Is(err, ErrUpstreamTransient) {
		t.Fatalf("expected ErrUpstreamTransient, got %v", err)
	}
}

func TestChatFallsBackOnInvalidModel(t *testing.T) {
	var requestedModels []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := chatRequest{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requestedModels = append(requestedModels, payload.Model)

		if payload.Model == "big-model" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid model: big-model"}`))
			return
		}
		_, _ = w.Write([]byte(completionJSON("fallback answer")))
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	text, err := client.Chat(context.Background(), []Turn{{Role: "user", Content: "hi"}}, ChatOptions{Model: "big-model"})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if text != "fallback answer" {
		t.Fatalf("unexpected completion text %q", text)
	}
	if len(requestedModels) != 2 || requestedModels[0] != "big-model" || requestedModels[1] != "small-model" {
		t.Fatalf("unexpected model sequence %v", requestedModels)
	}
	if got := client.Breaker().FailureCount(); got != 0 {
		t.Fatalf("invalid-model must not count as a breaker failure, got %d", got)
	}
}

func TestChatInvalidModelWithoutWorkingFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"model_not_found","message":"no such model"}}`))
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	_, err := client.Chat(context.Background(), []Turn{{Role: "user", Content: "hi"}}, ChatOptions{})
	if !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel after fallbacks exhausted, got %v", err)
	}
}

func TestChatFailsFastWhileBreakerOpen(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	client, err := NewClient(Config{
		APIURL:           upstream.URL,
		APIKey:           "test-key",
		FallbackModels:   []string{},
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		FailureThreshold: 2,
		RecoveryWindow:   time.Hour,
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	if _, err := client.Chat(context.Background(), nil, ChatOptions{}); !errors.Is(err, ErrUpstreamTransient) {
		t.Fatalf("expected transient failure, got %v", err)
	}

	attemptsBefore := calls.Load()
	if _, err := client.Chat(context.Background(), nil, ChatOptions{}); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable while open, got %v", err)
	}
	if calls.Load() != attemptsBefore {
		t.Fatal("no network call may be attempted while the breaker is open")
	}
}

func TestChatRejectsNonRetriableStatus(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	client := newTestClient(t, upstream.URL)
	_, err := client.Chat(context.Background(), nil, ChatOptions{})
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("non-retriable status must not be retried, got %d calls", calls.Load())
	}
}

func TestExtractTextShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"plain string content", `{"choices":[{"message":{"content":" hello "}}]}`, "hello"},
		{"structured content", `{"choices":[{"message":{"content":{"text":"nested"}}}]}`, "nested"},
		{"choice text", `{"choices":[{"text":"legacy"}]}`, "legacy"},
		{"unknown shape", `{"result":"???"}`, `{"result":"???"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractText([]byte(tc.body)); got != tc.want {
				t.Fatalf("extractText(%s) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestIsInvalidModelBody(t *testing.T) {
	if !isInvalidModelBody([]byte(`{"message":"Invalid model: giant"}`)) {
		t.Fatal("message-field signal should match")
	}
	if !isInvalidModelBody([]byte(`{"error":{"code":"model_not_found"}}`)) {
		t.Fatal("structured code signal should match")
	}
	if isInvalidModelBody([]byte(`{"message":"quota exceeded"}`)) {
		t.Fatal("unrelated message must not match")
	}
	if isInvalidModelBody([]byte(strings.Repeat("x", 10))) {
		t.Fatal("non-json body must not match")
	}
}
