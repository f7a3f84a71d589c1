package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/breaker"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type chatBody struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func TestCompleteAzureDeployment(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	var body chatBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		json.NewDecoder(r.Body).Decode(&body)
		writeCompletion(w, "  Magandang gawa!  ")
	}))
	defer srv.Close()

	c := NewClient(Config{
		Endpoint:   srv.URL,
		APIKey:     "secret",
		Deployment: "gpt-dep",
		APIVersion: "2024-02-15-preview",
		Logger:     quietLogger(),
	})

	out, err := c.Complete(context.Background(), Request{
		Operation:   "feedback",
		System:      "system prompt",
		User:        "user prompt",
		Temperature: 0.7,
		MaxTokens:   30,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out != "Magandang gawa!" {
		t.Errorf("Complete() = %q, want trimmed content", out)
	}
	if gotPath != "/openai/deployments/gpt-dep/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotVersion != "2024-02-15-preview" {
		t.Errorf("api-version = %q", gotVersion)
	}
	if gotKey != "secret" {
		t.Errorf("api-key header = %q", gotKey)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Content != "user prompt" {
		t.Errorf("unexpected messages: %+v", body.Messages)
	}
	if body.MaxTokens != 30 {
		t.Errorf("max_tokens = %d, want 30", body.MaxTokens)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":"429","message":"Rate limit is exceeded"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Deployment: "d", Logger: quietLogger()})
	_, err := c.Complete(context.Background(), Request{Operation: "adapt", User: "x"})
	if !apperror.Has(err, apperror.UpstreamRateLimited) {
		t.Fatalf("expected UpstreamRateLimited, got %v", err)
	}
	if !strings.Contains(err.Error(), "Rate limit is exceeded") {
		t.Errorf("upstream message lost: %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		writeCompletion(w, "late")
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Deployment: "d", Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	_, err := c.Complete(context.Background(), Request{Operation: "summary", User: "x"})
	if !apperror.Has(err, apperror.UpstreamTimeout) {
		t.Fatalf("expected UpstreamTimeout, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Deployment: "d", Logger: quietLogger()})
	_, err := c.Complete(context.Background(), Request{User: "x"})
	if apperror.KindOf(err) != apperror.MalformedUpstreamResponse {
		t.Fatalf("expected MalformedUpstreamResponse, got %v", err)
	}
}

type failingCompleter struct{ calls int }

func (f *failingCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.calls++
	return "", apperror.FromStatus(http.StatusBadGateway, "upstream down")
}

func TestWithBreaker(t *testing.T) {
	inner := &failingCompleter{}
	c := WithBreaker(inner, breaker.New(breaker.Settings{Name: "completion", ConsecutiveFailures: 1, Logger: quietLogger()}))

	c.Complete(context.Background(), Request{})
	_, err := c.Complete(context.Background(), Request{})
	if !apperror.Has(err, apperror.UpstreamUnavailable) {
		t.Fatalf("expected UpstreamUnavailable, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}
