// Package llm provides the generative completion client used for cultural
// adaptation, summaries, quizzes and feedback. It talks to an Azure OpenAI
// chat completions deployment through sashabaranov/go-openai.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/breaker"
	"github.com/dasmlab/kultura/pkg/metrics"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 60 * time.Second

// Request is one system+user chat completion.
type Request struct {
	// Operation labels the call in logs and metrics (e.g. "adapt", "quiz").
	Operation   string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer generates text from a chat-style prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds configuration for creating a Client.
type Config struct {
	// Endpoint is the Azure OpenAI resource endpoint, or an OpenAI
	// compatible base URL when Deployment is empty.
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// Client implements Completer over go-openai.
type Client struct {
	client     *openai.Client
	deployment string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewClient creates a completion client. With a deployment set, requests
// are routed to {endpoint}/openai/deployments/{deployment}/chat/completions.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	var oc openai.ClientConfig
	if cfg.Deployment != "" {
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		oc.AzureModelMapperFunc = func(model string) string {
			return deployment
		}
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			oc.BaseURL = cfg.Endpoint
		}
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Deployment
	if model == "" {
		model = openai.GPT4oMini
	}

	cfg.Logger.WithFields(logrus.Fields{
		"endpoint":   cfg.Endpoint,
		"deployment": model,
		"timeout":    cfg.Timeout.String(),
	}).Info("Creating completion client")

	return &Client{
		client:     openai.NewClientWithConfig(oc),
		deployment: model,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// Complete sends the prompt and returns the trimmed completion text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.WithFields(logrus.Fields{
		"operation":  req.Operation,
		"input_len":  len(req.User),
		"max_tokens": req.MaxTokens,
	}).Debug("Sending chat completion request")

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	duration := time.Since(start)
	metrics.RecordUpstream("completion", req.Operation, duration, len(req.User), err)

	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"operation":   req.Operation,
			"duration_ms": duration.Milliseconds(),
		}).Error("Chat completion request failed")
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperror.New(apperror.MalformedUpstreamResponse, "completion returned no choices")
	}

	c.logger.WithFields(logrus.Fields{
		"operation":   req.Operation,
		"duration_ms": duration.Milliseconds(),
		"tokens_used": resp.Usage.TotalTokens,
	}).Info("Chat completion completed")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps go-openai errors onto the upstream taxonomy, keeping the
// provider's message as the cause.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	return apperror.FromTransport(fmt.Errorf("completion request: %w", err))
}

func statusError(code int, err error) error {
	switch code {
	case 0:
		return apperror.FromTransport(err)
	case http.StatusTooManyRequests:
		return apperror.Wrap(apperror.UpstreamRateLimited, "completion rate limit exceeded", err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return apperror.Wrap(apperror.UpstreamTimeout, "completion timed out", err)
	}
	return &apperror.StatusError{Code: code, Err: err}
}

// breakerCompleter guards a Completer with a circuit breaker.
type breakerCompleter struct {
	next Completer
	b    *breaker.Breaker
}

// WithBreaker returns a Completer that fails fast while b is open.
func WithBreaker(next Completer, b *breaker.Breaker) Completer {
	return &breakerCompleter{next: next, b: b}
}

func (c *breakerCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	err := c.b.Do(func() error {
		var err error
		out, err = c.next.Complete(ctx, req)
		return err
	})
	return out, err
}
