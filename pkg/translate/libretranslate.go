package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/metrics"
)

const (
	// DefaultLibreTranslateURL is the default base URL for LibreTranslate API.
	DefaultLibreTranslateURL = "http://localhost:5000"
	// DefaultLibreTranslateTimeout is the default timeout for HTTP requests.
	DefaultLibreTranslateTimeout = 60 * time.Second
)

// LibreTranslateClient implements the Translator interface using LibreTranslate.
// LibreTranslate is a self-hosted, open-source machine translation API, handy
// for local development without cloud credentials.
type LibreTranslateClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewLibreTranslateClient creates a new LibreTranslate client.
// baseURL should point to the LibreTranslate server (default: http://localhost:5000).
func NewLibreTranslateClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *LibreTranslateClient {
	if baseURL == "" {
		baseURL = DefaultLibreTranslateURL
	}
	if timeout == 0 {
		timeout = DefaultLibreTranslateTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LibreTranslateClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// translateRequest represents a LibreTranslate API request.
type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"` // e.g., "en"
	Target string `json:"target"` // e.g., "fil"
	Format string `json:"format"` // "text" or "html"
}

// translateResponse represents a LibreTranslate API response.
type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

type detectRequest struct {
	Q string `json:"q"`
}

type detectResponse struct {
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Detect detects the language of text.
func (c *LibreTranslateClient) Detect(ctx context.Context, text string) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"text_length": len(text),
	}).Debug("Detecting language with LibreTranslate")

	var results []detectResponse
	if err := c.postJSON(ctx, "detect", "/detect", detectRequest{Q: text}, len(text), &results); err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].Language == "" {
		return "", apperror.New(apperror.MalformedUpstreamResponse, "detect returned no language")
	}

	c.logger.WithFields(logrus.Fields{
		"language":   results[0].Language,
		"confidence": results[0].Confidence,
	}).Info("Language detected")

	return results[0].Language, nil
}

// Translate translates text from source language to target language.
func (c *LibreTranslateClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"source_lang": sourceLang,
		"target_lang": targetLang,
		"text_length": len(text),
	}).Debug("Translating text with LibreTranslate")

	reqPayload := translateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		Format: "text",
	}

	var ltResp translateResponse
	if err := c.postJSON(ctx, "translate", "/translate", reqPayload, len(text), &ltResp); err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"source_lang": sourceLang,
		"target_lang": targetLang,
	}).Info("Translation completed successfully")

	return ltResp.TranslatedText, nil
}

func (c *LibreTranslateClient) postJSON(ctx context.Context, op, path string, payload any, size int, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		c.logger.WithError(err).Error("Failed to encode LibreTranslate request")
		return fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create LibreTranslate request")
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream("libretranslate", op, time.Since(startTime), size, err)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("LibreTranslate request failed")
		return apperror.FromTransport(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)
	c.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
	}).Debug("LibreTranslate request completed")

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		statusErr := apperror.FromStatus(resp.StatusCode, string(bodyBytes))
		metrics.RecordUpstream("libretranslate", op, duration, size, statusErr)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("LibreTranslate request returned non-OK status")
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordUpstream("libretranslate", op, duration, size, err)
		c.logger.WithError(err).Error("Failed to decode LibreTranslate response")
		return apperror.Wrap(apperror.MalformedUpstreamResponse, "decode response", err)
	}

	metrics.RecordUpstream("libretranslate", op, duration, size, nil)
	return nil
}

// CheckHealth verifies that LibreTranslate is ready and operational.
func (c *LibreTranslateClient) CheckHealth(ctx context.Context) error {
	c.logger.Debug("Checking LibreTranslate health")

	// Use the /languages endpoint as a health check
	url := c.baseURL + "/languages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create health check request")
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Health check request failed")
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
		}).Error("Health check returned non-OK status")
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	c.logger.Debug("LibreTranslate health check passed")
	return nil
}
