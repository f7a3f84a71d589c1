package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/metrics"
)

const (
	// DefaultAzureURL is the global Azure Translator endpoint.
	DefaultAzureURL = "https://api.cognitive.microsofttranslator.com"
	// DefaultAzureTimeout is the default timeout for HTTP requests.
	DefaultAzureTimeout = 60 * time.Second
	// AzureMaxRequestChars is the per-request text limit of Translator v3.
	AzureMaxRequestChars = 50000

	azureAPIVersion = "3.0"
)

// azureCodes maps support table codes to the codes Azure Translator expects
// where the two differ.
var azureCodes = map[string]string{
	"zh": "zh-Hans",
}

// AzureClient implements the Translator interface using Azure Translator v3.
type AzureClient struct {
	baseURL    string
	key        string
	region     string
	httpClient *http.Client
	logger     *logrus.Logger
	maxChars   int
}

// NewAzureClient creates a new Azure Translator client.
// region may be empty for global (non regional) resources.
func NewAzureClient(baseURL, key, region string, timeout time.Duration, logger *logrus.Logger) *AzureClient {
	if baseURL == "" {
		baseURL = DefaultAzureURL
	}
	if timeout == 0 {
		timeout = DefaultAzureTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &AzureClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		region:  region,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:   logger,
		maxChars: AzureMaxRequestChars,
	}
}

// azureText is the request element for both /detect and /translate.
type azureText struct {
	Text string `json:"Text"`
}

type azureDetectResult struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type azureTranslateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Detect detects the language of text.
func (c *AzureClient) Detect(ctx context.Context, text string) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"text_length": len(text),
	}).Debug("Detecting language with Azure Translator")

	sample := text
	if len(sample) > c.maxChars {
		sample = sample[:c.maxChars]
	}

	var results []azureDetectResult
	if err := c.post(ctx, "detect", "/detect", url.Values{}, sample, &results); err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].Language == "" {
		return "", apperror.New(apperror.MalformedUpstreamResponse, "detect returned no language")
	}

	c.logger.WithFields(logrus.Fields{
		"language": results[0].Language,
		"score":    results[0].Score,
	}).Info("Language detected")

	return results[0].Language, nil
}

// Translate translates text from source language to target language.
// Text longer than the per-request limit is translated chunk by chunk,
// sequentially.
func (c *AzureClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	params := url.Values{}
	params.Set("from", toAzureCode(sourceLang))
	params.Set("to", toAzureCode(targetLang))

	chunks := SplitIntoChunks(text, c.maxChars)

	c.logger.WithFields(logrus.Fields{
		"source_lang": sourceLang,
		"target_lang": targetLang,
		"text_length": len(text),
		"chunks":      len(chunks),
	}).Debug("Translating text with Azure Translator")

	translated := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		var results []azureTranslateResult
		if err := c.post(ctx, "translate", "/translate", params, chunk, &results); err != nil {
			if len(chunks) > 1 {
				return "", fmt.Errorf("chunk %d translation failed: %w", i+1, err)
			}
			return "", err
		}
		if len(results) == 0 || len(results[0].Translations) == 0 {
			return "", apperror.New(apperror.MalformedUpstreamResponse, "translate returned no translations")
		}
		translated = append(translated, results[0].Translations[0].Text)
	}

	return joinChunks(translated), nil
}

// CheckHealth verifies that Azure Translator accepts our credentials by
// running a one word detection.
func (c *AzureClient) CheckHealth(ctx context.Context) error {
	c.logger.Debug("Checking Azure Translator health")

	if _, err := c.Detect(ctx, "hello"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	c.logger.Debug("Azure Translator health check passed")
	return nil
}

// post sends a single-element text array to path and decodes the JSON
// array response into out.
func (c *AzureClient) post(ctx context.Context, op, path string, params url.Values, text string, out any) error {
	params.Set("api-version", azureAPIVersion)

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode([]azureText{{Text: text}}); err != nil {
		c.logger.WithError(err).Error("Failed to encode translator request")
		return fmt.Errorf("encode request: %w", err)
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, buf)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create translator request")
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	if c.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.region)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream("translator", op, time.Since(startTime), len(text), err)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"path": path,
		}).Error("Translator request failed")
		return apperror.FromTransport(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)
	c.logger.WithFields(logrus.Fields{
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
	}).Debug("Translator request completed")

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		statusErr := apperror.FromStatus(resp.StatusCode, string(bodyBytes))
		metrics.RecordUpstream("translator", op, duration, len(text), statusErr)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("Translator request returned non-OK status")
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordUpstream("translator", op, duration, len(text), err)
		c.logger.WithError(err).Error("Failed to decode translator response")
		return apperror.Wrap(apperror.MalformedUpstreamResponse, "decode response", err)
	}

	metrics.RecordUpstream("translator", op, duration, len(text), nil)
	return nil
}

func toAzureCode(code string) string {
	if mapped, ok := azureCodes[code]; ok {
		return mapped
	}
	return code
}
