package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/metrics"
)

const (
	// DefaultAzureTimeout bounds a single HTTP request to the service.
	DefaultAzureTimeout = 60 * time.Second

	analyzeAPIVersion   = "2023-07-31"
	analyzeModel        = "prebuilt-document"
	defaultPollInterval = time.Second
)

// AzureClient extracts text with the Azure Form Recognizer prebuilt
// document model. Analysis is asynchronous: the document is submitted and
// the returned operation is polled until it finishes.
type AzureClient struct {
	endpoint     string
	key          string
	httpClient   *http.Client
	logger       *logrus.Logger
	pollInterval time.Duration
}

// NewAzureClient creates a Form Recognizer client.
func NewAzureClient(endpoint, key string, timeout time.Duration, logger *logrus.Logger) *AzureClient {
	if timeout == 0 {
		timeout = DefaultAzureTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &AzureClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

type analyzeResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Pages []struct {
			PageNumber int `json:"pageNumber"`
			Lines      []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractText submits data for analysis and waits for the result.
func (c *AzureClient) ExtractText(ctx context.Context, data []byte, kind Kind) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"kind":        kind,
		"buffer_size": len(data),
	}).Debug("Starting document analysis")

	if len(data) == 0 {
		return "", apperror.New(apperror.ExtractionFailed, "empty document")
	}

	start := time.Now()
	opURL, err := c.submit(ctx, data)
	if err != nil {
		metrics.RecordUpstream("form_recognizer", "analyze", time.Since(start), len(data), err)
		return "", apperror.Wrap(apperror.ExtractionFailed, "failed to process document", err)
	}

	result, err := c.poll(ctx, opURL)
	metrics.RecordUpstream("form_recognizer", "analyze", time.Since(start), len(data), err)
	if err != nil {
		return "", apperror.Wrap(apperror.ExtractionFailed, "failed to process document", err)
	}

	pages := make([]Page, 0, len(result.AnalyzeResult.Pages))
	for _, p := range result.AnalyzeResult.Pages {
		page := Page{Lines: make([]string, 0, len(p.Lines))}
		for _, l := range p.Lines {
			page.Lines = append(page.Lines, l.Content)
		}
		pages = append(pages, page)
	}

	if len(pages) == 0 {
		c.logger.Warn("No pages found in the document")
		return "", nil
	}

	text := JoinPages(pages)
	c.logger.WithFields(logrus.Fields{
		"page_count":  len(pages),
		"text_length": len(text),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Text extraction completed")

	return text, nil
}

func (c *AzureClient) submit(ctx context.Context, data []byte) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", c.endpoint, analyzeModel, analyzeAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Document analysis request failed")
		return "", apperror.FromTransport(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(body),
		}).Error("Document analysis returned unexpected status")
		return "", apperror.FromStatus(resp.StatusCode, string(body))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", apperror.New(apperror.MalformedUpstreamResponse, "missing Operation-Location header")
	}
	return opURL, nil
}

func (c *AzureClient) poll(ctx context.Context, opURL string) (*analyzeResult, error) {
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperror.FromTransport(fmt.Errorf("poll failed: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, apperror.FromStatus(resp.StatusCode, string(body))
		}

		var result analyzeResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, apperror.Wrap(apperror.MalformedUpstreamResponse, "decode analyze result", err)
		}

		c.logger.WithFields(logrus.Fields{
			"status":  result.Status,
			"attempt": attempt,
		}).Debug("Polled document analysis")

		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			if result.Error != nil {
				return nil, fmt.Errorf("analysis failed: %s: %s", result.Error.Code, result.Error.Message)
			}
			return nil, fmt.Errorf("analysis failed")
		}

		wait := c.pollInterval
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}

		select {
		case <-ctx.Done():
			return nil, apperror.FromTransport(ctx.Err())
		case <-time.After(wait):
		}
	}
}
