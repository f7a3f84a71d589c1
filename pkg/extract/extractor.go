// Package extract turns uploaded documents (PDFs and images) into plain
// text for the localization pipeline.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind is the type of an uploaded document.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// KindFromFilename maps an upload's extension to a Kind.
// Only .pdf, .jpg, .jpeg and .png are accepted.
func KindFromFilename(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, true
	case ".jpg", ".jpeg", ".png":
		return KindImage, true
	}
	return "", false
}

// Extractor extracts plain text from a document.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, kind Kind) (string, error)
}

// Page is the recognized text of one page, line by line.
type Page struct {
	Lines []string
}

// JoinPages renders pages as the pipeline expects them: each line
// followed by a newline, and one extra newline after every page.
func JoinPages(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		for _, line := range p.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// EngineType selects the extraction backend.
type EngineType string

const (
	// EngineAzure uses the Azure document analysis service.
	EngineAzure EngineType = "azure"
	// EngineLocal parses PDFs in process.
	EngineLocal EngineType = "local"
)

// Config holds configuration for creating an Extractor.
type Config struct {
	Engine   EngineType
	Endpoint string
	Key      string
	Timeout  time.Duration
	Logger   *logrus.Logger
}

// NewExtractor creates an Extractor based on the configuration.
func NewExtractor(cfg Config) (Extractor, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine": cfg.Engine,
	}).Info("Creating extractor instance")

	switch cfg.Engine {
	case EngineAzure:
		if cfg.Endpoint == "" || cfg.Key == "" {
			return nil, fmt.Errorf("form recognizer endpoint and key are required")
		}
		return NewAzureClient(cfg.Endpoint, cfg.Key, cfg.Timeout, cfg.Logger), nil
	case EngineLocal:
		return NewLocalExtractor(cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unknown extraction engine: %s", cfg.Engine)
	}
}

// ParseEngineType parses a string into an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(s) {
	case "azure":
		return EngineAzure, nil
	case "local":
		return EngineLocal, nil
	default:
		return "", fmt.Errorf("unknown extract engine: %s (supported: azure, local)", s)
	}
}
