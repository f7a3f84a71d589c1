package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/breaker"
)

// EngineType represents the type of translation engine to use.
type EngineType string

const (
	// EngineAzure uses Azure Translator as the backend.
	EngineAzure EngineType = "azure"
	// EngineLibreTranslate uses LibreTranslate as the backend.
	EngineLibreTranslate EngineType = "libretranslate"
)

// Config holds configuration for creating a Translator instance.
type Config struct {
	// Engine specifies which translation engine to use.
	Engine EngineType
	// BaseURL is the base URL for the translation engine API.
	BaseURL string
	// Key and Region authenticate against Azure Translator.
	Key    string
	Region string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// Breaker, when set, guards every call with a circuit breaker.
	Breaker *breaker.Breaker
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewTranslator creates a new Translator instance based on the configuration.
func NewTranslator(cfg Config) (Translator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
	}).Info("Creating translator instance")

	var t Translator
	switch cfg.Engine {
	case EngineAzure:
		if cfg.Key == "" {
			return nil, fmt.Errorf("azure translator key is required")
		}
		t = NewAzureClient(cfg.BaseURL, cfg.Key, cfg.Region, cfg.Timeout, cfg.Logger)
	case EngineLibreTranslate:
		t = NewLibreTranslateClient(cfg.BaseURL, cfg.Timeout, cfg.Logger)
	default:
		cfg.Logger.WithFields(logrus.Fields{
			"engine": cfg.Engine,
		}).Error("Unknown translation engine")
		return nil, fmt.Errorf("unknown translation engine: %s", cfg.Engine)
	}

	if cfg.Breaker != nil {
		t = WithBreaker(t, cfg.Breaker)
	}
	return t, nil
}

// ParseEngineType parses a string into an EngineType.
// Returns an error if the string is not a valid engine type.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(s) {
	case "azure":
		return EngineAzure, nil
	case "libretranslate":
		return EngineLibreTranslate, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s (supported: azure, libretranslate)", s)
	}
}

// breakerTranslator guards a Translator with a circuit breaker.
type breakerTranslator struct {
	next Translator
	b    *breaker.Breaker
}

// WithBreaker returns a Translator that fails fast while b is open.
// Health checks bypass the breaker so probes still see the real backend.
func WithBreaker(next Translator, b *breaker.Breaker) Translator {
	return &breakerTranslator{next: next, b: b}
}

func (t *breakerTranslator) Detect(ctx context.Context, text string) (string, error) {
	var out string
	err := t.b.Do(func() error {
		var err error
		out, err = t.next.Detect(ctx, text)
		return err
	})
	return out, err
}

func (t *breakerTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var out string
	err := t.b.Do(func() error {
		var err error
		out, err = t.next.Translate(ctx, text, sourceLang, targetLang)
		return err
	})
	return out, err
}

func (t *breakerTranslator) CheckHealth(ctx context.Context) error {
	return t.next.CheckHealth(ctx)
}
