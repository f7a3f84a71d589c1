// Package localize implements the content pipeline: detect the source
// language, machine translate, then culturally adapt the result with a
// generative model. Summaries go through the same pipeline from English.
package localize

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/extract"
	"github.com/dasmlab/kultura/pkg/language"
	"github.com/dasmlab/kultura/pkg/llm"
	"github.com/dasmlab/kultura/pkg/translate"
)

// KindText marks input submitted as plain text rather than a document.
const KindText extract.Kind = "text"

// TranslationResult is localized content and the language it is in.
type TranslationResult struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// ProcessedInput is extracted text with its detected language.
type ProcessedInput struct {
	Text             string       `json:"text"`
	DetectedLanguage string       `json:"detectedLanguage"`
	Kind             extract.Kind `json:"type"`
}

const summaryPrompt = `You are an expert summarization assistant. Summarize the following text concisely in English. The summary should capture the main points and be easy to understand. Format the summary using Markdown, including headings (e.g., ### for main points), bullet points, and bold text where appropriate. Keep in mind that this summary will later be translated and culturally localized for a specific target audience, so ensure its content is adaptable and avoids overly niche English cultural references that cannot be universally understood or adapted.`

// Pipeline runs detection, translation and adaptation. Every step is a
// single sequential call; nothing is retried.
type Pipeline struct {
	translator translate.Translator
	adapter    *Adapter
	completer  llm.Completer
	mapper     *language.Mapper
	logger     *logrus.Logger
}

// NewPipeline creates a Pipeline. completer serves both adaptation and
// summarization.
func NewPipeline(translator translate.Translator, completer llm.Completer, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		translator: translator,
		adapter:    NewAdapter(completer, logger),
		completer:  completer,
		mapper:     language.NewMapper(),
		logger:     logger,
	}
}

// CheckPair validates both languages against the support table. The
// returned error's details report each side.
func CheckPair(source, target string) error {
	sourceOK := language.IsSupported(source)
	targetOK := language.IsSupported(target)
	if sourceOK && targetOK {
		return nil
	}

	field := "sourceLanguage"
	if sourceOK {
		field = "preferredLanguage"
	}
	return &apperror.Error{
		Kind:    apperror.UnsupportedLanguage,
		Message: "Unsupported language combination",
		Field:   field,
		Details: map[string]any{
			"sourceSupported":    sourceOK,
			"preferredSupported": targetOK,
		},
	}
}

// CheckTarget validates the preferred language on its own, for callers that
// must reject a request before the source language is known.
func CheckTarget(target string) error {
	if language.IsSupported(target) {
		return nil
	}
	return &apperror.Error{
		Kind:    apperror.UnsupportedLanguage,
		Message: "Unsupported language combination",
		Field:   "preferredLanguage",
		Details: map[string]any{
			"preferredSupported": false,
		},
	}
}

// Detect asks the translation backend for the language of text and
// normalizes the answer to a support table code. The code is not checked
// against the table; callers use CheckPair.
func (p *Pipeline) Detect(ctx context.Context, text string, kind extract.Kind) (ProcessedInput, error) {
	raw, err := p.translator.Detect(ctx, text)
	if err != nil {
		p.logger.WithError(err).Error("Language detection failed")
		return ProcessedInput{}, apperror.Wrap(apperror.TranslationFailed, "language detection failed", err)
	}

	code := p.mapper.ToBackendCode(raw)
	p.logger.WithFields(logrus.Fields{
		"detected": raw,
		"code":     code,
		"kind":     kind,
	}).Debug("Detected language")

	return ProcessedInput{Text: text, DetectedLanguage: code, Kind: kind}, nil
}

// Localize translates content from source to target and adapts it
// culturally. Unsupported languages are rejected before any external call.
func (p *Pipeline) Localize(ctx context.Context, content, source, target string) (TranslationResult, error) {
	if err := CheckPair(source, target); err != nil {
		return TranslationResult{}, err
	}

	logger := p.logger.WithFields(logrus.Fields{
		"source_lang":    source,
		"target_lang":    target,
		"content_length": len(content),
	})
	logger.Debug("Localizing content")

	translated, err := p.translator.Translate(ctx, content, source, target)
	if err != nil {
		logger.WithError(err).Error("Translation failed")
		return TranslationResult{}, apperror.Wrap(apperror.TranslationFailed, "translation failed", err)
	}

	adapted, err := p.adapter.Adapt(ctx, translated, target)
	if err != nil {
		logger.WithError(err).Error("Cultural adaptation failed")
		return TranslationResult{}, apperror.Wrap(apperror.AdaptationFailed, "cultural adaptation failed", err)
	}

	logger.Info("Localization completed")
	return TranslationResult{Content: adapted, Language: target}, nil
}

// Summarize writes an English markdown summary of content and localizes
// it into target.
func (p *Pipeline) Summarize(ctx context.Context, content, target string) (TranslationResult, error) {
	if err := CheckPair(language.English, target); err != nil {
		return TranslationResult{}, err
	}

	summary, err := p.completer.Complete(ctx, llm.Request{
		Operation:   "summarize",
		System:      summaryPrompt,
		User:        content,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		p.logger.WithError(err).Error("Summary generation failed")
		return TranslationResult{}, fmt.Errorf("generate summary: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"summary_length": len(summary),
	}).Debug("Generated English summary")

	return p.Localize(ctx, summary, language.English, target)
}
