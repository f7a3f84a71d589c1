// Package service binds the localization pipeline, document extraction,
// quiz generation, document export and the response caches into the
// operations served over HTTP.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/cache"
	"github.com/dasmlab/kultura/pkg/docx"
	"github.com/dasmlab/kultura/pkg/extract"
	"github.com/dasmlab/kultura/pkg/learning"
	"github.com/dasmlab/kultura/pkg/localize"
)

// Profile is the learner profile sent with content requests.
type Profile struct {
	PreferredLanguage string `json:"preferredLanguage"`
}

// ParseProfile decodes and validates a JSON encoded profile.
func ParseProfile(raw string) (Profile, error) {
	if strings.TrimSpace(raw) == "" {
		return Profile{}, apperror.Invalid(apperror.MissingInput, "Missing profile data", "profile", "Profile data is required")
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, apperror.Invalid(apperror.InvalidProfile, "Invalid profile data", "profile", "Profile data is not valid JSON")
	}
	if p.PreferredLanguage == "" {
		return Profile{}, apperror.Invalid(apperror.InvalidProfile, "Missing preferred language", "preferredLanguage", "Preferred language is required in profile")
	}
	return p, nil
}

// Document is an uploaded file.
type Document struct {
	Name string
	Data []byte
	Kind extract.Kind
}

// NewDocument classifies an upload by its file name.
func NewDocument(name string, data []byte) (*Document, error) {
	kind, ok := extract.KindFromFilename(name)
	if !ok {
		return nil, apperror.Invalid(apperror.MissingInput, "Unsupported file type", "file", "Only .pdf, .jpg, .jpeg and .png files are accepted")
	}
	return &Document{Name: name, Data: data, Kind: kind}, nil
}

// ContentRequest is the input of Translate and Summarize: text content or
// an uploaded document, plus the learner profile.
type ContentRequest struct {
	Content string
	File    *Document
	Profile Profile
}

// ProcessRequest is the input of Process.
type ProcessRequest struct {
	Type              string
	Text              string
	File              *Document
	PreferredLanguage string
}

// Service implements the HTTP operations. Every operation looks in its
// cache namespace before doing any work and stores successful results.
type Service struct {
	Pipeline  *localize.Pipeline
	Extractor extract.Extractor
	Generator *learning.Generator
	Cache     *cache.Service
	Logger    *logrus.Logger
}

// New creates a Service.
func New(pipeline *localize.Pipeline, extractor extract.Extractor, generator *learning.Generator, caches *cache.Service, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		Pipeline:  pipeline,
		Extractor: extractor,
		Generator: generator,
		Cache:     caches,
		Logger:    logger,
	}
}

func missingContent() error {
	return apperror.Invalid(apperror.MissingInput, "Missing required fields", "content", "Either content or file is required")
}

// extractDocument returns the text of doc, rejecting documents without any.
func (s *Service) extractDocument(ctx context.Context, doc *Document) (string, error) {
	start := time.Now()
	text, err := s.Extractor.ExtractText(ctx, doc.Data, doc.Kind)
	if err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"file": doc.Name,
			"kind": doc.Kind,
		}).Error("Document extraction failed")
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperror.Invalid(apperror.MissingInput, "No text found in document", "file", "The uploaded document contains no recognizable text")
	}

	s.Logger.WithFields(logrus.Fields{
		"file":        doc.Name,
		"text_length": len(text),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Extracted document text")
	return text, nil
}

// Translate localizes text content, or the text of an uploaded document,
// into the profile's preferred language. The source language is detected.
func (s *Service) Translate(ctx context.Context, req ContentRequest) (string, error) {
	if req.Content == "" && req.File == nil {
		return "", missingContent()
	}

	target := req.Profile.PreferredLanguage
	if err := localize.CheckTarget(target); err != nil {
		return "", err
	}

	raw := []byte(req.Content)
	if req.File != nil {
		raw = req.File.Data
	}

	key := cache.Key("translate", raw, target)
	if cached, ok := s.Cache.Translation.Get(key); ok {
		s.Logger.WithFields(logrus.Fields{
			"target_lang": target,
		}).Debug("Serving translation from cache")
		return cached, nil
	}

	content := req.Content
	if req.File != nil {
		text, err := s.extractDocument(ctx, req.File)
		if err != nil {
			return "", err
		}
		content = text
	}

	input, err := s.Pipeline.Detect(ctx, content, localize.KindText)
	if err != nil {
		return "", err
	}

	result, err := s.Pipeline.Localize(ctx, content, input.DetectedLanguage, target)
	if err != nil {
		return "", err
	}

	s.Cache.Translation.Set(key, result.Content)
	return result.Content, nil
}

// Summarize writes a localized summary of text content or of an uploaded
// document.
func (s *Service) Summarize(ctx context.Context, req ContentRequest) (string, error) {
	if req.Content == "" && req.File == nil {
		return "", missingContent()
	}

	target := req.Profile.PreferredLanguage
	if err := localize.CheckTarget(target); err != nil {
		return "", err
	}

	content := req.Content
	if req.File != nil {
		text, err := s.extractDocument(ctx, req.File)
		if err != nil {
			return "", err
		}
		content = text
	}

	key := cache.Key("summary", []byte(content), target)
	if cached, ok := s.Cache.Summary.Get(key); ok {
		return cached, nil
	}

	result, err := s.Pipeline.Summarize(ctx, content, target)
	if err != nil {
		return "", err
	}

	s.Cache.Summary.Set(key, result.Content)
	return result.Content, nil
}

// GenerateQuiz returns a five question quiz about content.
func (s *Service) GenerateQuiz(ctx context.Context, content, language string) (learning.Quiz, error) {
	if content == "" {
		return learning.Quiz{}, apperror.Invalid(apperror.MissingInput, "Missing content", "content", "Content is required for quiz generation")
	}

	key := cache.Key("quiz", []byte(content), language)
	if cached, ok := s.Cache.Quiz.Get(key); ok {
		return cached, nil
	}

	quiz, err := s.Generator.Quiz(ctx, content, language)
	if err != nil {
		return learning.Quiz{}, err
	}

	s.Cache.Quiz.Set(key, quiz)
	return quiz, nil
}

// GenerateFeedback returns a short message about a quiz score.
func (s *Service) GenerateFeedback(ctx context.Context, score float64, language string) (string, error) {
	if language == "" {
		return "", apperror.Invalid(apperror.MissingInput, "Missing score or language", "language", "Language is required for feedback generation")
	}

	key := cache.ScoreKey("feedback", score, language)
	if cached, ok := s.Cache.Feedback.Get(key); ok {
		return cached, nil
	}

	feedback, err := s.Generator.Feedback(ctx, score, language)
	if err != nil {
		return "", err
	}

	s.Cache.Feedback.Set(key, feedback)
	return feedback, nil
}

// ExportDocx renders markdown content as a .docx document.
func (s *Service) ExportDocx(ctx context.Context, content string) ([]byte, error) {
	if content == "" {
		return nil, apperror.Invalid(apperror.MissingInput, "Missing content for DOCX generation", "content", "Content is required for DOCX generation")
	}

	key := cache.Key("docx", []byte(content), "")
	if cached, ok := s.Cache.Docx.Get(key); ok {
		return cached, nil
	}

	paragraphs := docx.Format(content)
	data, err := docx.Render(paragraphs)
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"paragraphs": len(paragraphs),
		"bytes":      len(data),
	}).Info("Rendered document")

	s.Cache.Docx.Set(key, data)
	return data, nil
}

// Process extracts text from the input, detects its language and checks
// that both it and the preferred language are supported.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (localize.ProcessedInput, error) {
	var (
		text string
		kind extract.Kind
	)

	switch {
	case req.Type == string(localize.KindText) && req.Text != "":
		text, kind = req.Text, localize.KindText
	case req.File != nil:
		extracted, err := s.extractDocument(ctx, req.File)
		if err != nil {
			return localize.ProcessedInput{}, err
		}
		text, kind = extracted, req.File.Kind
	default:
		return localize.ProcessedInput{}, apperror.Invalid(apperror.MissingInput, "No content provided", "content", "Either text or file is required")
	}

	input, err := s.Pipeline.Detect(ctx, text, kind)
	if err != nil {
		return localize.ProcessedInput{}, err
	}

	source := input.DetectedLanguage
	if source == "" {
		source = "en"
	}
	if err := localize.CheckPair(source, req.PreferredLanguage); err != nil {
		return localize.ProcessedInput{}, err
	}

	return input, nil
}
