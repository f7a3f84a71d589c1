// Package server exposes the localization service over HTTP and reports
// translator health over the gRPC health protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/docx"
	"github.com/dasmlab/kultura/pkg/language"
	"github.com/dasmlab/kultura/pkg/service"
)

// DefaultMaxUploadBytes caps request bodies, uploads included.
const DefaultMaxUploadBytes = 32 << 20

// HTTPServer provides the localization endpoints.
type HTTPServer struct {
	svc       *service.Service
	logger    *logrus.Logger
	port      int
	maxUpload int64
	server    *http.Server
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(svc *service.Service, logger *logrus.Logger, port int, maxUpload int64) *HTTPServer {
	if logger == nil {
		logger = logrus.New()
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &HTTPServer{
		svc:       svc,
		logger:    logger,
		port:      port,
		maxUpload: maxUpload,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /translate", s.handleTranslate)
	mux.HandleFunc("POST /summarize", s.handleSummarize)
	mux.HandleFunc("POST /generate-quiz", s.handleGenerateQuiz)
	mux.HandleFunc("POST /generate-feedback", s.handleGenerateFeedback)
	mux.HandleFunc("POST /download-docx", s.handleDownloadDocx)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("GET /languages", s.handleLanguages)

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	return withCORS(s.withRecover(s.withRequestID(s.withAccessLog(mux))))
}

// Start starts the HTTP server. It blocks until the server stops and
// returns http.ErrServerClosed after Shutdown.
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"port": s.port,
	}).Info("Starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and body. op names the operation in
// messages, e.g. "Translation".
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperror.Status(err)
	resp := errorResponse{}

	var ae *apperror.Error
	switch {
	case apperror.IsValidation(err) && errors.As(err, &ae):
		resp.Error = ae.Message
		if len(ae.Details) > 0 {
			resp.Details = ae.Details
		}
	case status == http.StatusGatewayTimeout:
		resp.Error = op + " timed out"
		resp.Details = "The request took too long to complete"
	case status == http.StatusTooManyRequests:
		resp.Error = "Rate limit exceeded"
		resp.Details = "Please try again in a few moments"
	case status == http.StatusServiceUnavailable:
		resp.Error = op + " unavailable"
		resp.Details = "The service is temporarily unavailable, please try again later"
	case apperror.KindOf(err) == apperror.ExtractionFailed:
		resp.Error = "PDF processing failed"
		resp.Details = apperror.Cause(err)
	default:
		resp.Error = op + " failed"
		resp.Details = apperror.Cause(err)
	}

	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"operation":  op,
		"status":     status,
		"kind":       apperror.KindOf(err),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	writeJSON(w, status, resp)
}

func invalidBody(err error) error {
	return apperror.Invalid(apperror.MissingInput, "Invalid request body", "body", err.Error())
}

// decodeJSON reads a JSON body into v.
func (s *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return invalidBody(err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readUpload returns the "file" part of a multipart request, or nil when
// there is none.
func readUpload(r *http.Request) (*service.Document, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, invalidBody(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, invalidBody(err)
	}
	return service.NewDocument(header.Filename, data)
}

// profileField accepts a profile as a JSON encoded string, as browsers send
// it in forms, or as an inline object.
type profileField string

func (p *profileField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = profileField(s)
		return nil
	}
	*p = profileField(b)
	return nil
}

// parseContentRequest reads /translate and /summarize input from a
// multipart form or a JSON body.
func (s *HTTPServer) parseContentRequest(w http.ResponseWriter, r *http.Request) (service.ContentRequest, error) {
	var (
		req        service.ContentRequest
		rawProfile string
	)

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return req, invalidBody(err)
		}
		req.Content = r.FormValue("content")
		rawProfile = r.FormValue("profile")

		doc, err := readUpload(r)
		if err != nil {
			return req, err
		}
		req.File = doc
	} else {
		var body struct {
			Content string       `json:"content"`
			Profile profileField `json:"profile"`
		}
		if err := s.decodeJSON(w, r, &body); err != nil {
			return req, err
		}
		req.Content = body.Content
		rawProfile = string(body.Profile)
	}

	profile, err := service.ParseProfile(rawProfile)
	if err != nil {
		return req, err
	}
	req.Profile = profile
	return req, nil
}

func (s *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseContentRequest(w, r)
	if err != nil {
		s.writeError(w, r, "Translation", err)
		return
	}

	localized, err := s.svc.Translate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Translation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"localizedContent": localized})
}

func (s *HTTPServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseContentRequest(w, r)
	if err != nil {
		s.writeError(w, r, "Summarization", err)
		return
	}

	summary, err := s.svc.Summarize(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Summarization", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *HTTPServer) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content  string `json:"content"`
		Language string `json:"language"`
	}
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "Quiz generation", err)
		return
	}

	quiz, err := s.svc.GenerateQuiz(r.Context(), body.Content, body.Language)
	if err != nil {
		s.writeError(w, r, "Quiz generation", err)
		return
	}

	writeJSON(w, http.StatusOK, quiz)
}

func (s *HTTPServer) handleGenerateFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Score    *float64 `json:"score"`
		Language *string  `json:"language"`
	}
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "Feedback generation", err)
		return
	}
	if body.Score == nil {
		s.writeError(w, r, "Feedback generation", apperror.Invalid(apperror.MissingInput, "Missing score or language", "score", "Score is required for feedback generation"))
		return
	}
	if body.Language == nil {
		s.writeError(w, r, "Feedback generation", apperror.Invalid(apperror.MissingInput, "Missing score or language", "language", "Language is required for feedback generation"))
		return
	}

	feedback, err := s.svc.GenerateFeedback(r.Context(), *body.Score, *body.Language)
	if err != nil {
		s.writeError(w, r, "Feedback generation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
}

func (s *HTTPServer) handleDownloadDocx(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "DOCX generation", err)
		return
	}

	data, err := s.svc.ExportDocx(r.Context(), body.Content)
	if err != nil {
		s.writeError(w, r, "DOCX generation", err)
		return
	}

	w.Header().Set("Content-Type", docx.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+docx.Filename)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req service.ProcessRequest

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			s.writeError(w, r, "Processing", invalidBody(err))
			return
		}
		req.Type = r.FormValue("type")
		req.Text = r.FormValue("text")
		req.PreferredLanguage = r.FormValue("preferredLanguage")

		doc, err := readUpload(r)
		if err != nil {
			s.writeError(w, r, "Processing", err)
			return
		}
		req.File = doc
	} else {
		var body struct {
			Type              string `json:"type"`
			Text              string `json:"text"`
			PreferredLanguage string `json:"preferredLanguage"`
		}
		if err := s.decodeJSON(w, r, &body); err != nil {
			s.writeError(w, r, "Processing", err)
			return
		}
		req.Type, req.Text, req.PreferredLanguage = body.Type, body.Text, body.PreferredLanguage
	}

	result, err := s.svc.Process(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Processing", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": language.All()})
}

// handleHealth provides a health check endpoint.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// routeLabel is the metrics label for a matched route pattern.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		return pattern[i+1:]
	}
	return pattern
}
