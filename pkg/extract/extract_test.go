package extract

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestJoinPages(t *testing.T) {
	got := JoinPages([]Page{
		{Lines: []string{"Title", "First line"}},
		{Lines: []string{"Second page"}},
	})
	want := "Title\nFirst line\n\nSecond page\n\n"
	if got != want {
		t.Errorf("JoinPages() = %q; want %q", got, want)
	}
}

func TestKindFromFilename(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		ok   bool
	}{
		{"lesson.pdf", KindPDF, true},
		{"scan.JPG", KindImage, true},
		{"scan.jpeg", KindImage, true},
		{"diagram.png", KindImage, true},
		{"notes.docx", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		kind, ok := KindFromFilename(tt.name)
		if kind != tt.kind || ok != tt.ok {
			t.Errorf("KindFromFilename(%q) = %q, %v; want %q, %v", tt.name, kind, ok, tt.kind, tt.ok)
		}
	}
}

func newAnalyzeServer(t *testing.T, final string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-document:analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-version") != analyzeAPIVersion {
			t.Errorf("api-version = %q", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "key" {
			t.Error("missing subscription key")
		}
		w.Header().Set("Operation-Location", srv.URL+"/operations/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) == 1 {
			w.Write([]byte(`{"status":"running"}`))
			return
		}
		w.Write([]byte(final))
	})
	srv = httptest.NewServer(mux)
	return srv, &polls
}

func TestAzureExtractText(t *testing.T) {
	srv, polls := newAnalyzeServer(t, `{"status":"succeeded","analyzeResult":{"pages":[
		{"pageNumber":1,"lines":[{"content":"Photosynthesis"},{"content":"Plants make food."}]},
		{"pageNumber":2,"lines":[{"content":"The end"}]}]}}`)
	defer srv.Close()

	c := NewAzureClient(srv.URL, "key", 0, quietLogger())
	c.pollInterval = time.Millisecond

	got, err := c.ExtractText(context.Background(), []byte("%PDF-1.4"), KindPDF)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	want := "Photosynthesis\nPlants make food.\n\nThe end\n\n"
	if got != want {
		t.Errorf("ExtractText() = %q; want %q", got, want)
	}
	if atomic.LoadInt32(polls) != 2 {
		t.Errorf("polls = %d; want 2", *polls)
	}
}

func TestAzureExtractZeroPages(t *testing.T) {
	srv, _ := newAnalyzeServer(t, `{"status":"succeeded","analyzeResult":{"pages":[]}}`)
	defer srv.Close()

	c := NewAzureClient(srv.URL, "key", 0, quietLogger())
	c.pollInterval = time.Millisecond

	got, err := c.ExtractText(context.Background(), []byte("img"), KindImage)
	if err != nil || got != "" {
		t.Errorf("ExtractText() = %q, %v; want empty, nil", got, err)
	}
}

func TestAzureExtractFailedAnalysis(t *testing.T) {
	srv, _ := newAnalyzeServer(t, `{"status":"failed","error":{"code":"InvalidContent","message":"corrupt"}}`)
	defer srv.Close()

	c := NewAzureClient(srv.URL, "key", 0, quietLogger())
	c.pollInterval = time.Millisecond

	_, err := c.ExtractText(context.Background(), []byte("bad"), KindPDF)
	if apperror.KindOf(err) != apperror.ExtractionFailed {
		t.Errorf("error = %v; want ExtractionFailed", err)
	}
}

func TestAzureExtractRejectedSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAzureClient(srv.URL, "key", 0, quietLogger())
	_, err := c.ExtractText(context.Background(), []byte("x"), KindPDF)
	if apperror.KindOf(err) != apperror.ExtractionFailed {
		t.Errorf("error = %v; want ExtractionFailed", err)
	}
}

func TestLocalExtractor(t *testing.T) {
	e := NewLocalExtractor(quietLogger())

	if _, err := e.ExtractText(context.Background(), []byte("png"), KindImage); apperror.KindOf(err) != apperror.ExtractionFailed {
		t.Errorf("image error = %v; want ExtractionFailed", err)
	}
	if _, err := e.ExtractText(context.Background(), []byte("not a pdf"), KindPDF); apperror.KindOf(err) != apperror.ExtractionFailed {
		t.Errorf("garbage error = %v; want ExtractionFailed", err)
	}
}

func TestNewExtractor(t *testing.T) {
	if _, err := NewExtractor(Config{Engine: EngineAzure, Logger: quietLogger()}); err == nil {
		t.Error("expected error for azure without credentials")
	}
	ex, err := NewExtractor(Config{Engine: EngineLocal, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ex.(*LocalExtractor); !ok {
		t.Errorf("NewExtractor() = %T", ex)
	}
	if _, err := ParseEngineType("tesseract"); err == nil {
		t.Error("expected error for unknown engine")
	}
}
