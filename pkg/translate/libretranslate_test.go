package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/breaker"
)

func newLibreServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Source != "en" || req.Target != "th" || req.Format != "text" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(translateResponse{TranslatedText: "สวัสดี"})
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"confidence":90.0,"language":"en"}]`))
	})
	mux.HandleFunc("/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	return httptest.NewServer(mux)
}

func TestLibreTranslate(t *testing.T) {
	srv := newLibreServer(t)
	defer srv.Close()

	c := NewLibreTranslateClient(srv.URL, 0, quietLogger())
	ctx := context.Background()

	got, err := c.Translate(ctx, "hello", "en", "th")
	if err != nil || got != "สวัสดี" {
		t.Errorf("Translate() = %q, %v", got, err)
	}

	lang, err := c.Detect(ctx, "hello")
	if err != nil || lang != "en" {
		t.Errorf("Detect() = %q, %v", lang, err)
	}

	if err := c.CheckHealth(ctx); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}
}

func TestLibreTranslateRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Slowdown"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewLibreTranslateClient(srv.URL, 0, quietLogger())
	_, err := c.Translate(context.Background(), "hello", "en", "th")
	if !apperror.Has(err, apperror.UpstreamRateLimited) {
		t.Errorf("error = %v; want rate limited", err)
	}
}

func TestNewTranslator(t *testing.T) {
	if _, err := NewTranslator(Config{Engine: EngineAzure, Logger: quietLogger()}); err == nil {
		t.Error("expected error for azure without key")
	}
	if _, err := NewTranslator(Config{Engine: "argos", Logger: quietLogger()}); err == nil {
		t.Error("expected error for unknown engine")
	}

	tr, err := NewTranslator(Config{Engine: EngineLibreTranslate, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*LibreTranslateClient); !ok {
		t.Errorf("NewTranslator() = %T; want *LibreTranslateClient", tr)
	}
}

func TestParseEngineType(t *testing.T) {
	for in, want := range map[string]EngineType{"Azure": EngineAzure, "libretranslate": EngineLibreTranslate} {
		got, err := ParseEngineType(in)
		if err != nil || got != want {
			t.Errorf("ParseEngineType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseEngineType("argos"); err == nil {
		t.Error("expected error for argos")
	}
}

func TestBreakerTranslatorFailsFast(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	b := breaker.New(breaker.Settings{Name: "translator", ConsecutiveFailures: 2, Logger: quietLogger()})
	tr := WithBreaker(NewLibreTranslateClient(srv.URL, 0, quietLogger()), b)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := tr.Translate(ctx, "x", "en", "th"); err == nil {
			t.Fatal("expected upstream error")
		}
	}

	_, err := tr.Translate(ctx, "x", "en", "th")
	if !apperror.Has(err, apperror.UpstreamUnavailable) {
		t.Errorf("error = %v; want unavailable", err)
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d; want 2", calls)
	}
}
