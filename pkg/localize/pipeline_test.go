package localize

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/llm"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type translateCall struct {
	text, source, target string
}

type fakeTranslator struct {
	detected  string
	detectErr error
	out       string
	err       error
	calls     []translateCall
}

func (f *fakeTranslator) Detect(ctx context.Context, text string) (string, error) {
	return f.detected, f.detectErr
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.calls = append(f.calls, translateCall{text, source, target})
	return f.out, f.err
}

func (f *fakeTranslator) CheckHealth(ctx context.Context) error { return nil }

type fakeCompleter struct {
	responses map[string]string
	err       error
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.responses[req.Operation], nil
}

func TestLocalizeEndToEnd(t *testing.T) {
	tr := &fakeTranslator{out: "Ang mga halaman ay gumagamit ng sikat ng araw upang lumago."}
	llmFake := &fakeCompleter{responses: map[string]string{"adapt": "Ang puno ng mangga ay gumagamit ng sikat ng araw."}}
	p := NewPipeline(tr, llmFake, quietLogger())

	res, err := p.Localize(context.Background(), "Plants use sunlight to grow.", "en", "fil")
	if err != nil {
		t.Fatalf("Localize() error = %v", err)
	}

	if len(tr.calls) != 1 {
		t.Fatalf("translate calls = %d; want 1", len(tr.calls))
	}
	if c := tr.calls[0]; c.source != "en" || c.target != "fil" || c.text != "Plants use sunlight to grow." {
		t.Errorf("translate call = %+v", c)
	}

	if len(llmFake.requests) != 1 {
		t.Fatalf("completion calls = %d; want 1", len(llmFake.requests))
	}
	req := llmFake.requests[0]
	if req.User != tr.out {
		t.Errorf("adapt input = %q; want translated text", req.User)
	}
	if !strings.Contains(req.System, "students in Filipino.") {
		t.Errorf("adapt prompt does not name Filipino")
	}
	if req.Temperature != 0.7 || req.MaxTokens != 2048 {
		t.Errorf("adapt params = %v/%d", req.Temperature, req.MaxTokens)
	}

	if res.Language != "fil" || res.Content != "Ang puno ng mangga ay gumagamit ng sikat ng araw." {
		t.Errorf("Localize() = %+v", res)
	}
}

func TestLocalizeUnsupportedNeverTranslates(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		target      string
		field       string
		sourceOK    bool
		preferredOK bool
	}{
		{"unsupported source", "de", "fil", "sourceLanguage", false, true},
		{"unsupported target", "en", "fr", "preferredLanguage", true, false},
		{"both unsupported", "de", "fr", "sourceLanguage", false, false},
		{"empty target", "en", "", "preferredLanguage", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{out: "x"}
			llmFake := &fakeCompleter{}
			p := NewPipeline(tr, llmFake, quietLogger())

			_, err := p.Localize(context.Background(), "text", tt.source, tt.target)
			if apperror.KindOf(err) != apperror.UnsupportedLanguage {
				t.Fatalf("error = %v; want UnsupportedLanguage", err)
			}
			if len(tr.calls) != 0 || len(llmFake.requests) != 0 {
				t.Errorf("external calls made: translate=%d llm=%d", len(tr.calls), len(llmFake.requests))
			}

			var ae *apperror.Error
			errors.As(err, &ae)
			if ae.Field != tt.field {
				t.Errorf("Field = %q; want %q", ae.Field, tt.field)
			}
			if ae.Details["sourceSupported"] != tt.sourceOK || ae.Details["preferredSupported"] != tt.preferredOK {
				t.Errorf("Details = %v", ae.Details)
			}
			if apperror.Status(err) != http.StatusBadRequest {
				t.Errorf("Status() = %d; want 400", apperror.Status(err))
			}
		})
	}
}

func TestLocalizeTranslationFailureSkipsAdaptation(t *testing.T) {
	tr := &fakeTranslator{err: errors.New("connection refused")}
	llmFake := &fakeCompleter{}
	p := NewPipeline(tr, llmFake, quietLogger())

	_, err := p.Localize(context.Background(), "text", "en", "th")
	if apperror.KindOf(err) != apperror.TranslationFailed {
		t.Errorf("error = %v; want TranslationFailed", err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("translate calls = %d; want exactly 1", len(tr.calls))
	}
	if len(llmFake.requests) != 0 {
		t.Error("adaptation ran after failed translation")
	}
}

func TestLocalizeAdaptationFailureHasNoFallback(t *testing.T) {
	tr := &fakeTranslator{out: "translated"}
	llmFake := &fakeCompleter{err: apperror.Wrap(apperror.UpstreamRateLimited, "rate limited", errors.New("429"))}
	p := NewPipeline(tr, llmFake, quietLogger())

	res, err := p.Localize(context.Background(), "text", "en", "vi")
	if apperror.KindOf(err) != apperror.AdaptationFailed {
		t.Errorf("error = %v; want AdaptationFailed", err)
	}
	if res.Content != "" {
		t.Errorf("Content = %q; want empty", res.Content)
	}
	if apperror.Status(err) != http.StatusTooManyRequests {
		t.Errorf("Status() = %d; want 429", apperror.Status(err))
	}
}

func TestDetectNormalizesCode(t *testing.T) {
	p := NewPipeline(&fakeTranslator{detected: "zh-Hans"}, &fakeCompleter{}, quietLogger())

	in, err := p.Detect(context.Background(), "你好", KindText)
	if err != nil {
		t.Fatal(err)
	}
	if in.DetectedLanguage != "zh" || in.Kind != KindText || in.Text != "你好" {
		t.Errorf("Detect() = %+v", in)
	}
}

func TestDetectFailure(t *testing.T) {
	p := NewPipeline(&fakeTranslator{detectErr: errors.New("boom")}, &fakeCompleter{}, quietLogger())

	if _, err := p.Detect(context.Background(), "text", KindText); err == nil {
		t.Error("expected error")
	}
}

func TestSummarize(t *testing.T) {
	tr := &fakeTranslator{out: "### Buod"}
	llmFake := &fakeCompleter{responses: map[string]string{
		"summarize": "### Summary\n- point",
		"adapt":     "### Buod\n- punto",
	}}
	p := NewPipeline(tr, llmFake, quietLogger())

	res, err := p.Summarize(context.Background(), "long lesson text", "fil")
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "### Buod\n- punto" || res.Language != "fil" {
		t.Errorf("Summarize() = %+v", res)
	}

	if len(llmFake.requests) != 2 {
		t.Fatalf("completion calls = %d; want 2", len(llmFake.requests))
	}
	sum := llmFake.requests[0]
	if sum.Operation != "summarize" || sum.MaxTokens != 500 || sum.User != "long lesson text" {
		t.Errorf("summary request = %+v", sum)
	}
	if c := tr.calls[0]; c.source != "en" || c.text != "### Summary\n- point" {
		t.Errorf("translate call = %+v", c)
	}
}

func TestSummarizeUnsupportedTarget(t *testing.T) {
	llmFake := &fakeCompleter{}
	p := NewPipeline(&fakeTranslator{}, llmFake, quietLogger())

	if _, err := p.Summarize(context.Background(), "text", "xx"); apperror.KindOf(err) != apperror.UnsupportedLanguage {
		t.Errorf("error = %v; want UnsupportedLanguage", err)
	}
	if len(llmFake.requests) != 0 {
		t.Error("summary generated for unsupported language")
	}
}
