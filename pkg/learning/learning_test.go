package learning

import (
	"context"
	"encoding/json"
	"io"
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

type fakeCompleter struct {
	out  string
	reqs []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.out, nil
}

func validQuizJSON(t *testing.T) string {
	t.Helper()
	q := Quiz{}
	for i := 0; i < QuestionCount; i++ {
		q.Questions = append(q.Questions, Question{
			Question:      "Ano ang kailangan ng halaman?",
			Options:       []string{"Araw", "Buhangin", "Bato", "Plastik"},
			CorrectAnswer: "Araw",
		})
	}
	b, err := json.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestQuizStripsCodeFence(t *testing.T) {
	fake := &fakeCompleter{out: "```json\n" + validQuizJSON(t) + "\n```"}
	g := NewGenerator(fake, quietLogger())

	quiz, err := g.Quiz(context.Background(), "Plants need sunlight.", "Filipino")
	if err != nil {
		t.Fatalf("Quiz() error = %v", err)
	}
	if len(quiz.Questions) != QuestionCount {
		t.Fatalf("questions = %d", len(quiz.Questions))
	}
	for _, q := range quiz.Questions {
		if len(q.Options) != OptionCount {
			t.Errorf("options = %d", len(q.Options))
		}
	}

	req := fake.reqs[0]
	if !strings.Contains(req.System, "4. Be in Filipino") {
		t.Errorf("prompt does not request Filipino: %q", req.System)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 2048 {
		t.Errorf("params = %v/%d", req.Temperature, req.MaxTokens)
	}
}

func TestQuizDefaultLanguage(t *testing.T) {
	fake := &fakeCompleter{out: validQuizJSON(t)}
	g := NewGenerator(fake, quietLogger())

	if _, err := g.Quiz(context.Background(), "content", ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fake.reqs[0].System, "Be in the same language as the content") {
		t.Error("prompt missing default language")
	}
}

func TestParseQuizRejectsMalformed(t *testing.T) {
	tooFew := `{"questions":[{"question":"q","options":["a","b","c","d"],"correctAnswer":"a"}]}`
	threeOptions := strings.Replace(validQuizJSON(t), `"Araw","Buhangin","Bato","Plastik"`, `"Araw","Buhangin","Bato"`, 1)
	wrongAnswer := strings.Replace(validQuizJSON(t), `"correctAnswer":"Araw"`, `"correctAnswer":"Tubig"`, 1)

	for name, raw := range map[string]string{
		"not json":       "Here is your quiz!",
		"too few":        tooFew,
		"three options":  threeOptions,
		"answer missing": wrongAnswer,
		"no questions":   `{"questions":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuiz(raw)
			if apperror.KindOf(err) != apperror.MalformedUpstreamResponse {
				t.Errorf("ParseQuiz() error = %v; want MalformedUpstreamResponse", err)
			}
		})
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Bucket
	}{
		{95, Excellent},
		{80, Excellent},
		{79.9, Good},
		{70, Good},
		{60, Good},
		{59, NeedsImprovement},
		{40, NeedsImprovement},
		{0, NeedsImprovement},
	}
	for _, tt := range tests {
		if got := BucketFor(tt.score); got != tt.want {
			t.Errorf("BucketFor(%v) = %s; want %s", tt.score, got, tt.want)
		}
	}
}

func TestFeedbackPromptByBucket(t *testing.T) {
	tests := []struct {
		score  float64
		phrase string
	}{
		{95, "praises their excellent understanding (95%)"},
		{70, "acknowledges their good progress (70%)"},
		{40, "reassures them about their score (40%)"},
	}

	for _, tt := range tests {
		fake := &fakeCompleter{out: "Mahusay!"}
		g := NewGenerator(fake, quietLogger())

		got, err := g.Feedback(context.Background(), tt.score, "Filipino")
		if err != nil {
			t.Fatal(err)
		}
		if got != "Mahusay!" {
			t.Errorf("Feedback() = %q", got)
		}

		req := fake.reqs[0]
		if !strings.Contains(req.User, tt.phrase) {
			t.Errorf("score %v prompt = %q; want %q", tt.score, req.User, tt.phrase)
		}
		if !strings.Contains(req.User, "culturally appropriate for Filipino speakers") {
			t.Errorf("prompt missing language: %q", req.User)
		}
		if req.MaxTokens != 30 || !strings.Contains(req.System, "Do not include any English") {
			t.Errorf("request = %+v", req)
		}
	}
}
