// Package learning generates comprehension quizzes and score feedback
// for localized content.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
	"github.com/dasmlab/kultura/pkg/llm"
)

const (
	// QuestionCount is the number of questions in every quiz.
	QuestionCount = 5
	// OptionCount is the number of options per question.
	OptionCount = 4
)

// Question is one multiple-choice question.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Quiz is the response body of quiz generation.
type Quiz struct {
	Questions []Question `json:"questions"`
}

// Validate checks the structural invariant: QuestionCount questions with
// OptionCount options each, and the correct answer among the options.
func (q Quiz) Validate() error {
	if len(q.Questions) != QuestionCount {
		return fmt.Errorf("quiz has %d questions, want %d", len(q.Questions), QuestionCount)
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Question) == "" {
			return fmt.Errorf("question %d is empty", i+1)
		}
		if len(question.Options) != OptionCount {
			return fmt.Errorf("question %d has %d options, want %d", i+1, len(question.Options), OptionCount)
		}
		found := false
		for _, opt := range question.Options {
			if opt == question.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("question %d: correct answer %q is not an option", i+1, question.CorrectAnswer)
		}
	}
	return nil
}

const quizPrompt = `You are an expert educational content creator. Create a quiz based on the provided content.
The quiz should:
1. Have 5 multiple-choice questions
2. Cover key concepts from the content
3. Include one correct answer and three plausible distractors
4. Be in %s
5. Be appropriate for high school students

Return ONLY a valid JSON object with this exact structure:
{
    "questions": [
        {
            "question": "string",
            "options": ["string", "string", "string", "string"],
            "correctAnswer": "string"
        }
    ]
}`

var codeFence = regexp.MustCompile("```json\\n?|\\n?```")

// Generator produces quizzes and feedback with a completion model.
type Generator struct {
	completer llm.Completer
	logger    *logrus.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(completer llm.Completer, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{completer: completer, logger: logger}
}

// Quiz generates a quiz about content. An empty language asks for the
// language of the content itself.
func (g *Generator) Quiz(ctx context.Context, content, language string) (Quiz, error) {
	target := language
	if target == "" {
		target = "the same language as the content"
	}

	raw, err := g.completer.Complete(ctx, llm.Request{
		Operation:   "quiz",
		System:      fmt.Sprintf(quizPrompt, target),
		User:        content,
		Temperature: 0.7,
		MaxTokens:   2048,
	})
	if err != nil {
		return Quiz{}, err
	}

	quiz, err := ParseQuiz(raw)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"response_length": len(raw),
		}).Error("Error parsing quiz data")
		return Quiz{}, err
	}

	g.logger.WithFields(logrus.Fields{
		"language":  language,
		"questions": len(quiz.Questions),
	}).Info("Quiz generated")

	return quiz, nil
}

// ParseQuiz decodes a model response, tolerating a markdown code fence
// around the JSON, and validates it.
func ParseQuiz(raw string) (Quiz, error) {
	cleaned := codeFence.ReplaceAllString(strings.TrimSpace(raw), "")

	var quiz Quiz
	if err := json.Unmarshal([]byte(cleaned), &quiz); err != nil {
		return Quiz{}, apperror.Wrap(apperror.MalformedUpstreamResponse, "failed to parse quiz data", err)
	}
	if err := quiz.Validate(); err != nil {
		return Quiz{}, apperror.Wrap(apperror.MalformedUpstreamResponse, "invalid quiz data structure", err)
	}
	return quiz, nil
}
