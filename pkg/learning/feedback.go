package learning

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/llm"
)

// Bucket is the tone of feedback for a score.
type Bucket string

const (
	Excellent        Bucket = "excellent"
	Good             Bucket = "good"
	NeedsImprovement Bucket = "needs_improvement"
)

// BucketFor returns the feedback bucket for a percentage score.
// Boundaries belong to the higher bucket.
func BucketFor(score float64) Bucket {
	switch {
	case score >= 80:
		return Excellent
	case score >= 60:
		return Good
	default:
		return NeedsImprovement
	}
}

const feedbackSystemPrompt = "You are a multilingual educational assistant. Generate feedback in the specified language, ensuring it is culturally appropriate and natural-sounding. Your response should be very brief, around 10 words. Do not include any English text in your response."

var feedbackPrompts = map[Bucket]string{
	Excellent:        "Provide positive feedback in %[1]s that praises their excellent understanding (%[2]s%%) and encourages them to continue their great work. Keep it very concise, around 10 words. Make it culturally appropriate for %[1]s speakers.",
	Good:             "Provide positive feedback in %[1]s that acknowledges their good progress (%[2]s%%) and encourages them to keep learning. Keep it very concise, around 10 words. Make it culturally appropriate for %[1]s speakers.",
	NeedsImprovement: "Provide encouraging feedback in %[1]s that reassures them about their score (%[2]s%%) and encourages them to keep practicing. Keep it very concise, around 10 words. Make it culturally appropriate for %[1]s speakers.",
}

// FeedbackPrompt returns the user prompt for score in language.
func FeedbackPrompt(score float64, language string) string {
	return fmt.Sprintf(feedbackPrompts[BucketFor(score)], language, strconv.FormatFloat(score, 'f', -1, 64))
}

// Feedback writes a short encouraging message about a quiz score.
func (g *Generator) Feedback(ctx context.Context, score float64, language string) (string, error) {
	bucket := BucketFor(score)

	out, err := g.completer.Complete(ctx, llm.Request{
		Operation:   "feedback",
		System:      feedbackSystemPrompt,
		User:        FeedbackPrompt(score, language),
		Temperature: 0.7,
		MaxTokens:   30,
	})
	if err != nil {
		return "", err
	}

	g.logger.WithFields(logrus.Fields{
		"score":    score,
		"bucket":   bucket,
		"language": language,
	}).Info("Feedback generated")

	return out, nil
}
