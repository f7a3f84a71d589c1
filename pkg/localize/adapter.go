package localize

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/language"
	"github.com/dasmlab/kultura/pkg/llm"
)

const adaptPrompt = `You are an expert in educational content localization and adaptation. Your job is to modify academic text so that it resonates culturally, emotionally, and contextually with students in the target region.

You must:
1. Replace cultural references with local equivalents:
   - Trees, plants, and crops with local varieties
   - Animals with local species
   - Food items with local dishes
   - Places and locations with local examples
   - Names and people with local names

2. Maintain proper formatting:
   - Keep all headings and subheadings
   - Preserve numbered and bulleted lists
   - Maintain paragraph structure
   - Keep technical terms accurate
   - Ensure proper line breaks between sections

3. Make the content culturally relevant:
   - Use local measurement systems if applicable
   - Reference local weather patterns
   - Include local examples and scenarios
   - Use culturally appropriate analogies
   - Adapt date and number formats to the target locale (e.g., "05/06/2025" to target-specific format, decimal separators, thousands separators).

4. Ensure readability:
   - Break long paragraphs into smaller ones
   - Use clear transitions between sections
   - Maintain consistent formatting
   - Keep technical terms with their translations in parentheses when first used

5. Maintain a balanced tone and formality:
   - Avoid overly formal or distant language.
   - Avoid overly casual or unprofessional language.
   - Strike a tone that is appropriate for educational content aimed at high school students in the target region.

Example:
Original (English): "Photosynthesis is the process by which plants like maple and oak trees use sunlight, water, and carbon dioxide to make their own food. Farmers in Canada grow crops that rely on sunlight."

Localized for Philippines:
"Ang potosintesis (photosynthesis) ay ang proseso kung saan ang mga halaman tulad ng puno ng mangga at narra ay gumagamit ng sikat ng araw, tubig, at carbon dioxide para makagawa ng sarili nilang pagkain. Ang mga magsasaka sa Pilipinas ay nagtatanim ng palay at gulay na umaasa sa sikat ng araw para lumago."

Now, localize the following text for students in %s. Maintain all formatting, headings, and technical accuracy while making it culturally relevant:
`

// AdaptPrompt returns the system prompt for adapting text to students who
// speak the named language.
func AdaptPrompt(languageName string) string {
	return fmt.Sprintf(adaptPrompt, languageName)
}

// Adapter rewrites translated text so its cultural references, units and
// examples fit the target audience.
type Adapter struct {
	completer llm.Completer
	logger    *logrus.Logger
}

// NewAdapter creates an Adapter backed by completer.
func NewAdapter(completer llm.Completer, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{completer: completer, logger: logger}
}

// Adapt localizes text, already in the target language, for students who
// speak targetLang.
func (a *Adapter) Adapt(ctx context.Context, text, targetLang string) (string, error) {
	name := language.DisplayName(targetLang)

	a.logger.WithFields(logrus.Fields{
		"target_lang": targetLang,
		"language":    name,
		"text_length": len(text),
	}).Debug("Adapting content")

	start := time.Now()
	out, err := a.completer.Complete(ctx, llm.Request{
		Operation:   "adapt",
		System:      AdaptPrompt(name),
		User:        text,
		Temperature: 0.7,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", err
	}

	a.logger.WithFields(logrus.Fields{
		"target_lang": targetLang,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Cultural localization completed")

	return out, nil
}
