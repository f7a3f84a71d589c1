package translate

import (
	"context"
)

// Translator defines the interface for machine translation backends.
// This abstraction allows us to switch between MT engines (Azure
// Translator, LibreTranslate) without changing the localization pipeline.
type Translator interface {
	// Detect returns the language code of text as reported by the backend.
	// The code is not normalized; callers map it to the support table.
	Detect(ctx context.Context, text string) (string, error)

	// Translate translates text from source language to target language.
	// sourceLang and targetLang are support table codes (e.g., "en", "fil").
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// CheckHealth verifies that the translation backend is ready and operational.
	CheckHealth(ctx context.Context) error
}
