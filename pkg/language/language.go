// Package language holds the table of languages the service can localize
// content into, and helpers for normalizing codes returned by external
// detection services.
package language

import (
	"sort"
	"strings"
)

// English is the pivot language used for summaries.
const English = "en"

// Language is one supported entry of the table.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// supported maps ISO codes to the display names used in localization prompts.
var supported = map[string]string{
	"fil": "Filipino",
	"id":  "Bahasa Indonesia",
	"th":  "Thai",
	"vi":  "Vietnamese",
	"ms":  "Malay",
	"en":  "English",
	"km":  "Khmer",
	"lo":  "Lao",
	"my":  "Burmese",
	"zh":  "Chinese",
	"ta":  "Tamil",
	"hi":  "Hindi",
}

// IsSupported reports whether code is in the support table.
// Codes are matched exactly; callers normalize detector output first.
func IsSupported(code string) bool {
	_, ok := supported[code]
	return ok
}

// DisplayName returns the human readable name for code, or code itself
// when it is not in the table.
func DisplayName(code string) string {
	if name, ok := supported[code]; ok {
		return name
	}
	return code
}

// All returns the support table ordered by code.
func All() []Language {
	langs := make([]Language, 0, len(supported))
	for code, name := range supported {
		langs = append(langs, Language{Code: code, Name: name})
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Code < langs[j].Code })
	return langs
}

// Mapper converts between the codes external services emit and the codes
// used by the support table. Detectors return BCP 47 tags like "zh-Hans"
// or "en-US", while the table uses bare ISO 639 codes.
type Mapper struct{}

// NewMapper creates a new language mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ToBackendCode converts a detector or client supplied code to table format.
// Examples:
//   - "EN" -> "en"
//   - "zh-Hans" -> "zh"
//   - "fil_PH" -> "fil"
func (m *Mapper) ToBackendCode(code string) string {
	lang := strings.ToLower(strings.TrimSpace(code))

	// Extract base language (before any "-" or "_")
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}

	return lang
}
