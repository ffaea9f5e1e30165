package services

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// LanguageChecker checks translated titles with a lingua detector restricted to the
// languages the translation pipeline produces or confuses them with.
type LanguageChecker struct {
	detector lingua.LanguageDetector
}

var _ TitleChecker = (*LanguageChecker)(nil)

func NewLanguageChecker() *LanguageChecker {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.Japanese, lingua.English, lingua.Chinese, lingua.Korean,
			lingua.German, lingua.French, lingua.Spanish,
		).
		Build()
	return &LanguageChecker{detector: detector}
}

// Check reports whether title is detected as lang (ISO 639-1). Undetectable text fails.
func (c *LanguageChecker) Check(lang, title string) bool {
	detected, ok := c.detector.DetectLanguageOf(title)
	if !ok {
		return false
	}
	return strings.EqualFold(detected.IsoCode639_1().String(), lang)
}
