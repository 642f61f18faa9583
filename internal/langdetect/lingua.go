// Package langdetect tags ingested articles with an ISO 639-1 language
// code when the payload carries no usable language hint.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Detection below this many letters is noise (tickers, ids, bare names).
const minSampleLetters = 6

// Samples are capped so a full article body does not feed the detector;
// the opening text is plenty of signal.
const maxSampleRunes = 2000

var (
	buildOnce sync.Once
	shared    lingua.LanguageDetector
)

// Detect returns a lowercase two-letter ISO 639-1 code for the text, or
// "" when the text is too short or the language cannot be determined.
func Detect(text string) string {
	sample := strings.TrimSpace(text)
	if runes := []rune(sample); len(runes) > maxSampleRunes {
		sample = string(runes[:maxSampleRunes])
	}
	if !hasEnoughLetters(sample) {
		return ""
	}

	detected, ok := sharedDetector().DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	code := strings.ToLower(detected.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func hasEnoughLetters(sample string) bool {
	letters := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
			if letters >= minSampleLetters {
				return true
			}
		}
	}
	return false
}

func sharedDetector() lingua.LanguageDetector {
	buildOnce.Do(func() {
		shared = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return shared
}
