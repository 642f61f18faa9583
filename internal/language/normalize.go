// Package language normalizes the language hints that arrive on article
// payloads before they are stored or handed to detection.
package language

import "strings"

// NormalizeCode reduces a language tag to its lowercase primary subtag,
// "en" from "EN_us". Blank or malformed input yields "" so the caller can
// fall back to content-based detection.
func NormalizeCode(raw string) string {
	subtags := Subtags(raw)
	if len(subtags) == 0 {
		return ""
	}
	return subtags[0]
}

// NormalizeTag rebuilds a full lowercase tag with "-" separators,
// "zh-hans" from "zh_Hans". Returns "" when any subtag is malformed.
func NormalizeTag(raw string) string {
	return strings.Join(Subtags(raw), "-")
}

// Subtags splits a tag on "-" or "_" into validated lowercase subtags.
// A single malformed subtag invalidates the whole tag rather than being
// silently dropped, since a partial tag would mislabel the article.
func Subtags(raw string) []string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return nil
	}

	var subtags []string
	for _, subtag := range strings.FieldsFunc(lowered, func(r rune) bool {
		return r == '-' || r == '_'
	}) {
		for _, r := range subtag {
			if r < 'a' || r > 'z' {
				return nil
			}
		}
		subtags = append(subtags, subtag)
	}
	return subtags
}
