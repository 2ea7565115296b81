package llm

import (
	"regexp"
	"strings"
)

var (
	fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	objectSpan  = regexp.MustCompile(`\{[\s\S]*\}`)
	arraySpan   = regexp.MustCompile(`\[[\s\S]*\]`)
)

// ExtractJSON pulls a JSON object out of model output: a fenced code block
// wins, then the outermost {...} span, else the trimmed text itself.
func ExtractJSON(text string) string {
	return extract(text, objectSpan)
}

// ExtractJSONArray is ExtractJSON for replies that should be an array.
func ExtractJSONArray(text string) string {
	return extract(text, arraySpan)
}

func extract(text string, span *regexp.Regexp) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := span.FindString(text); m != "" {
		return m
	}
	return text
}
