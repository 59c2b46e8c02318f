package reasoning

import (
	"regexp"
	"strings"
)

// Patterns for tool output that models sometimes echo back despite the
// prompt. Each consumes up to and including its terminator, which is
// written back through $1.
var debugPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)Raw search results:.*?(\n\n|\z)`),
	regexp.MustCompile(`(?s)semantic_search returned:\s*\{.*?\}[ \t]*(\n|\z)`),
	regexp.MustCompile(`(?s)sql_query returned:\s*\{.*?\}[ \t]*(\n|\z)`),
	regexp.MustCompile(`(?s)\{\s*"matches".*?\}[ \t]*(\n|\z)`),
	regexp.MustCompile(`(?s)\{\s*"rows".*?\}[ \t]*(\n|\z)`),
}

var blankRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)

// CleanAnswer strips leaked debug output and collapses blank lines.
func CleanAnswer(text string) string {
	cleaned := text
	for _, p := range debugPatterns {
		cleaned = p.ReplaceAllString(cleaned, "$1")
	}
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

var codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// StripCodeFence returns the body of the first fenced block, or the
// trimmed input when there is none.
func StripCodeFence(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
