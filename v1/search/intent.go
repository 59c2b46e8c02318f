package search

import (
	"regexp"
	"strings"
)

// IntentClassifier decides whether free text is an analytical question
// (aggregates, totals, trends) rather than a description of a receipt.
type IntentClassifier interface {
	IsAnalytical(text string) bool
}

// KeywordClassifier matches analytical phrasing with word-boundary
// patterns. It errs towards record lookup: only clear aggregate wording
// routes to NL-to-SQL.
type KeywordClassifier struct {
	patterns []*regexp.Regexp
}

var defaultAnalyticalPhrases = []string{
	`how much`,
	`how many`,
	`how often`,
	`total`,
	`sum`,
	`average`,
	`avg`,
	`spen[dt]`,
	`spending`,
	`most`,
	`least`,
	`count`,
	`per (month|week|year|visit)`,
	`each (month|week|year)`,
	`monthly`,
	`trend`,
	`compare`,
	`breakdown`,
	`top \d+`,
}

func NewKeywordClassifier(phrases ...string) *KeywordClassifier {
	if len(phrases) == 0 {
		phrases = defaultAnalyticalPhrases
	}
	k := &KeywordClassifier{}
	for _, p := range phrases {
		k.patterns = append(k.patterns, regexp.MustCompile(`\b(?:`+p+`)\b`))
	}
	return k
}

func (k *KeywordClassifier) IsAnalytical(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, p := range k.patterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}
