// Package literal scans proposed rule logic for quoted string literals. A
// literal in a rule means the upstream caller must send that exact value, so
// every distinct one is surfaced to the user for confirmation.
package literal

import (
	"regexp"
	"strings"
)

// quoted matches a single- or double-quoted substring with the same delimiter
// on both ends. Group 1 captures double-quoted content, group 2 single-quoted.
var quoted = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// outcomeKeywords are never flagged: they are rule outcomes, not values the
// caller sends.
var outcomeKeywords = map[string]bool{
	"APPROVE":          true,
	"REJECT":           true,
	"ASK_FOR_APPROVAL": true,
}

// Extract returns the distinct quoted literals in text, in first-occurrence
// order, excluding outcome keywords (case-insensitive). The returned values
// are the literal contents without their quote delimiters.
func Extract(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range quoted.FindAllStringSubmatch(text, -1) {
		val := m[1]
		if val == "" {
			val = m[2]
		}
		if outcomeKeywords[strings.ToUpper(val)] {
			continue
		}
		if seen[val] {
			continue
		}
		seen[val] = true
		out = append(out, val)
	}
	return out
}

// ExtractFromRule extracts literals from a proposal's rule logic and edge
// cases, treating them as one text in that order.
func ExtractFromRule(ruleLogic string, edgeCases []string) []string {
	parts := append([]string{ruleLogic}, edgeCases...)
	return Extract(strings.Join(parts, " "))
}

// Span is one segment of display text. Literal spans keep their quote
// delimiters so concatenating all spans reproduces the input exactly.
type Span struct {
	Text    string `json:"text"`
	Literal bool   `json:"literal"`
}

// Split partitions text into literal and non-literal spans for inline
// annotation. No characters are added or removed; outcome keywords are not
// treated as literals here either, so display highlighting matches Extract.
func Split(text string) []Span {
	var spans []Span
	last := 0
	for _, loc := range quoted.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		inner := text[start+1 : end-1]
		if outcomeKeywords[strings.ToUpper(inner)] {
			continue
		}
		if start > last {
			spans = append(spans, Span{Text: text[last:start]})
		}
		spans = append(spans, Span{Text: text[start:end], Literal: true})
		last = end
	}
	if last < len(text) {
		spans = append(spans, Span{Text: text[last:]})
	}
	return spans
}
