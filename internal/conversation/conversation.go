// Package conversation turns a rendered chat line into a private-message match.
// It never touches session state, files or time.
package conversation

import (
	"regexp"
	"strings"

	"github.com/lewisedginton/chatwatch/internal/patterns"
)

var timestampPrefix = regexp.MustCompile(`^<\d{1,2}:\d{2}>\s*`)

// keywords hint that an unmatched line may still be a private message.
var keywords = []string{"whisper", "tell", "message", " -> ", "from ", "to ", "reply"}

// StripTimestamp removes a leading "<HH:MM>" chat timestamp.
func StripTimestamp(line string) string {
	if loc := timestampPrefix.FindStringIndex(line); loc != nil {
		return line[loc[1]:]
	}
	return line
}

// HasKeywords reports whether line contains conversation-suggestive words.
func HasKeywords(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Extractor applies a pattern library to timestamp-stripped lines.
type Extractor struct {
	library *patterns.Library
}

// NewExtractor builds an Extractor. A nil library uses patterns.Default.
func NewExtractor(library *patterns.Library) *Extractor {
	if library == nil {
		library = patterns.Default()
	}
	return &Extractor{library: library}
}

// Library returns the rule set in use.
func (e *Extractor) Library() *patterns.Library {
	return e.library
}

// Extract strips any timestamp and returns the first accepted match.
func (e *Extractor) Extract(line string) (patterns.Match, bool) {
	return e.library.Match(StripTimestamp(line))
}

// Result is the full classification of one line.
type Result struct {
	Match patterns.Match
	// Matched is false when no rule accepted the line.
	Matched bool
	// Suspicious is set for unmatched lines that contain conversation keywords.
	Suspicious bool
}

// Classify is Extract plus the keyword check for unmatched lines.
func (e *Extractor) Classify(line string) Result {
	clean := StripTimestamp(line)
	if m, ok := e.library.Match(clean); ok {
		return Result{Match: m, Matched: true}
	}
	return Result{Suspicious: HasKeywords(clean)}
}
