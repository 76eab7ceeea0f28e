// Package patterns holds the ordered whisper/tell rule set used to recognise private messages.
//
// A Library is an ordered list of Matchers tried first-match-wins. Bracketed and
// anchored forms sit ahead of loose substring forms, so order is part of the contract.
package patterns

import (
	"fmt"
	"strings"
)

// Direction says who sent a private message.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

// String returns IN or OUT, the form used in diagnostics.
func (d Direction) String() string {
	if d == Outgoing {
		return "OUT"
	}
	return "IN"
}

// Label returns FROM or TO, the form used in archive records.
func (d Direction) Label() string {
	if d == Outgoing {
		return "TO"
	}
	return "FROM"
}

// MarshalText encodes the direction as "incoming" or "outgoing".
func (d Direction) MarshalText() ([]byte, error) {
	if d == Outgoing {
		return []byte("outgoing"), nil
	}
	return []byte("incoming"), nil
}

// UnmarshalText accepts incoming/in/from and outgoing/out/to, case-insensitively.
func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "incoming", "in", "from":
		*d = Incoming
	case "outgoing", "out", "to":
		*d = Outgoing
	default:
		return fmt.Errorf("unknown direction %q", string(text))
	}
	return nil
}

// Match is one recognised private message.
type Match struct {
	Correspondent string    `json:"correspondent"`
	Content       string    `json:"content"`
	Direction     Direction `json:"direction"`
	Rule          string    `json:"rule"`
}

// Matcher recognises one message layout. Correspondent is returned raw; the Library cleans it.
type Matcher interface {
	Name() string
	Match(line string) (Match, bool)
}

// PrefixMatcher fires on lines starting with Prefix. The correspondent runs from Offset
// to the first ':' and the content follows that colon.
type PrefixMatcher struct {
	Prefix    string
	Offset    int
	Direction Direction
}

// NewPrefix builds a PrefixMatcher whose name starts right after prefix.
func NewPrefix(prefix string, dir Direction) PrefixMatcher {
	return PrefixMatcher{Prefix: prefix, Offset: len(prefix), Direction: dir}
}

// Name implements Matcher.
func (p PrefixMatcher) Name() string { return "prefix:" + p.Prefix }

// Match implements Matcher. A line without a colon after Offset is not a match.
func (p PrefixMatcher) Match(line string) (Match, bool) {
	if !strings.HasPrefix(line, p.Prefix) {
		return Match{}, false
	}
	colon := strings.Index(line, ":")
	if colon < p.Offset {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[p.Offset:colon]),
		Content:       ExtractContent(line, colon+1),
		Direction:     p.Direction,
	}, true
}

// SubstringMatcher fires on lines containing Anchor. Everything before the anchor is
// the correspondent, everything after it the content.
type SubstringMatcher struct {
	Anchor    string
	Direction Direction
}

// NewSubstring builds a SubstringMatcher.
func NewSubstring(anchor string, dir Direction) SubstringMatcher {
	return SubstringMatcher{Anchor: anchor, Direction: dir}
}

// Name implements Matcher.
func (s SubstringMatcher) Name() string { return "contains:" + s.Anchor }

// Match implements Matcher.
func (s SubstringMatcher) Match(line string) (Match, bool) {
	idx := strings.Index(line, s.Anchor)
	if idx < 0 {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[:idx]),
		Content:       ExtractContent(line, idx+len(s.Anchor)),
		Direction:     s.Direction,
	}, true
}

// FuncMatcher wraps layouts that a fixed prefix or substring cannot express.
type FuncMatcher struct {
	RuleName string
	Fn       func(line string) (Match, bool)
}

// Name implements Matcher.
func (f FuncMatcher) Name() string { return f.RuleName }

// Match implements Matcher.
func (f FuncMatcher) Match(line string) (Match, bool) { return f.Fn(line) }

// ExtractContent returns the trimmed remainder of line from start, skipping one leading ':'.
func ExtractContent(line string, start int) string {
	if start < 0 || start >= len(line) {
		return ""
	}
	if line[start] == ':' {
		start++
	}
	return strings.TrimSpace(line[start:])
}
