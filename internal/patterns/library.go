package patterns

import (
	"regexp"
	"strings"
)

var (
	leadingBracket  = regexp.MustCompile(`^\[.*?\]\s*`)
	trailingBracket = regexp.MustCompile(`\s*\[.*?\]$`)
	leadingStars    = regexp.MustCompile(`^\*+\s*`)
	trailingStars   = regexp.MustCompile(`\s*\*+$`)
)

// CleanName strips rank tags like "[VIP]" and "*" decorations from a correspondent name.
func CleanName(name string) string {
	name = leadingBracket.ReplaceAllString(name, "")
	name = trailingBracket.ReplaceAllString(name, "")
	name = leadingStars.ReplaceAllString(name, "")
	name = trailingStars.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// Library is an immutable ordered rule list.
type Library struct {
	matchers []Matcher
}

// NewLibrary builds a library trying matchers in the given order.
func NewLibrary(matchers ...Matcher) *Library {
	return &Library{matchers: append([]Matcher(nil), matchers...)}
}

// With returns a new library with extra matchers tried after the existing ones.
func (l *Library) With(extra ...Matcher) *Library {
	combined := make([]Matcher, 0, len(l.matchers)+len(extra))
	combined = append(combined, l.matchers...)
	combined = append(combined, extra...)
	return &Library{matchers: combined}
}

// Len returns the number of rules.
func (l *Library) Len() int { return len(l.matchers) }

// Names lists rule names in priority order.
func (l *Library) Names() []string {
	names := make([]string, len(l.matchers))
	for i, m := range l.matchers {
		names[i] = m.Name()
	}
	return names
}

// Match returns the first rule result whose cleaned correspondent and content are both non-empty.
func (l *Library) Match(line string) (Match, bool) {
	for _, m := range l.matchers {
		res, ok := m.Match(line)
		if !ok {
			continue
		}
		res.Correspondent = CleanName(res.Correspondent)
		if res.Correspondent == "" || res.Content == "" {
			continue
		}
		if res.Rule == "" {
			res.Rule = m.Name()
		}
		return res, true
	}
	return Match{}, false
}

// Default returns the built-in rules in their fixed priority order.
// Case variants are separate literal rules.
func Default() *Library {
	return NewLibrary(
		NewSubstring(" whispers to you", Incoming),
		NewSubstring(" tells you", Incoming),
		NewSubstring(" messages you", Incoming),
		NewSubstring(" -> you", Incoming),
		NewSubstring(" -> YOU", Incoming),
		NewSubstring(" whispers:", Incoming),
		NewPrefix("From ", Incoming),
		NewPrefix("from ", Incoming),
		NewPrefix("FROM ", Incoming),
		FuncMatcher{RuleName: "bracket:[Name -> You]", Fn: matchBracketToYou},

		NewPrefix("You whisper to ", Outgoing),
		NewPrefix("You tell ", Outgoing),
		NewPrefix("You message ", Outgoing),
		NewPrefix("To ", Outgoing),
		NewPrefix("to ", Outgoing),
		NewPrefix("TO ", Outgoing),
		NewPrefix("you -> ", Outgoing),
		NewPrefix("YOU -> ", Outgoing),
		FuncMatcher{RuleName: "bracket:[You -> Name]", Fn: matchBracketFromYou},
		NewPrefix("You -> ", Outgoing),
		NewPrefix("Reply to ", Outgoing),

		FuncMatcher{RuleName: "arrow:YOU -> Name:", Fn: matchUpperYouArrow},
		FuncMatcher{RuleName: "arrow:Name -> YOU:", Fn: matchArrowUpperYou},
	)
}

// "[Name -> You] text"
func matchBracketToYou(line string) (Match, bool) {
	if !strings.HasPrefix(line, "[") {
		return Match{}, false
	}
	arrow := strings.Index(line, " -> You]")
	if arrow <= 1 {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[1:arrow]),
		Content:       ExtractContent(line, strings.Index(line, "]")+1),
		Direction:     Incoming,
	}, true
}

// "[You -> Name] text"
func matchBracketFromYou(line string) (Match, bool) {
	const prefix = "[You -> "
	if !strings.HasPrefix(line, prefix) {
		return Match{}, false
	}
	bracket := strings.Index(line, "]")
	if bracket <= len(prefix) {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[len(prefix):bracket]),
		Content:       ExtractContent(line, bracket+1),
		Direction:     Outgoing,
	}, true
}

// "YOU -> Name: text"
func matchUpperYouArrow(line string) (Match, bool) {
	const prefix = "YOU -> "
	if !strings.HasPrefix(line, prefix) {
		return Match{}, false
	}
	colon := strings.Index(line, ":")
	if colon <= len(prefix) {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[len(prefix):colon]),
		Content:       ExtractContent(line, colon),
		Direction:     Outgoing,
	}, true
}

// "Name -> YOU: text"
func matchArrowUpperYou(line string) (Match, bool) {
	const anchor = " -> YOU:"
	arrow := strings.Index(line, anchor)
	if arrow <= 0 {
		return Match{}, false
	}
	return Match{
		Correspondent: strings.TrimSpace(line[:arrow]),
		Content:       ExtractContent(line, arrow+len(anchor)),
		Direction:     Incoming,
	}, true
}
