// Package chatline extracts the public sender of a rendered chat line.
package chatline

import (
	"regexp"
	"strings"
)

// Unknown is reported when no sender layout matches.
const Unknown = "Unknown"

var senderPattern = regexp.MustCompile(`^(?:<([^>]+)>|\[([^\]]+)\]|([^:]+):)`)

// SenderName returns the sender of "<Name> msg", "[Name] msg" or "Name: msg" lines.
func SenderName(line string) string {
	m := senderPattern.FindStringSubmatch(line)
	if m == nil {
		return Unknown
	}
	for _, group := range m[1:] {
		if group != "" {
			return strings.TrimSpace(group)
		}
	}
	return Unknown
}

// IsOwn reports whether line was sent by player. An empty player never matches.
func IsOwn(line, player string) bool {
	if player == "" {
		return false
	}
	return SenderName(line) == player
}
