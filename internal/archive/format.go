// Package archive formats and writes the text records produced by the watchers.
package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/lewisedginton/chatwatch/internal/coords"
	"github.com/lewisedginton/chatwatch/internal/patterns"
)

const (
	// TimeLayout is the timestamp written in front of records.
	TimeLayout = "2006-01-02 15:04:05"
	// FileTimeLayout is the suffix of rolled-over archive files.
	FileTimeLayout = "20060102_150405"
)

// Separator is the rule line around session markers.
var Separator = strings.Repeat("=", 52)

// Entry renders "[timestamp] content\n".
func Entry(now time.Time, content string) string {
	return "[" + now.Format(TimeLayout) + "] " + content + "\n"
}

// Plain renders content without a timestamp.
func Plain(content string) string {
	return content + "\n"
}

// Record renders content with or without a timestamp.
func Record(now time.Time, content string, timestamped bool) string {
	if timestamped {
		return Entry(now, content)
	}
	return Plain(content)
}

// SessionMarker renders the three-line block written when a conversation starts or ends.
func SessionMarker(now time.Time, info string) string {
	return Separator + "\n" + Entry(now, "SESSION: "+info) + Separator + "\n"
}

// StartedInfo is the marker text for a new conversation.
func StartedInfo(key string) string {
	return "CONVERSATION STARTED WITH " + strings.ToUpper(key)
}

// EndedInfo is the marker text for a closed conversation.
func EndedInfo(key, reason string) string {
	return "CONVERSATION ENDED WITH " + strings.ToUpper(key) + " - " + reason
}

// CoordinateRecord is the content line for a leaked coordinate.
func CoordinateRecord(player string, m coords.Match, line string) string {
	return fmt.Sprintf("Player: %s | Coords (%s): %s, %s, %s | Message: %s",
		player, m.Kind, m.XText, m.YText, m.ZText, line)
}

// ConversationRecord is the content line for one private message.
func ConversationRecord(dir patterns.Direction, key, content string) string {
	return dir.Label() + " " + key + ": " + content
}
