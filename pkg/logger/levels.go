package logger

import "strings"

// Level represents log levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
}

// String returns the string representation of a log level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "info"
}

// ParseLevel parses a case-insensitive level name. Unknown names map to InfoLevel.
func ParseLevel(levelStr string) Level {
	levelStr = strings.ToLower(strings.TrimSpace(levelStr))
	for level, name := range levelNames {
		if name == levelStr {
			return level
		}
	}
	return InfoLevel
}
