package archive

import (
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultBaseDir is the root folder of every output.
	DefaultBaseDir = "LambdaMeteorUtilities"
	// CoordinateFolder holds the coordinate logs.
	CoordinateFolder = "ChatCoordLeaks"
	// ConversationFolder holds the per-server conversation archives.
	ConversationFolder = "PrivateMessageArchiver"
	// UnknownServer is used when no server address is known.
	UnknownServer = "unknown_server"
)

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFileName replaces characters that are unsafe in file names and lowercases the result.
func SanitizeFileName(name string) string {
	return strings.ToLower(unsafeFileChars.ReplaceAllString(name, "_"))
}

// ServerKey derives the folder key for a "host:port" address.
func ServerKey(address string) string {
	host, _, _ := strings.Cut(strings.TrimSpace(address), ":")
	if host == "" {
		return UnknownServer
	}
	return SanitizeFileName(host)
}

// Layout resolves every output path relative to the base directory for one server.
// Paths use forward slashes so they can be shipped to remote backends unchanged.
type Layout struct {
	Server string
}

// CoordinateLog is the coordinate log of the server.
func (l Layout) CoordinateLog() string {
	return path.Join(CoordinateFolder, "ccl_"+l.server()+".txt")
}

// ConversationDir is the folder of the server's conversation archives.
func (l Layout) ConversationDir() string {
	return path.Join(ConversationFolder, l.server())
}

// Conversation is the path of an archive file name inside ConversationDir.
func (l Layout) Conversation(name string) string {
	return path.Join(l.ConversationDir(), name)
}

// DebugLog is the diagnostic log of the server.
func (l Layout) DebugLog() string {
	return path.Join(l.ConversationDir(), "pma_debug_"+l.server()+".txt")
}

func (l Layout) server() string {
	if l.Server == "" {
		return UnknownServer
	}
	return l.Server
}

// ArchiveName is the file name for a correspondent. A non-zero rolledAt adds the
// rollover suffix.
func ArchiveName(key string, rolledAt time.Time) string {
	if rolledAt.IsZero() {
		return key + ".txt"
	}
	return key + "_" + rolledAt.Format(FileTimeLayout) + ".txt"
}
