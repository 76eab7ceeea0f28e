// Package connectors delivers chat events from the host environment to the watchers.
package connectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// EventType identifies what a source observed.
type EventType int

const (
	// EventChat carries one rendered chat line.
	EventChat EventType = iota
	// EventDisconnect signals that the session ended externally.
	EventDisconnect
	// EventIdentity carries the local player name and/or server address.
	EventIdentity
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventDisconnect:
		return "disconnect"
	case EventIdentity:
		return "identity"
	default:
		return "chat"
	}
}

// ParseEventType maps a wire name to an EventType.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat", "":
		return EventChat, nil
	case "disconnect":
		return EventDisconnect, nil
	case "identity":
		return EventIdentity, nil
	}
	return EventChat, fmt.Errorf("unknown event type %q", s)
}

// Event is one observation from a source.
type Event struct {
	Type   EventType
	Text   string
	Player string
	Server string
}

// Handler consumes events. *watchers.Engine satisfies it.
type Handler interface {
	HandleLine(ctx context.Context, line string)
	EndSession(ctx context.Context)
	SetIdentity(player, server string)
}

// Source produces events until ctx is done or its input ends.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Dispatch routes ev to the matching Handler method.
func Dispatch(ctx context.Context, h Handler, ev Event) {
	switch ev.Type {
	case EventChat:
		h.HandleLine(ctx, ev.Text)
	case EventDisconnect:
		h.EndSession(ctx)
	case EventIdentity:
		h.SetIdentity(ev.Player, ev.Server)
	}
}

// ParseFunc turns one input line into an event.
type ParseFunc func(line string) (Event, bool)

// PlainChat treats every line as chat.
func PlainChat(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return Event{}, false
	}
	return Event{Type: EventChat, Text: line}, true
}

var (
	clientChat       = regexp.MustCompile(`\[CHAT\] (.*)$`)
	clientUser       = regexp.MustCompile(`Setting user: (\S+)`)
	clientConnect    = regexp.MustCompile(`Connecting to ([^,\s]+),\s*(\d+)`)
	clientDisconnect = regexp.MustCompile(`(?i)\b(?:lost connection|disconnected from server|disconnecting)\b`)
)

// ParseClientLog understands the game client's latest.log: chat lines, the logged-in
// user, server connections and disconnects. Other lines are skipped.
func ParseClientLog(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if m := clientChat.FindStringSubmatch(line); m != nil {
		if strings.TrimSpace(m[1]) == "" {
			return Event{}, false
		}
		return Event{Type: EventChat, Text: m[1]}, true
	}
	if m := clientUser.FindStringSubmatch(line); m != nil {
		return Event{Type: EventIdentity, Player: m[1]}, true
	}
	if m := clientConnect.FindStringSubmatch(line); m != nil {
		return Event{Type: EventIdentity, Server: m[1] + ":" + m[2]}, true
	}
	if clientDisconnect.MatchString(line) {
		return Event{Type: EventDisconnect}, true
	}
	return Event{}, false
}
