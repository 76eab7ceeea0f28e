// Package session keeps one record per correspondent and turns classified private messages
// into sessions: opened on the first message, closed by an explicit end signal or by the
// inactivity sweep, with the archive file rolled after a message-count ceiling.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/chatwatch/internal/archive"
	"github.com/lewisedginton/chatwatch/internal/patterns"
	"github.com/lewisedginton/chatwatch/pkg/prefixed_uuid"
)

type record struct {
	id           prefixed_uuid.PrefixedUUID
	count        int
	rollovers    int
	lastActivity time.Time
	openedAt     time.Time
	open         bool
	file         string
}

// Tracker owns every correspondent record. All methods are safe for concurrent use.
type Tracker struct {
	cfg  Config
	sink Sink

	mu      sync.Mutex
	records map[string]*record
}

// NewTracker validates cfg and builds a Tracker writing through sink.
func NewTracker(cfg Config, sink Sink) (*Tracker, error) {
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if cfg.MaxMessagesPerFile <= 0 {
		return nil, errors.New("max messages per file must be positive")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("session timeout must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{cfg: cfg, sink: sink, records: map[string]*record{}}, nil
}

// Record archives one message for the sanitized correspondent key.
//
// The rollover decision is taken once, before anything is written, so the start marker
// and the message land in the same file. The session only opens, and the counters only
// move, when the message itself was written.
func (t *Tracker) Record(key string, dir patterns.Direction, content string) (Recorded, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.cfg.Now()
	r, ok := t.records[key]
	if !ok {
		r = &record{file: archive.ArchiveName(key, time.Time{})}
		t.records[key] = r
	}

	var res Recorded
	if r.count >= t.cfg.MaxMessagesPerFile {
		res.Previous = r.file
		r.file = archive.ArchiveName(key, now)
		r.count = 0
		r.rollovers++
		res.RolledOver = true
	}
	res.File = r.file

	var result error
	if !r.open && t.cfg.Markers {
		marker := archive.SessionMarker(now, archive.StartedInfo(key))
		if err := t.sink.Append(r.file, marker); err != nil {
			result = multierror.Append(result, err)
		}
	}

	entry := archive.Record(now, archive.ConversationRecord(dir, key, content), t.cfg.Timestamps)
	if err := t.sink.Append(r.file, entry); err != nil {
		return res, multierror.Append(result, err).ErrorOrNil()
	}

	if !r.open {
		r.open = true
		r.openedAt = now
		r.id = prefixed_uuid.New(IDPrefix)
		res.Opened = true
	}
	r.count++
	r.lastActivity = now
	res.ID = r.id
	return res, result
}

// Close ends the session with key. Closing a closed or unknown session does nothing.
func (t *Tracker) Close(key, reason string) (Closed, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(key, reason)
}

func (t *Tracker) closeLocked(key, reason string) (Closed, bool, error) {
	r, ok := t.records[key]
	if !ok || !r.open {
		return Closed{}, false, nil
	}

	var err error
	if t.cfg.Markers {
		err = t.sink.Append(r.file, archive.SessionMarker(t.cfg.Now(), archive.EndedInfo(key, reason)))
	}
	r.open = false
	return Closed{ID: r.id, Correspondent: key, Reason: reason, File: r.file, Messages: r.count}, true, err
}

// EndAll closes every open session with reason, in correspondent order.
func (t *Tracker) EndAll(reason string) ([]Closed, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closed []Closed
	var result error
	for _, key := range t.sortedKeys() {
		c, ok, err := t.closeLocked(key, reason)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if ok {
			closed = append(closed, c)
		}
	}
	return closed, result
}

// Sweep closes sessions idle for longer than the timeout as of now.
func (t *Tracker) Sweep(now time.Time) ([]Closed, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reason := TimeoutReason(t.cfg.Timeout)
	var closed []Closed
	var result error
	for _, key := range t.sortedKeys() {
		r := t.records[key]
		if !r.open || now.Sub(r.lastActivity) <= t.cfg.Timeout {
			continue
		}
		c, ok, err := t.closeLocked(key, reason)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if ok {
			closed = append(closed, c)
		}
	}
	return closed, result
}

// OpenCount returns the number of open sessions.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.records {
		if r.open {
			n++
		}
	}
	return n
}

// Snapshot lists every known correspondent in key order.
func (t *Tracker) Snapshot() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]Info, 0, len(t.records))
	for _, key := range t.sortedKeys() {
		r := t.records[key]
		infos = append(infos, Info{
			ID:            r.id,
			Correspondent: key,
			Open:          r.open,
			MessageCount:  r.count,
			Rollovers:     r.rollovers,
			File:          r.file,
			OpenedAt:      r.openedAt,
			LastActivity:  r.lastActivity,
		})
	}
	return infos
}

// Files lists the current archive file of every correspondent.
func (t *Tracker) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	files := make([]string, 0, len(t.records))
	for _, key := range t.sortedKeys() {
		files = append(files, t.records[key].file)
	}
	return files
}

// Reset forgets every record. Used when the server changes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = map[string]*record{}
}

func (t *Tracker) sortedKeys() []string {
	keys := make([]string, 0, len(t.records))
	for k := range t.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
