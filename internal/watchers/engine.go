// Package watchers connects chat events to the coordinate logger and the message archiver.
//
// The Engine serializes every event under one mutex: chat lines, ticks, end-of-session
// signals and identity changes may arrive from different goroutines. Only the diagnostic
// queue is shared outside that lock.
package watchers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/chatwatch/internal/archive"
	"github.com/lewisedginton/chatwatch/internal/chatline"
	"github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/internal/conversation"
	"github.com/lewisedginton/chatwatch/internal/coords"
	"github.com/lewisedginton/chatwatch/internal/debugqueue"
	"github.com/lewisedginton/chatwatch/internal/patterns"
	"github.com/lewisedginton/chatwatch/internal/session"
	"github.com/lewisedginton/chatwatch/internal/storage_manager"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// Settings is the behaviour of both watchers plus the initial identity.
type Settings struct {
	Coordinates config.CoordinateConfig
	Messages    config.MessageConfig
	Player      string
	Server      string
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Files   *storage_manager.LocalFileProvider
	Library *patterns.Library
	Mirror  *archive.Mirror
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Engine is the chat-event entry point.
type Engine struct {
	cfg     Settings
	files   *storage_manager.LocalFileProvider
	writer  *archive.Writer
	mirror  *archive.Mirror
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	coords   *CoordLogger
	messages *MessageArchiver
	sessions session.Config
	current  *serverSessions
	// retired holds the trackers of servers left while sessions were still open.
	// The sweep keeps timing them out; each is dropped once it has none open.
	retired []*serverSessions
	debug   *debugqueue.Queue

	mu       sync.Mutex
	active   bool
	player   string
	layout   archive.Layout
	shipping sync.WaitGroup
}

// NewEngine wires the watchers. The engine starts inactive.
func NewEngine(cfg Settings, deps Deps) (*Engine, error) {
	if deps.Files == nil {
		return nil, errors.New("file provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	e := &Engine{
		cfg:     cfg,
		files:   deps.Files,
		writer:  archive.NewWriter(deps.Files, deps.Logger, deps.Metrics),
		mirror:  deps.Mirror,
		log:     deps.Logger,
		metrics: deps.Metrics,
		now:     deps.Now,
		debug:   debugqueue.New(debugqueue.DefaultCapacity),
		player:  cfg.Player,
		layout:  archive.Layout{Server: archive.ServerKey(cfg.Server)},
	}

	e.sessions = session.Config{
		MaxMessagesPerFile: cfg.Messages.MaxMessagesPerFile,
		Timeout:            cfg.Messages.SessionTimeout(),
		Markers:            cfg.Messages.LogSessionMarkers,
		Timestamps:         cfg.Messages.IncludeTimestamps,
		Now:                deps.Now,
	}
	current, err := e.newServerSessions(e.layout)
	if err != nil {
		return nil, err
	}
	e.current = current

	e.coords = NewCoordLogger(cfg.Coordinates, e.writer, deps.Logger, deps.Metrics, deps.Now)
	e.messages = &MessageArchiver{
		cfg:       cfg.Messages,
		extractor: conversation.NewExtractor(deps.Library),
		tracker:   current.tracker,
		debug:     e.debug,
		log:       deps.Logger,
		metrics:   deps.Metrics,
	}
	return e, nil
}

// serverSessions is the session tracker of one server and the layout its sink writes to.
type serverSessions struct {
	layout  archive.Layout
	tracker *session.Tracker
}

func (e *Engine) newServerSessions(layout archive.Layout) (*serverSessions, error) {
	s := &serverSessions{layout: layout}
	// The sink runs with e.mu held.
	tracker, err := session.NewTracker(e.sessions, session.SinkFunc(func(file, record string) error {
		return e.writer.Append(context.Background(), archive.OutputArchive, s.layout.Conversation(file), record)
	}))
	if err != nil {
		return nil, fmt.Errorf("session tracker: %w", err)
	}
	s.tracker = tracker
	return s, nil
}

// Activate creates the output folders and starts accepting events.
func (e *Engine) Activate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = true
	var result error
	for _, dir := range []string{archive.CoordinateFolder, e.layout.ConversationDir()} {
		if err := e.files.EnsureDir(ctx, dir); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		e.log.Error("Failed to create directory structure", logger.ErrorField(result))
		return result
	}
	e.log.Info("Chat watchers activated",
		logger.ServerField(e.layout.Server),
		logger.FileField(e.layout.CoordinateLog()))
	return nil
}

// Active reports whether events are being processed.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// HandleLine processes one rendered chat line. Blank lines are ignored.
func (e *Engine) HandleLine(ctx context.Context, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverEvent("chat")

	if !e.active {
		return
	}
	e.metrics.LineSeen()

	// Coordinates and private messages are independent classifications of the same line.
	if _, err := e.coords.Handle(ctx, line, e.player, e.layout); err != nil {
		e.messages.diagnose("ERROR: " + err.Error())
	}

	res, err := e.messages.Handle(line)
	if err != nil {
		e.messages.diagnose("ERROR: " + err.Error())
		return
	}
	if res.recorded.Previous != "" {
		e.shipAsync(e.layout.Conversation(res.recorded.Previous))
	}
}

// Tick runs the inactivity sweep and writes one batch of diagnostics.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverEvent("tick")

	if !e.active {
		return
	}
	now := e.now()
	e.sweep(e.current, now)
	kept := e.retired[:0]
	for _, s := range e.retired {
		e.sweep(s, now)
		if s.tracker.OpenCount() > 0 {
			kept = append(kept, s)
		}
	}
	e.retired = kept
	_ = e.flushDebug(ctx, debugqueue.BatchSize)
}

func (e *Engine) sweep(s *serverSessions, now time.Time) {
	closed, err := s.tracker.Sweep(now)
	e.recordClosed(closed)
	if err != nil {
		e.log.Warn("Failed to write session end marker", logger.ServerField(s.layout.Server), logger.ErrorField(err))
	}
}

// EndSession handles a disconnect: every open conversation is closed when configured.
func (e *Engine) EndSession(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverEvent("disconnect")

	if !e.active || !e.cfg.Messages.EndOnDisconnect {
		return
	}
	e.endAll(session.ReasonDisconnected)
}

// endAll closes every open session and ships their files. Callers hold e.mu.
func (e *Engine) endAll(reason string) {
	closed, err := e.current.tracker.EndAll(reason)
	e.recordClosed(closed)
	if err != nil {
		e.log.Warn("Failed to write session end marker", logger.ErrorField(err))
	}
	for _, c := range closed {
		e.shipAsync(e.layout.Conversation(c.File))
	}
}

func (e *Engine) recordClosed(closed []session.Closed) {
	for _, c := range closed {
		e.metrics.SessionClosed(reasonLabel(c.Reason))
		e.log.Info("Conversation ended",
			logger.CorrespondentField(c.Correspondent),
			logger.ReasonField(c.Reason),
			logger.SessionIDField(c.ID.String()),
			logger.IntField("messages", c.Messages))
	}
}

// Deactivate closes open sessions when configured, drains every diagnostic and ships
// the server's archives. It waits for in-flight shipments.
func (e *Engine) Deactivate(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	if e.cfg.Messages.EndOnDisconnect {
		e.endAll(session.ReasonDeactivated)
	}
	var result error
	if e.cfg.Messages.DebugToFile {
		if err := e.flushDebug(ctx, -1); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.active = false
	layout := e.layout
	dirs := []string{layout.ConversationDir()}
	for _, s := range e.retired {
		dirs = append(dirs, s.layout.ConversationDir())
	}
	e.mu.Unlock()

	e.shipping.Wait()
	if e.mirror != nil {
		for _, dir := range dirs {
			if err := e.mirror.ShipDir(ctx, dir); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := e.mirror.Ship(ctx, layout.CoordinateLog()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.log.Info("Chat watchers deactivated", logger.ServerField(layout.Server))
	return result
}

// flushDebug writes up to n queued diagnostics, or all of them when n < 0. Callers hold e.mu.
func (e *Engine) flushDebug(ctx context.Context, n int) error {
	e.metrics.DebugDropped(e.debug.Dropped())
	if !e.cfg.Messages.DebugToFile {
		return nil
	}
	var batch []string
	if n < 0 {
		batch = e.debug.DrainAll()
	} else {
		batch = e.debug.Drain(n)
	}
	if len(batch) == 0 {
		return nil
	}
	return e.writer.Append(ctx, archive.OutputDebug, e.layout.DebugLog(), strings.Join(batch, "\n")+"\n")
}

// SetIdentity updates the local player and the server. Empty values leave the current
// value untouched. Switching servers starts fresh per-correspondent state; sessions still
// open on the old server are closed at once with end-on-disconnect, otherwise they stay
// open until the inactivity sweep ends them.
func (e *Engine) SetIdentity(player, server string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if player != "" {
		e.player = player
	}
	if server == "" {
		return
	}
	key := archive.ServerKey(server)
	if key == e.layout.Server {
		return
	}
	if e.active && e.cfg.Messages.EndOnDisconnect {
		e.endAll(session.ReasonDisconnected)
	}
	e.switchSessions(archive.Layout{Server: key})
	e.layout = archive.Layout{Server: key}
	if e.active {
		if err := e.files.EnsureDir(context.Background(), e.layout.ConversationDir()); err != nil {
			e.log.Error("Failed to create directory structure", logger.ErrorField(err))
		}
	}
	e.log.Info("Server changed", logger.ServerField(key))
}

// switchSessions points session tracking at layout, resuming a retired tracker of that
// server if one still has open sessions. Callers hold e.mu.
func (e *Engine) switchSessions(layout archive.Layout) {
	var next *serverSessions
	for i, s := range e.retired {
		if s.layout == layout {
			next = s
			e.retired = append(e.retired[:i], e.retired[i+1:]...)
			break
		}
	}

	switch {
	case next == nil && e.current.tracker.OpenCount() == 0:
		e.current.tracker.Reset()
		e.current.layout = layout
		return
	case next == nil:
		var err error
		if next, err = e.newServerSessions(layout); err != nil {
			// Only an invalid session config fails here, and NewEngine rejects that.
			e.log.Error("Failed to start session tracking for new server", logger.ErrorField(err))
			return
		}
	}
	if e.current.tracker.OpenCount() > 0 {
		e.retired = append(e.retired, e.current)
	}
	e.current = next
	e.messages.tracker = next.tracker
}

// Identity returns the current player and server key.
func (e *Engine) Identity() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player, e.layout.Server
}

// Sessions lists the tracked correspondents of the current server.
func (e *Engine) Sessions() []session.Info {
	e.mu.Lock()
	tracker := e.current.tracker
	e.mu.Unlock()
	return tracker.Snapshot()
}

// DebugBacklog returns the number of queued diagnostics.
func (e *Engine) DebugBacklog() int {
	return e.debug.Len()
}

// RunTicker calls Tick every interval until ctx is done.
func (e *Engine) RunTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) shipAsync(path string) {
	if e.mirror == nil {
		return
	}
	e.shipping.Add(1)
	go func() {
		defer e.shipping.Done()
		if err := e.mirror.Ship(context.Background(), path); err != nil {
			e.log.Warn("Archive shipment failed", logger.FileField(path), logger.ErrorField(err))
		}
	}()
}

// Classification is a dry-run result for one line.
type Classification struct {
	Line       string            `json:"line"`
	Sender     string            `json:"sender"`
	Coordinate *CoordinateResult `json:"coordinate,omitempty"`
	Message    *patterns.Match   `json:"message,omitempty"`
	Suspicious bool              `json:"suspicious,omitempty"`
}

// CoordinateResult is the coordinate part of a Classification.
type CoordinateResult struct {
	Kind       string `json:"kind"`
	X          string `json:"x"`
	Y          string `json:"y"`
	Z          string `json:"z"`
	Suppressed bool   `json:"suppressed"`
}

// Classify reports how line would be handled without writing anything.
func (e *Engine) Classify(line string) Classification {
	e.mu.Lock()
	player := e.player
	e.mu.Unlock()

	out := Classification{Line: line, Sender: chatline.SenderName(line)}
	if m, outcome := e.coords.Detect(line, player); outcome != coords.NoMatch {
		out.Coordinate = &CoordinateResult{
			Kind:       m.Kind.String(),
			X:          m.XText,
			Y:          m.YText,
			Z:          m.ZText,
			Suppressed: outcome == coords.Suppressed,
		}
	}
	res := e.messages.extractor.Classify(line)
	if res.Matched {
		m := res.Match
		out.Message = &m
	}
	out.Suspicious = res.Suspicious
	return out
}

func reasonLabel(reason string) string {
	if strings.HasPrefix(reason, "TIMEOUT") {
		return "timeout"
	}
	return strings.ReplaceAll(strings.ToLower(reason), " ", "_")
}
