// Package relay receives chat events over a websocket from an in-game relay mod.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lewisedginton/chatwatch/internal/connectors"
	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// Frame is one JSON message on the relay socket.
type Frame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Player string `json:"player,omitempty"`
	Server string `json:"server,omitempty"`
}

// Event converts the frame into a connectors.Event.
func (f Frame) Event() (connectors.Event, error) {
	t, err := connectors.ParseEventType(f.Type)
	if err != nil {
		return connectors.Event{}, err
	}
	return connectors.Event{Type: t, Text: f.Text, Player: f.Player, Server: f.Server}, nil
}

// Config configures the relay client.
type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Relay is a Source that keeps a websocket connection open and reconnects on failure.
type Relay struct {
	cfg    Config
	log    logger.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	connected bool
}

// New validates cfg and creates a Relay.
func New(cfg Config, log logger.Logger) (*Relay, error) {
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("relay url must start with ws:// or wss://, got %q", cfg.URL)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Relay{
		cfg:    cfg,
		log:    log.WithFields(logger.StringField("relay_url", cfg.URL)),
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
	}, nil
}

// Name returns the source name used in logs.
func (r *Relay) Name() string { return "relay" }

// Connected reports whether a relay connection is currently open.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Relay) setConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	r.mu.Unlock()
}

// Run connects and dispatches frames until ctx is cancelled, reconnecting after
// every dropped connection.
func (r *Relay) Run(ctx context.Context, h connectors.Handler) error {
	for {
		err := r.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn("Relay connection lost, reconnecting",
			logger.ErrorField(err), logger.DurationField("delay", r.cfg.ReconnectDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
}

func (r *Relay) session(ctx context.Context, h connectors.Handler) error {
	conn, resp, err := r.dialer.DialContext(ctx, r.cfg.URL, r.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	r.setConnected(true)
	r.log.Info("Relay connected")
	defer r.setConnected(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("relay closed the connection")
			}
			return err
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			r.log.Warn("Skipping malformed relay frame", logger.ErrorField(err))
			continue
		}
		ev, err := frame.Event()
		if err != nil {
			r.log.Warn("Skipping relay frame", logger.ErrorField(err))
			continue
		}
		connectors.Dispatch(ctx, h, ev)
	}
}
