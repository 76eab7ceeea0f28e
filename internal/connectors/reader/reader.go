// Package reader feeds events from any line-oriented stream, such as stdin or a replayed log.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/lewisedginton/chatwatch/internal/connectors"
	"github.com/lewisedginton/chatwatch/pkg/logger"
)

const maxLineBytes = 1 << 20

// Reader is a Source over an io.Reader.
type Reader struct {
	name  string
	r     io.Reader
	parse connectors.ParseFunc
	log   logger.Logger
}

// New creates a Reader. A nil parse treats every line as chat.
func New(name string, r io.Reader, parse connectors.ParseFunc, log logger.Logger) *Reader {
	if parse == nil {
		parse = connectors.PlainChat
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Reader{name: name, r: r, parse: parse, log: log}
}

// Name returns the source name used in logs.
func (r *Reader) Name() string { return r.name }

// Run dispatches one event per parsed line. It returns nil at end of input.
func (r *Reader) Run(ctx context.Context, h connectors.Handler) error {
	scanner := bufio.NewScanner(r.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := r.parse(scanner.Text())
		if !ok {
			continue
		}
		connectors.Dispatch(ctx, h, ev)
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", r.name, err)
	}
	r.log.Debug("Input exhausted", logger.StringField("source", r.name), logger.IntField("events", lines))
	return nil
}
