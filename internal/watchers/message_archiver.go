package watchers

import (
	"github.com/lewisedginton/chatwatch/internal/archive"
	"github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/internal/conversation"
	"github.com/lewisedginton/chatwatch/internal/debugqueue"
	"github.com/lewisedginton/chatwatch/internal/patterns"
	"github.com/lewisedginton/chatwatch/internal/session"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// MessageArchiver files private messages into per-correspondent archives.
type MessageArchiver struct {
	cfg       config.MessageConfig
	extractor *conversation.Extractor
	tracker   *session.Tracker
	debug     *debugqueue.Queue
	log       logger.Logger
	metrics   *metrics.Metrics
}

// archived is what Handle did with one line.
type archived struct {
	matched  bool
	recorded session.Recorded
}

// Handle classifies line and records it with the tracker.
func (a *MessageArchiver) Handle(line string) (archived, error) {
	res := a.extractor.Classify(line)
	if !res.Matched {
		if res.Suspicious {
			a.diagnose("UNMATCHED: " + line)
		}
		return archived{}, nil
	}

	m := res.Match
	if m.Direction == patterns.Outgoing && !a.cfg.LogOwnMessages {
		return archived{}, nil
	}

	key := archive.SanitizeFileName(m.Correspondent)
	rec, err := a.tracker.Record(key, m.Direction, m.Content)
	a.diagnose("MATCHED: " + m.Direction.String() + " | " + m.Correspondent + " | " + line)
	if err != nil {
		return archived{matched: true}, err
	}

	a.metrics.MessageArchived(directionLabel(m.Direction))
	if rec.Opened {
		a.metrics.SessionOpened()
		a.log.Info("Conversation started", logger.CorrespondentField(key), logger.SessionIDField(rec.ID.String()))
	}
	if rec.RolledOver {
		a.metrics.Rollover()
		a.log.Info("Archive rolled over", logger.CorrespondentField(key), logger.FileField(rec.File))
	}
	return archived{matched: true, recorded: rec}, nil
}

func (a *MessageArchiver) diagnose(message string) {
	if a.cfg.DebugToFile {
		a.debug.Push(message)
	}
}

func directionLabel(d patterns.Direction) string {
	if d == patterns.Outgoing {
		return "out"
	}
	return "in"
}
